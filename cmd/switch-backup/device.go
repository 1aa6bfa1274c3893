package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tastythames/switch-backup/internal/capture"
	"github.com/tastythames/switch-backup/internal/model"
)

var cmdDevice = &cobra.Command{
	Use:   "device",
	Short: "Manage devices [add|list|show|update|delete]",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

type deviceFlags struct {
	hostname       string
	ip             string
	username       string
	password       string
	enablePassword string
	vendorProfile  string
	captureCommand string
	clearCommand   bool
	showSecrets    bool
}

var (
	deviceFlagSet = &deviceFlags{}
)

// passwordEnv supplies the add password when --password is not given.
const passwordEnv = "SWITCHBACKUP_DEVICE_PASSWORD"

var cmdDeviceAdd = &cobra.Command{
	Use:   "add",
	Short: "Register a device, secrets are encrypted before they are stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		password := deviceFlagSet.password
		if password == "" {
			password = os.Getenv(passwordEnv)
		}

		d, err := svc.Devices.Add(model.DeviceInput{
			Hostname:       deviceFlagSet.hostname,
			IP:             deviceFlagSet.ip,
			Username:       deviceFlagSet.username,
			Password:       password,
			EnablePassword: deviceFlagSet.enablePassword,
			VendorProfile:  deviceFlagSet.vendorProfile,
			CaptureCommand: deviceFlagSet.captureCommand,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Device %s added with id %s\n", d.Hostname, d.ID)

		return nil
	},
}

var cmdDeviceList = &cobra.Command{
	Use:   "list",
	Short: "List devices in registry order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		devices, err := svc.Devices.List()
		if err != nil {
			return err
		}

		tw := newTable(cmd.OutOrStdout(), "INDEX", "ID", "HOSTNAME", "IP", "USERNAME", "TYPE", "COMMAND")
		for i, d := range devices {
			row(tw, i, d.ID, d.Hostname, d.IP, d.Username, d.VendorProfile, d.CaptureCommand)
		}

		return tw.Flush()
	},
}

var cmdDeviceShow = &cobra.Command{
	Use:   "show INDEX",
	Short: "Print one device as JSON, secrets are masked unless --show-secrets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}

		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		d, err := svc.DecryptedDevice(index)
		if err != nil {
			return err
		}

		if !deviceFlagSet.showSecrets {
			d.Password = mask(d.Password)
			d.EnablePassword = mask(d.EnablePassword)
		}

		return printJSON(cmd.OutOrStdout(), d)
	},
}

var cmdDeviceUpdate = &cobra.Command{
	Use:   "update INDEX",
	Short: "Update a device, flags left unset keep their stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}

		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		d, err := svc.Devices.Update(index, model.DeviceUpdate{
			Hostname:            deviceFlagSet.hostname,
			IP:                  deviceFlagSet.ip,
			Username:            deviceFlagSet.username,
			VendorProfile:       deviceFlagSet.vendorProfile,
			CaptureCommand:      deviceFlagSet.captureCommand,
			NewPassword:         deviceFlagSet.password,
			NewEnablePassword:   deviceFlagSet.enablePassword,
			ClearCaptureCommand: deviceFlagSet.clearCommand,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Device %s updated\n", d.Hostname)

		return nil
	},
}

var cmdDeviceDelete = &cobra.Command{
	Use:   "delete INDEX",
	Short: "Delete a device and the schedules bound to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}

		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		d, removed, err := svc.DeleteDevice(index)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Device %s deleted, %d schedule(s) removed\n", d.Hostname, len(removed))

		return nil
	},
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(model.ErrConfiguration, "invalid device index %q", s)
	}

	return n, nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}

	return "********"
}

func init() {
	fs := deviceFlagSet

	for _, c := range []*cobra.Command{cmdDeviceAdd, cmdDeviceUpdate} {
		c.Flags().StringVar(&fs.hostname, "hostname", "", "device hostname, also names its artifacts")
		c.Flags().StringVar(&fs.ip, "ip", "", "management address")
		c.Flags().StringVar(&fs.username, "username", "", "SSH username")
		c.Flags().StringVar(&fs.password, "password", "", "SSH password")
		c.Flags().StringVar(&fs.enablePassword, "enable-password", "", "privileged mode secret, the SSH password is used when empty")
		c.Flags().StringVar(&fs.vendorProfile, "type", "", fmt.Sprintf("vendor profile %v", capture.Profiles()))
		c.Flags().StringVar(&fs.captureCommand, "command", "", "custom configuration dump command, tried first")
	}

	for _, r := range []string{"hostname", "ip", "username"} {
		if err := cmdDeviceAdd.MarkFlagRequired(r); err != nil {
			panic(err)
		}
	}

	cmdDeviceUpdate.Flags().BoolVar(&fs.clearCommand, "clear-command", false, "remove the custom dump command")
	cmdDeviceUpdate.MarkFlagsMutuallyExclusive("command", "clear-command")

	cmdDeviceShow.Flags().BoolVar(&fs.showSecrets, "show-secrets", false, "print decrypted secrets")

	cmdDevice.AddCommand(cmdDeviceAdd, cmdDeviceList, cmdDeviceShow, cmdDeviceUpdate, cmdDeviceDelete)
	rootCmd.AddCommand(cmdDevice)
}
