package main

import (
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tastythames/switch-backup/internal/model"
)

type backupFlags struct {
	index int
	id    string
	all   bool
}

var (
	backupFlagSet = &backupFlags{}
)

var cmdBackup = &cobra.Command{
	Use:   "backup",
	Short: "Capture device configurations now and print the result as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBackup(cmd)
	},
}

func runBackup(cmd *cobra.Command) error {
	fs := backupFlagSet

	if !fs.all && fs.id == "" && !cmd.Flags().Changed("index") {
		return errors.Wrap(model.ErrConfiguration, "one of --index, --id or --all is required")
	}

	_, svc, err := loadServices()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if fs.all {
		batch := svc.Engine.CaptureAll(ctx)
		if err := printJSON(cmd.OutOrStdout(), batch); err != nil {
			return err
		}

		return failed(batch.Success, batch.Message)
	}

	var result model.CaptureResult

	if fs.id != "" {
		result = svc.Engine.CaptureDevice(ctx, fs.id)
	} else {
		result = svc.Engine.CaptureOne(ctx, fs.index)
	}

	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	return failed(result.Success, result.Message)
}

// failed turns an unsuccessful result into a non-zero exit.
func failed(success bool, message string) error {
	if success {
		return nil
	}

	return errors.New(message)
}

func init() {
	cmdBackup.Flags().IntVar(&backupFlagSet.index, "index", 0, "registry index of the device")
	cmdBackup.Flags().StringVar(&backupFlagSet.id, "id", "", "id of the device")
	cmdBackup.Flags().BoolVar(&backupFlagSet.all, "all", false, "capture every device in registry order")
	cmdBackup.MarkFlagsMutuallyExclusive("index", "id", "all")

	rootCmd.AddCommand(cmdBackup)
}

