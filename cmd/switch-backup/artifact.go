package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tastythames/switch-backup/internal/model"
)

var cmdArtifact = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect stored configuration captures [list|show|delete|export]",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

var exportOut string

var cmdArtifactList = &cobra.Command{
	Use:   "list HOSTNAME",
	Short: "List the artifacts of a device, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		entries, err := svc.Artifacts.List(args[0])
		if err != nil {
			return err
		}

		tw := newTable(cmd.OutOrStdout(), "PATH", "SIZE", "MODIFIED")
		for _, e := range entries {
			row(tw, e.Path, e.Size, e.ModTime.Format(model.CreatedAtLayout))
		}

		return tw.Flush()
	},
}

var cmdArtifactShow = &cobra.Command{
	Use:   "show PATH",
	Short: "Print an artifact, PATH is resolved inside the backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		content, err := svc.Artifacts.Read(args[0])
		if err != nil {
			return err
		}

		_, err = cmd.OutOrStdout().Write(content)

		return err
	},
}

var cmdArtifactDelete = &cobra.Command{
	Use:   "delete PATH",
	Short: "Delete an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		if err := svc.Artifacts.Delete(args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Artifact %s deleted\n", args[0])

		return nil
	},
}

var cmdArtifactExport = &cobra.Command{
	Use:   "export HOSTNAME",
	Short: "Write a zip archive of every artifact of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = args[0] + "_backups.zip"
		}

		fh, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return errors.Wrap(model.ErrStorage, err.Error())
		}

		n, err := svc.Artifacts.Export(args[0], fh)
		if cerr := fh.Close(); err == nil && cerr != nil {
			err = errors.Wrap(model.ErrStorage, cerr.Error())
		}

		if err != nil {
			_ = os.Remove(out)
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d artifact(s) written to %s\n", n, out)

		return nil
	},
}

func init() {
	cmdArtifactExport.Flags().StringVarP(&exportOut, "out", "o", "", "archive path, HOSTNAME_backups.zip when empty")

	cmdArtifact.AddCommand(cmdArtifactList, cmdArtifactShow, cmdArtifactDelete, cmdArtifactExport)
	rootCmd.AddCommand(cmdArtifact)
}
