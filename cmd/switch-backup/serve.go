package main

import (
	"context"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tastythames/switch-backup/internal/api"
	"github.com/tastythames/switch-backup/internal/metrics"
	"github.com/tastythames/switch-backup/internal/version"
)

// shutdownTimeout bounds how long serve waits for a running capture.
const shutdownTimeout = 10 * time.Second

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled backups and serve the job API, metrics and health endpoints",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	a, svc, err := loadServices()
	if err != nil {
		return err
	}

	termCh := a.NotifySignals()

	version.ExportBuildInfoMetric()

	srv := metrics.NewServer(a.Config.Listen, svc.Health, a.Logger)
	srv.Handle("/api/", api.NewRouter(svc.Queue, svc.Manager, a.Logger))

	svc.Start()
	srv.ListenAndServe()

	a.Logger.WithField("version", version.Current().AppVersion).Info("switch-backup serving")

	for sig := range termCh {
		if sig != syscall.SIGHUP {
			a.Logger.WithField("signal", sig.String()).Info("got TERM signal, exiting...")
			break
		}

		if err := svc.Reload(); err != nil {
			a.Logger.WithError(err).Error("schedule reload incomplete")
			continue
		}

		a.Logger.Info("schedules reloaded")
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	svc.Stop(ctx)

	return srv.Shutdown(ctx)
}

func init() {
	rootCmd.AddCommand(cmdServe)
}
