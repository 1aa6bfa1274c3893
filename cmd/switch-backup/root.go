package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tastythames/switch-backup/internal/app"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "switch-backup",
	Short:        "Back up network device configurations over SSH, on demand or on a schedule",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file, env vars prefixed SWITCHBACKUP_ override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level [info|debug|trace]")
}

// loadServices builds the app and its services from the global flags.
func loadServices() (*app.App, *app.Services, error) {
	a, err := app.New(cfgFile, logLevel)
	if err != nil {
		return nil, nil, err
	}

	svc, err := a.NewServices()
	if err != nil {
		return nil, nil, err
	}

	return a, svc, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func newTable(w io.Writer, header ...interface{}) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row(tw, header...)

	return tw
}

func row(w io.Writer, cols ...interface{}) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}

		fmt.Fprint(w, c)
	}

	fmt.Fprintln(w)
}
