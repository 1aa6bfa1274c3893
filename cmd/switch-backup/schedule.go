package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tastythames/switch-backup/internal/model"
	"github.com/tastythames/switch-backup/internal/scheduler"
)

// reloadHint is printed after edits, a running serve only sees them after SIGHUP.
const reloadHint = "send SIGHUP to a running serve process to apply"

var cmdSchedule = &cobra.Command{
	Use:   "schedule",
	Short: "Manage backup schedules [add|list|toggle|delete]",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

type scheduleFlags struct {
	kind      string
	time      string
	date      string
	dayOfWeek int
	day       int
	month     int
	deviceID  string
	disabled  bool
}

var (
	scheduleFlagSet = &scheduleFlags{}
)

var cmdScheduleAdd = &cobra.Command{
	Use:   "add",
	Short: "Add a schedule, bound to one device with --device-id or to every device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		fs := scheduleFlagSet
		in := scheduler.ScheduleInput{
			Kind:     model.RecurrenceKind(fs.kind),
			Time:     fs.time,
			Date:     fs.date,
			DeviceID: fs.deviceID,
			Disabled: fs.disabled,
		}

		if cmd.Flags().Changed("day-of-week") {
			in.DayOfWeek = &fs.dayOfWeek
		}

		if cmd.Flags().Changed("day") {
			in.Day = &fs.day
		}

		if cmd.Flags().Changed("month") {
			in.Month = &fs.month
		}

		sch, err := svc.Manager.Add(in)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s added: %s, %s\n", sch.ID, sch.Describe(), reloadHint)

		return nil
	},
}

var cmdScheduleList = &cobra.Command{
	Use:   "list",
	Short: "List schedules with their next run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, svc, err := loadServices()
		if err != nil {
			return err
		}

		// registering computes next runs, nothing fires since the driver is not started
		if err := svc.Manager.Restore(); err != nil {
			a.Logger.WithError(err).Warn("some schedules could not be registered")
		}

		views, err := svc.Manager.List()
		if err != nil {
			return err
		}

		tw := newTable(cmd.OutOrStdout(), "ID", "DESCRIPTION", "DEVICE", "ENABLED", "NEXT RUN")
		for _, v := range views {
			device := v.DeviceID
			if device == "" {
				device = "all"
			}

			next := "N/A"
			if v.NextRun != nil {
				next = v.NextRun.Format(model.CreatedAtLayout)
			}

			row(tw, v.ID, v.Description, device, v.Enabled, next)
		}

		return tw.Flush()
	},
}

var cmdScheduleToggle = &cobra.Command{
	Use:   "toggle ID",
	Short: "Enable a disabled schedule or disable an enabled one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		sch, err := svc.Manager.Toggle(args[0])
		if err != nil {
			return err
		}

		state := "disabled"
		if sch.Enabled {
			state = "enabled"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s %s, %s\n", sch.ID, state, reloadHint)

		return nil
	},
}

var cmdScheduleDelete = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}

		sch, err := svc.Manager.Delete(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s deleted, %s\n", sch.ID, reloadHint)

		return nil
	},
}

func init() {
	fs := scheduleFlagSet

	f := cmdScheduleAdd.Flags()
	f.StringVar(&fs.kind, "type", "", "recurrence [once|daily|weekly|monthly|yearly]")
	f.StringVar(&fs.time, "time", "", "time of day, HH:MM")
	f.StringVar(&fs.date, "date", "", "date of a once schedule, YYYY-MM-DD")
	f.IntVar(&fs.dayOfWeek, "day-of-week", 0, "weekday of a weekly schedule, 0 is Sunday")
	f.IntVar(&fs.day, "day", 0, "day of month of a monthly or yearly schedule")
	f.IntVar(&fs.month, "month", 0, "month of a yearly schedule, 1 to 12")
	f.StringVar(&fs.deviceID, "device-id", "", "bind to one device, every device when empty")
	f.BoolVar(&fs.disabled, "disabled", false, "store the schedule without enabling it")

	for _, r := range []string{"type", "time"} {
		if err := cmdScheduleAdd.MarkFlagRequired(r); err != nil {
			panic(err)
		}
	}

	cmdSchedule.AddCommand(cmdScheduleAdd, cmdScheduleList, cmdScheduleToggle, cmdScheduleDelete)
	rootCmd.AddCommand(cmdSchedule)
}
