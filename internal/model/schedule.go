package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RecurrenceKind is the recurrence of a schedule descriptor.
type RecurrenceKind string

const (
	Once    RecurrenceKind = "once"
	Daily   RecurrenceKind = "daily"
	Weekly  RecurrenceKind = "weekly"
	Monthly RecurrenceKind = "monthly"
	Yearly  RecurrenceKind = "yearly"
)

const (
	TimeOfDayLayout = "15:04"
	DateLayout      = "2006-01-02"
	CreatedAtLayout = "2006-01-02 15:04:05"
)

// Schedule is a persisted recurrence descriptor.
//
// DeviceID binds the schedule to one device, an empty DeviceID applies
// the schedule to every device in the registry.
type Schedule struct {
	ID        string         `yaml:"id" json:"id"`
	Kind      RecurrenceKind `yaml:"type" json:"type"`
	Time      string         `yaml:"time" json:"time"`
	Date      string         `yaml:"date,omitempty" json:"date,omitempty"`
	DayOfWeek *FlexInt       `yaml:"day_of_week,omitempty" json:"day_of_week,omitempty"`
	Day       *FlexInt       `yaml:"day,omitempty" json:"day,omitempty"`
	Month     *FlexInt       `yaml:"month,omitempty" json:"month,omitempty"`
	DeviceID  string         `yaml:"device_id,omitempty" json:"device_id,omitempty"`
	Enabled   bool           `yaml:"enabled" json:"enabled"`
	CreatedAt string         `yaml:"created_at" json:"created_at"`

	// LegacyIndex is the positional device binding of older schedule files,
	// it is resolved to DeviceID when the file is loaded.
	LegacyIndex *FlexInt `yaml:"switch_index,omitempty" json:"switch_index,omitempty"`
}

// UnmarshalYAML defaults Enabled to true when the key is absent.
func (s *Schedule) UnmarshalYAML(node *yaml.Node) error {
	type plain Schedule

	p := plain{Enabled: true}
	if err := node.Decode(&p); err != nil {
		return err
	}

	*s = Schedule(p)

	return nil
}

// TimeOfDay returns the hour and minute of the schedule.
func (s *Schedule) TimeOfDay() (hour, minute int, err error) {
	t, err := time.Parse(TimeOfDayLayout, strings.TrimSpace(s.Time))
	if err != nil {
		return 0, 0, errors.Wrapf(ErrConfiguration, "invalid time %q, expected HH:MM", s.Time)
	}

	return t.Hour(), t.Minute(), nil
}

// Validate checks the descriptor carries the parameters its recurrence needs.
func (s *Schedule) Validate() error {
	if _, _, err := s.TimeOfDay(); err != nil {
		return err
	}

	switch s.Kind {
	case Once:
		if _, err := time.Parse(DateLayout, s.Date); err != nil {
			return errors.Wrapf(ErrConfiguration, "once schedule: invalid date %q, expected YYYY-MM-DD", s.Date)
		}
	case Daily:
	case Weekly:
		if s.DayOfWeek == nil || *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return errors.Wrap(ErrConfiguration, "weekly schedule: day_of_week must be 0 (Sunday) to 6")
		}
	case Monthly:
		if s.Day == nil || *s.Day < 1 || *s.Day > 31 {
			return errors.Wrap(ErrConfiguration, "monthly schedule: day must be 1 to 31")
		}
	case Yearly:
		if s.Month == nil || *s.Month < 1 || *s.Month > 12 {
			return errors.Wrap(ErrConfiguration, "yearly schedule: month must be 1 to 12")
		}

		if s.Day == nil || *s.Day < 1 || *s.Day > 31 {
			return errors.Wrap(ErrConfiguration, "yearly schedule: day must be 1 to 31")
		}
	default:
		return errors.Wrapf(ErrConfiguration, "unknown schedule type %q", s.Kind)
	}

	return nil
}

// Describe returns a human readable summary of the recurrence.
func (s *Schedule) Describe() string {
	switch s.Kind {
	case Once:
		return fmt.Sprintf("Once on %s at %s", s.Date, s.Time)
	case Daily:
		return fmt.Sprintf("Daily at %s", s.Time)
	case Weekly:
		if s.DayOfWeek != nil && *s.DayOfWeek >= 0 && *s.DayOfWeek <= 6 {
			return fmt.Sprintf("Weekly on %s at %s", time.Weekday(*s.DayOfWeek), s.Time)
		}
	case Monthly:
		if s.Day != nil {
			return fmt.Sprintf("Monthly on day %d at %s", *s.Day, s.Time)
		}
	case Yearly:
		if s.Day != nil && s.Month != nil && *s.Month >= 1 && *s.Month <= 12 {
			return fmt.Sprintf("Yearly on %d %s at %s", *s.Day, time.Month(*s.Month), s.Time)
		}
	}

	return fmt.Sprintf("%s at %s", s.Kind, s.Time)
}

// FlexInt decodes integers that older files stored as quoted strings.
type FlexInt int

func (f *FlexInt) UnmarshalYAML(node *yaml.Node) error {
	n, err := strconv.Atoi(strings.TrimSpace(node.Value))
	if err != nil {
		return errors.Wrapf(ErrConfiguration, "expected an integer, got %q", node.Value)
	}

	*f = FlexInt(n)

	return nil
}

// IntPtr is a helper to build optional schedule parameters.
func IntPtr(n int) *FlexInt {
	f := FlexInt(n)
	return &f
}
