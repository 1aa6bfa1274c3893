package scheduler

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/tastythames/switch-backup/internal/model"
)

// TriggerFor translates a schedule descriptor into a cron schedule firing at
// its time of day in loc.
//
// Monthly and yearly triggers on a day a month does not have skip that
// month. Weekdays count from 0 for Sunday.
func TriggerFor(s model.Schedule, loc *time.Location) (cron.Schedule, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if loc == nil {
		loc = time.Local
	}

	hour, minute, _ := s.TimeOfDay()

	var spec string

	switch s.Kind {
	case model.Once:
		at, err := time.ParseInLocation(model.DateLayout+" "+model.TimeOfDayLayout, s.Date+" "+s.Time, loc)
		if err != nil {
			return nil, errors.Wrap(model.ErrConfiguration, "once schedule: "+err.Error())
		}

		return &onceSchedule{at: at}, nil
	case model.Daily:
		spec = fmt.Sprintf("%d %d * * *", minute, hour)
	case model.Weekly:
		spec = fmt.Sprintf("%d %d * * %d", minute, hour, *s.DayOfWeek)
	case model.Monthly:
		spec = fmt.Sprintf("%d %d %d * *", minute, hour, *s.Day)
	case model.Yearly:
		spec = fmt.Sprintf("%d %d %d %d *", minute, hour, *s.Day, *s.Month)
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(model.ErrConfiguration, "schedule %s: %s", s.ID, err)
	}

	if spec, ok := sched.(*cron.SpecSchedule); ok {
		spec.Location = loc
	}

	return sched, nil
}

// onceSchedule fires a single time. The driver drops entries whose next
// activation is the zero time, so a past date never fires.
type onceSchedule struct {
	at time.Time
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}

	return time.Time{}
}
