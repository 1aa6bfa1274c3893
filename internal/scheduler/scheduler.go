package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	logrusr "github.com/bombsimon/logrusr/v2"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/metrics"
)

// Entry is a registered job and its next activation, zero when it will not
// fire again.
type Entry struct {
	ID   string    `json:"id"`
	Next time.Time `json:"next_run_time"`
}

type registration struct {
	entryID  cron.EntryID
	schedule cron.Schedule
}

// Scheduler is the recurring job driver. Jobs are keyed by id, registering
// an id again replaces its trigger.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]registration
}

func NewScheduler(loc *time.Location, logger *logrus.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}

	cronLogger := logrusr.New(logger.WithField("component", "cron"))

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		loc:     loc,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]registration),
	}
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Schedule registers fn under id, replacing any job already registered
// under that id.
func (s *Scheduler) Schedule(id string, sched cron.Schedule, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok {
		s.cron.Remove(old.entryID)
	}

	entryID := s.cron.Schedule(sched, cron.FuncJob(fn))
	s.entries[id] = registration{entryID: entryID, schedule: sched}

	metrics.SchedulesRegisteredNum.Set(float64(len(s.entries)))
	s.logger.WithFields(logrus.Fields{"schedule": id, "next": sched.Next(s.now().In(s.loc))}).Debug("job registered")
}

// Unschedule removes the job registered under id and reports whether one was.
func (s *Scheduler) Unschedule(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.entries[id]
	if !ok {
		return false
	}

	s.cron.Remove(reg.entryID)
	delete(s.entries, id)

	metrics.SchedulesRegisteredNum.Set(float64(len(s.entries)))

	return true
}

// Next returns the next activation of the job registered under id.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}

	return reg.schedule.Next(s.now().In(s.loc)), true
}

// Entries lists registered jobs ordered by id.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)

	out := make([]Entry, 0, len(s.entries))
	for id, reg := range s.entries {
		out = append(out, Entry{ID: id, Next: reg.schedule.Next(now)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the driver and waits for running jobs to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out waiting for running jobs")
	}
}
