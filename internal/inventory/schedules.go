package inventory

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/model"
)

// ScheduleStore is the file backed collection of schedule descriptors.
type ScheduleStore struct {
	path   string
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewScheduleStore(path string, logger *logrus.Logger) *ScheduleStore {
	return &ScheduleStore{path: path, logger: logger}
}

func (s *ScheduleStore) load() ([]model.Schedule, error) {
	var schedules []model.Schedule
	if err := readYAML(s.path, &schedules); err != nil {
		return nil, err
	}

	return schedules, nil
}

// List returns every persisted descriptor, enabled or not.
func (s *ScheduleStore) List() ([]model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Get returns the descriptor with the given id.
func (s *ScheduleStore) Get(id string) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return model.Schedule{}, err
	}

	for i := range schedules {
		if schedules[i].ID == id {
			return schedules[i], nil
		}
	}

	return model.Schedule{}, errors.Wrapf(model.ErrScheduleNotFound, "schedule id %s", id)
}

// Add appends a descriptor, ids must be unique.
func (s *ScheduleStore) Add(sch model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return err
	}

	for i := range schedules {
		if schedules[i].ID == sch.ID {
			return errors.Wrapf(model.ErrConfiguration, "duplicate schedule id %s", sch.ID)
		}
	}

	return writeYAML(s.path, append(schedules, sch))
}

// SetEnabled flips the enabled flag of a descriptor and returns the result.
func (s *ScheduleStore) SetEnabled(id string, enabled bool) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return model.Schedule{}, err
	}

	for i := range schedules {
		if schedules[i].ID != id {
			continue
		}

		schedules[i].Enabled = enabled
		if err := writeYAML(s.path, schedules); err != nil {
			return model.Schedule{}, err
		}

		return schedules[i], nil
	}

	return model.Schedule{}, errors.Wrapf(model.ErrScheduleNotFound, "schedule id %s", id)
}

// Delete removes a descriptor and returns it.
func (s *ScheduleStore) Delete(id string) (model.Schedule, error) {
	removed, err := s.DeleteWhere(func(sch model.Schedule) bool { return sch.ID == id })
	if err != nil {
		return model.Schedule{}, err
	}

	if len(removed) == 0 {
		return model.Schedule{}, errors.Wrapf(model.ErrScheduleNotFound, "schedule id %s", id)
	}

	return removed[0], nil
}

// DeleteWhere removes every descriptor matching fn and returns them.
func (s *ScheduleStore) DeleteWhere(fn func(model.Schedule) bool) ([]model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return nil, err
	}

	kept := schedules[:0]

	var removed []model.Schedule

	for _, sch := range schedules {
		if fn(sch) {
			removed = append(removed, sch)
			continue
		}

		kept = append(kept, sch)
	}

	if len(removed) == 0 {
		return nil, nil
	}

	if err := writeYAML(s.path, kept); err != nil {
		return nil, err
	}

	return removed, nil
}

// MigrateLegacy rewrites positional device bindings into device ids.
//
// resolve maps a registry position to a device id. Descriptors whose
// position no longer resolves are disabled and left for an operator to fix.
func (s *ScheduleStore) MigrateLegacy(resolve func(index int) (string, bool)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return 0, err
	}

	var changed int

	for i := range schedules {
		sch := &schedules[i]
		if sch.LegacyIndex == nil || sch.DeviceID != "" {
			continue
		}

		index := int(*sch.LegacyIndex)

		id, ok := resolve(index)
		if !ok {
			if sch.Enabled {
				sch.Enabled = false
				changed++

				s.logger.WithFields(logrus.Fields{"schedule": sch.ID, "index": index}).
					Warn("schedule bound to a device position that no longer exists, disabled")
			}

			continue
		}

		sch.DeviceID = id
		sch.LegacyIndex = nil
		changed++
	}

	if changed == 0 {
		return 0, nil
	}

	return changed, writeYAML(s.path, schedules)
}
