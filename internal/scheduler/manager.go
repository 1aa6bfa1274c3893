package scheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/metrics"
	"github.com/tastythames/switch-backup/internal/model"
)

// ScheduleStore persists schedule descriptors.
type ScheduleStore interface {
	List() ([]model.Schedule, error)
	Get(id string) (model.Schedule, error)
	Add(sch model.Schedule) error
	SetEnabled(id string, enabled bool) (model.Schedule, error)
	Delete(id string) (model.Schedule, error)
	DeleteWhere(fn func(model.Schedule) bool) ([]model.Schedule, error)
	MigrateLegacy(resolve func(index int) (string, bool)) (int, error)
}

// DeviceLister resolves schedule device bindings.
type DeviceLister interface {
	List() ([]model.Device, error)
}

// Submitter accepts capture jobs, the Queue implements it.
type Submitter interface {
	Submit(job Job) (string, error)
}

// ScheduleInput describes a new schedule.
type ScheduleInput struct {
	Kind      model.RecurrenceKind
	Time      string
	Date      string
	DayOfWeek *int
	Day       *int
	Month     *int
	// DeviceID binds the schedule to a device, empty means every device.
	DeviceID string
	Disabled bool
}

// ScheduleView is a descriptor annotated for listings.
type ScheduleView struct {
	model.Schedule
	Description string     `json:"description"`
	NextRun     *time.Time `json:"next_run_time"`
}

// Manager keeps the schedule store and the driver in step.
type Manager struct {
	store   ScheduleStore
	devices DeviceLister
	driver  *Scheduler
	queue   Submitter
	logger  *logrus.Logger
	now     func() time.Time
	seq     uint64
}

func NewManager(store ScheduleStore, devices DeviceLister, driver *Scheduler, queue Submitter, logger *logrus.Logger) *Manager {
	return &Manager{
		store:   store,
		devices: devices,
		driver:  driver,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// Restore migrates positional bindings of older files and registers every
// enabled schedule. Descriptors that fail to register are skipped and
// reported together.
func (m *Manager) Restore() error {
	devices, err := m.devices.List()
	if err != nil {
		return err
	}

	migrated, err := m.store.MigrateLegacy(func(index int) (string, bool) {
		if index < 0 || index >= len(devices) {
			return "", false
		}

		return devices[index].ID, true
	})
	if err != nil {
		return err
	}

	if migrated > 0 {
		m.logger.WithField("schedules", migrated).Info("migrated positional device bindings")
	}

	schedules, err := m.store.List()
	if err != nil {
		return err
	}

	var merr *multierror.Error

	registered := 0

	for _, sch := range schedules {
		if !sch.Enabled {
			continue
		}

		if err := m.register(sch); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, "schedule "+sch.ID))
			continue
		}

		registered++
	}

	m.logger.WithFields(logrus.Fields{"schedules": len(schedules), "registered": registered}).Info("schedules restored")

	return merr.ErrorOrNil()
}

// Reload drops every registration and restores from the store, picking up
// edits made by another process.
func (m *Manager) Reload() error {
	for _, e := range m.driver.Entries() {
		m.driver.Unschedule(e.ID)
	}

	return m.Restore()
}

// Add persists a new schedule and registers it unless disabled.
func (m *Manager) Add(in ScheduleInput) (model.Schedule, error) {
	now := m.now()

	sch := model.Schedule{
		ID:        fmt.Sprintf("sch_%d_%d", now.Unix(), atomic.AddUint64(&m.seq, 1)),
		Kind:      in.Kind,
		Time:      in.Time,
		Date:      in.Date,
		DayOfWeek: flexPtr(in.DayOfWeek),
		Day:       flexPtr(in.Day),
		Month:     flexPtr(in.Month),
		DeviceID:  in.DeviceID,
		Enabled:   !in.Disabled,
		CreatedAt: now.Format(model.CreatedAtLayout),
	}

	trigger, err := TriggerFor(sch, m.driver.Location())
	if err != nil {
		return model.Schedule{}, err
	}

	if err := m.checkDevice(sch.DeviceID); err != nil {
		return model.Schedule{}, err
	}

	if err := m.store.Add(sch); err != nil {
		return model.Schedule{}, err
	}

	if sch.Enabled {
		m.driver.Schedule(sch.ID, trigger, m.fire(sch))
	}

	m.logger.WithFields(logrus.Fields{"schedule": sch.ID, "recurrence": sch.Describe()}).Info("schedule added")

	return sch, nil
}

// Toggle flips the enabled flag of a schedule. Disabling unregisters the
// job and keeps the descriptor, enabling recomputes the trigger.
func (m *Manager) Toggle(id string) (model.Schedule, error) {
	sch, err := m.store.Get(id)
	if err != nil {
		return model.Schedule{}, err
	}

	if sch.Enabled {
		sch, err = m.store.SetEnabled(id, false)
		if err != nil {
			return model.Schedule{}, err
		}

		m.driver.Unschedule(id)
		m.logger.WithField("schedule", id).Info("schedule disabled")

		return sch, nil
	}

	if sch.DeviceID == "" && sch.LegacyIndex != nil {
		return model.Schedule{}, errors.Wrapf(model.ErrConfiguration,
			"schedule %s is bound to device index %d which no longer exists", id, *sch.LegacyIndex)
	}

	if err := m.checkDevice(sch.DeviceID); err != nil {
		return model.Schedule{}, err
	}

	sch.Enabled = true

	trigger, err := TriggerFor(sch, m.driver.Location())
	if err != nil {
		return model.Schedule{}, err
	}

	sch, err = m.store.SetEnabled(id, true)
	if err != nil {
		return model.Schedule{}, err
	}

	m.driver.Schedule(id, trigger, m.fire(sch))
	m.logger.WithField("schedule", id).Info("schedule enabled")

	return sch, nil
}

// Delete removes both the registered job and the descriptor.
func (m *Manager) Delete(id string) (model.Schedule, error) {
	sch, err := m.store.Delete(id)
	if err != nil {
		return model.Schedule{}, err
	}

	m.driver.Unschedule(id)
	m.logger.WithField("schedule", id).Info("schedule deleted")

	return sch, nil
}

// RemoveForDevice deletes every schedule bound to deviceID.
func (m *Manager) RemoveForDevice(deviceID string) ([]model.Schedule, error) {
	if deviceID == "" {
		return nil, nil
	}

	removed, err := m.store.DeleteWhere(func(s model.Schedule) bool {
		return s.DeviceID == deviceID
	})
	if err != nil {
		return nil, err
	}

	for _, s := range removed {
		m.driver.Unschedule(s.ID)
	}

	if len(removed) > 0 {
		m.logger.WithFields(logrus.Fields{"device_id": deviceID, "schedules": len(removed)}).Info("removed schedules of deleted device")
	}

	return removed, nil
}

// List returns every descriptor with its next run, nil when not registered.
func (m *Manager) List() ([]ScheduleView, error) {
	schedules, err := m.store.List()
	if err != nil {
		return nil, err
	}

	out := make([]ScheduleView, 0, len(schedules))

	for _, s := range schedules {
		v := ScheduleView{Schedule: s, Description: s.Describe()}

		if next, ok := m.driver.Next(s.ID); ok && !next.IsZero() {
			v.NextRun = &next
		}

		out = append(out, v)
	}

	return out, nil
}

// fire returns the callback registered with the driver for sch.
func (m *Manager) fire(sch model.Schedule) func() {
	return func() {
		logger := m.logger.WithFields(logrus.Fields{"schedule": sch.ID, "device_id": sch.DeviceID})

		jobID, err := m.queue.Submit(Job{
			DeviceID:   sch.DeviceID,
			Source:     SourceSchedule,
			ScheduleID: sch.ID,
		})
		if err != nil {
			metrics.ScheduledFiresCounter.WithLabelValues(string(sch.Kind), "dropped").Inc()
			logger.WithError(err).Error("scheduled backup not queued")
		} else {
			metrics.ScheduledFiresCounter.WithLabelValues(string(sch.Kind), "queued").Inc()
			logger.WithField("job", jobID).Info("scheduled backup queued")
		}

		if sch.Kind == model.Once {
			m.driver.Unschedule(sch.ID)
		}
	}
}

func (m *Manager) register(sch model.Schedule) error {
	if sch.DeviceID == "" && sch.LegacyIndex != nil {
		return errors.Wrapf(model.ErrConfiguration, "unresolved device index %d", *sch.LegacyIndex)
	}

	trigger, err := TriggerFor(sch, m.driver.Location())
	if err != nil {
		return err
	}

	m.driver.Schedule(sch.ID, trigger, m.fire(sch))

	return nil
}

func (m *Manager) checkDevice(id string) error {
	if id == "" {
		return nil
	}

	devices, err := m.devices.List()
	if err != nil {
		return err
	}

	for i := range devices {
		if devices[i].ID == id {
			return nil
		}
	}

	return errors.Wrapf(model.ErrDeviceNotFound, "device id %s", id)
}

func flexPtr(n *int) *model.FlexInt {
	if n == nil {
		return nil
	}

	return model.IntPtr(*n)
}
