package scheduler

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/switch-backup/internal/inventory"
	"github.com/tastythames/switch-backup/internal/model"
)

type staticDevices []model.Device

func (d staticDevices) List() ([]model.Device, error) {
	return d, nil
}

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (s *recordingSubmitter) Submit(job Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}

	s.jobs = append(s.jobs, job)

	return "job-1", nil
}

type managerEnv struct {
	manager *Manager
	driver  *Scheduler
	store   *inventory.ScheduleStore
	path    string
	queue   *recordingSubmitter
}

func newManagerEnv(t *testing.T) *managerEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "schedules.yaml")
	store := inventory.NewScheduleStore(path, quietLogger())

	driver := NewScheduler(time.UTC, quietLogger())
	driver.now = func() time.Time { return at("2026-03-10 10:00") }

	devices := staticDevices{
		{ID: "dev-a", Hostname: "sw-a"},
		{ID: "dev-b", Hostname: "sw-b"},
	}

	queue := &recordingSubmitter{}
	m := NewManager(store, devices, driver, queue, quietLogger())
	m.now = func() time.Time { return at("2026-03-10 10:00") }

	return &managerEnv{manager: m, driver: driver, store: store, path: path, queue: queue}
}

func intPtr(n int) *int {
	return &n
}

func TestManagerAddListToggleDelete(t *testing.T) {
	env := newManagerEnv(t)

	sch, err := env.manager.Add(ScheduleInput{Kind: model.Daily, Time: "14:30", DeviceID: "dev-b"})
	require.NoError(t, err)
	assert.Regexp(t, `^sch_\d+_1$`, sch.ID)
	assert.True(t, sch.Enabled)
	assert.Equal(t, "2026-03-10 10:00:00", sch.CreatedAt)

	views, err := env.manager.List()
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Daily at 14:30", views[0].Description)
	require.NotNil(t, views[0].NextRun)
	assert.True(t, at("2026-03-10 14:30").Equal(*views[0].NextRun))

	sch, err = env.manager.Toggle(sch.ID)
	require.NoError(t, err)
	assert.False(t, sch.Enabled)
	assert.Empty(t, env.driver.Entries())

	views, err = env.manager.List()
	require.NoError(t, err)
	assert.Nil(t, views[0].NextRun)
	assert.False(t, views[0].Enabled)

	sch, err = env.manager.Toggle(sch.ID)
	require.NoError(t, err)
	assert.True(t, sch.Enabled)
	assert.Len(t, env.driver.Entries(), 1)

	_, err = env.manager.Delete(sch.ID)
	require.NoError(t, err)
	assert.Empty(t, env.driver.Entries())

	views, err = env.manager.List()
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = env.manager.Delete(sch.ID)
	assert.ErrorIs(t, err, model.ErrScheduleNotFound)
}

func TestManagerAddRejectsInvalid(t *testing.T) {
	env := newManagerEnv(t)

	_, err := env.manager.Add(ScheduleInput{Kind: model.Weekly, Time: "10:00"})
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = env.manager.Add(ScheduleInput{Kind: model.Daily, Time: "10:00", DeviceID: "dev-x"})
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)

	views, err := env.manager.List()
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestManagerAddDisabled(t *testing.T) {
	env := newManagerEnv(t)

	sch, err := env.manager.Add(ScheduleInput{Kind: model.Monthly, Time: "01:00", Day: intPtr(15), Disabled: true})
	require.NoError(t, err)
	assert.False(t, sch.Enabled)
	assert.Empty(t, env.driver.Entries())
}

func TestManagerRestore(t *testing.T) {
	env := newManagerEnv(t)

	legacy := `[
  {"id": "sch_1", "type": "daily", "time": "03:00", "switch_index": "1"},
  {"id": "sch_2", "type": "weekly", "time": "04:00", "day_of_week": "0", "switch_index": 9},
  {"id": "sch_3", "type": "daily", "time": "99:00"},
  {"id": "sch_4", "type": "yearly", "time": "05:00", "day": 1, "month": 1, "enabled": false},
  {"id": "sch_5", "type": "monthly", "time": "06:00", "day": 10}
]`
	require.NoError(t, os.WriteFile(env.path, []byte(legacy), 0o600))

	err := env.manager.Restore()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Contains(t, err.Error(), "sch_3")

	entries := env.driver.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "sch_1", entries[0].ID)
	assert.Equal(t, "sch_5", entries[1].ID)

	sch, err := env.store.Get("sch_1")
	require.NoError(t, err)
	assert.Equal(t, "dev-b", sch.DeviceID)

	// an unresolved positional binding stays disabled
	sch, err = env.store.Get("sch_2")
	require.NoError(t, err)
	assert.False(t, sch.Enabled)

	_, err = env.manager.Toggle("sch_2")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestManagerRemoveForDevice(t *testing.T) {
	env := newManagerEnv(t)

	a, err := env.manager.Add(ScheduleInput{Kind: model.Daily, Time: "01:00", DeviceID: "dev-a"})
	require.NoError(t, err)

	b, err := env.manager.Add(ScheduleInput{Kind: model.Daily, Time: "02:00", DeviceID: "dev-b"})
	require.NoError(t, err)

	all, err := env.manager.Add(ScheduleInput{Kind: model.Daily, Time: "03:00"})
	require.NoError(t, err)

	removed, err := env.manager.RemoveForDevice("dev-a")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, a.ID, removed[0].ID)

	ids := []string{}
	for _, e := range env.driver.Entries() {
		ids = append(ids, e.ID)
	}

	assert.ElementsMatch(t, []string{b.ID, all.ID}, ids)
}

func TestManagerFireSubmitsJob(t *testing.T) {
	env := newManagerEnv(t)

	sch, err := env.manager.Add(ScheduleInput{Kind: model.Weekly, Time: "02:00", DayOfWeek: intPtr(3), DeviceID: "dev-a"})
	require.NoError(t, err)

	env.manager.fire(sch)()

	require.Len(t, env.queue.jobs, 1)
	assert.Equal(t, Job{DeviceID: "dev-a", Source: SourceSchedule, ScheduleID: sch.ID}, env.queue.jobs[0])
	assert.Len(t, env.driver.Entries(), 1)
}

func TestManagerFireOnceUnregisters(t *testing.T) {
	env := newManagerEnv(t)

	sch, err := env.manager.Add(ScheduleInput{Kind: model.Once, Time: "12:00", Date: "2026-03-11"})
	require.NoError(t, err)
	require.Len(t, env.driver.Entries(), 1)

	env.manager.fire(sch)()

	require.Len(t, env.queue.jobs, 1)
	assert.True(t, env.queue.jobs[0].All())
	assert.Empty(t, env.driver.Entries())
}

func TestManagerFireQueueFull(t *testing.T) {
	env := newManagerEnv(t)
	env.queue.err = model.ErrQueueFull

	sch, err := env.manager.Add(ScheduleInput{Kind: model.Daily, Time: "02:00"})
	require.NoError(t, err)

	assert.NotPanics(t, env.manager.fire(sch))
	assert.Empty(t, env.queue.jobs)
}

func TestManagerReload(t *testing.T) {
	env := newManagerEnv(t)

	sch, err := env.manager.Add(ScheduleInput{Kind: model.Daily, Time: "01:00", DeviceID: "dev-a"})
	require.NoError(t, err)

	// another process disables it behind our back
	_, err = env.store.SetEnabled(sch.ID, false)
	require.NoError(t, err)
	require.Len(t, env.driver.Entries(), 1)

	require.NoError(t, env.manager.Reload())
	assert.Empty(t, env.driver.Entries())

	_, err = env.store.SetEnabled(sch.ID, true)
	require.NoError(t, err)

	require.NoError(t, env.manager.Reload())
	require.Len(t, env.driver.Entries(), 1)
	assert.Equal(t, sch.ID, env.driver.Entries()[0].ID)
}
