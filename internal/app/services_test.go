package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tastythames/switch-backup/internal/model"
	"github.com/tastythames/switch-backup/internal/scheduler"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()

	dir := t.TempDir()

	t.Setenv("SWITCHBACKUP_PATHS_DEVICES", filepath.Join(dir, "switches.yaml"))
	t.Setenv("SWITCHBACKUP_PATHS_SCHEDULES", filepath.Join(dir, "schedules.yaml"))
	t.Setenv("SWITCHBACKUP_PATHS_KEY", filepath.Join(dir, "encryption.key"))
	t.Setenv("SWITCHBACKUP_PATHS_BACKUPS", filepath.Join(dir, "backups"))
	t.Setenv("SWITCHBACKUP_TIMEZONE", "UTC")

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	a := &App{v: viper.New(), Config: &Configuration{}, Logger: logger}
	require.NoError(t, a.LoadConfiguration(""))

	s, err := a.NewServices()
	require.NoError(t, err)

	return s
}

func TestServicesDeleteDeviceCascades(t *testing.T) {
	s := newTestServices(t)

	a, err := s.Devices.Add(model.DeviceInput{Hostname: "sw-a", IP: "10.0.0.1", Username: "admin", Password: "pw"})
	require.NoError(t, err)

	b, err := s.Devices.Add(model.DeviceInput{Hostname: "sw-b", IP: "10.0.0.2", Username: "admin", Password: "pw"})
	require.NoError(t, err)

	_, err = s.Manager.Add(scheduler.ScheduleInput{Kind: model.Daily, Time: "01:00", DeviceID: a.ID})
	require.NoError(t, err)

	keep, err := s.Manager.Add(scheduler.ScheduleInput{Kind: model.Daily, Time: "02:00", DeviceID: b.ID})
	require.NoError(t, err)

	deleted, removed, err := s.DeleteDevice(0)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)
	require.Len(t, removed, 1)
	assert.Equal(t, a.ID, removed[0].DeviceID)

	schedules, err := s.Schedules.List()
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, keep.ID, schedules[0].ID)

	_, _, err = s.DeleteDevice(5)
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)
}

func TestServicesDecryptedDevice(t *testing.T) {
	s := newTestServices(t)

	_, err := s.Devices.Add(model.DeviceInput{
		Hostname:       "sw-a",
		IP:             "10.0.0.1",
		Username:       "admin",
		Password:       "pw",
		EnablePassword: "en",
	})
	require.NoError(t, err)

	stored, err := s.Devices.Get(0)
	require.NoError(t, err)
	assert.NotEqual(t, "pw", stored.Password)

	d, err := s.DecryptedDevice(0)
	require.NoError(t, err)
	assert.Equal(t, "pw", d.Password)
	assert.Equal(t, "en", d.EnablePassword)
}

func TestServicesLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestServices(t)
	require.NoError(t, s.Health())

	_, err := s.Manager.Add(scheduler.ScheduleInput{Kind: model.Daily, Time: "03:00"})
	require.NoError(t, err)

	s.Start()
	assert.Len(t, s.Driver.Entries(), 1)

	require.NoError(t, s.Reload())
	assert.Len(t, s.Driver.Entries(), 1)

	s.Stop(context.Background())

	_, err = s.Queue.Submit(scheduler.Job{})
	assert.ErrorIs(t, err, scheduler.ErrQueueStopped)
}
