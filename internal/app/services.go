package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/artifact"
	"github.com/tastythames/switch-backup/internal/cache"
	"github.com/tastythames/switch-backup/internal/capture"
	"github.com/tastythames/switch-backup/internal/inventory"
	"github.com/tastythames/switch-backup/internal/model"
	"github.com/tastythames/switch-backup/internal/scheduler"
	"github.com/tastythames/switch-backup/internal/sshclient"
	"github.com/tastythames/switch-backup/internal/vault"
)

// Services are the long lived components of the application, constructed
// once and handed to whatever needs them.
type Services struct {
	Vault     *vault.Vault
	Devices   *inventory.Registry
	Schedules *inventory.ScheduleStore
	Artifacts *artifact.Store
	Dialer    *sshclient.Client
	Engine    *capture.Engine
	Jobs      *cache.MemCache
	Queue     *scheduler.Queue
	Driver    *scheduler.Scheduler
	Manager   *scheduler.Manager

	logger *logrus.Logger
}

// NewServices wires the components from the configuration. Nothing is
// started, see Start.
func (a *App) NewServices() (*Services, error) {
	cfg := a.Config

	loc, err := a.Location()
	if err != nil {
		return nil, err
	}

	v, err := vault.Open(cfg.Paths.Key, a.Logger)
	if err != nil {
		return nil, err
	}

	artifacts, err := artifact.New(cfg.Paths.Backups, a.Logger)
	if err != nil {
		return nil, err
	}

	dialer, err := sshclient.New(sshclient.Config{
		Port:             cfg.SSH.Port,
		ConnectTimeout:   cfg.SSH.ConnectTimeout,
		SessionTimeout:   cfg.SSH.SessionTimeout,
		DialAttempts:     cfg.SSH.DialAttempts,
		KnownHostsFile:   cfg.SSH.KnownHostsFile,
		LegacyAlgorithms: cfg.SSH.LegacyAlgorithms,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	devices := inventory.NewRegistry(cfg.Paths.Devices, v, a.Logger)
	schedules := inventory.NewScheduleStore(cfg.Paths.Schedules, a.Logger)
	engine := capture.New(devices, v, artifacts, dialer, cfg.Capture, a.Logger)
	jobs := cache.NewMemCache()
	queue := scheduler.NewQueue(cfg.Queue.Size, engine, jobs, a.Logger)
	driver := scheduler.NewScheduler(loc, a.Logger)

	return &Services{
		Vault:     v,
		Devices:   devices,
		Schedules: schedules,
		Artifacts: artifacts,
		Dialer:    dialer,
		Engine:    engine,
		Jobs:      jobs,
		Queue:     queue,
		Driver:    driver,
		Manager:   scheduler.NewManager(schedules, devices, driver, queue, a.Logger),
		logger:    a.Logger,
	}, nil
}

// Start runs the capture queue, restores schedules and starts the driver.
// Schedules that fail to restore are logged and skipped.
func (s *Services) Start() {
	s.Queue.Start()

	if err := s.Manager.Restore(); err != nil {
		s.logger.WithError(err).Error("some schedules were not restored")
	}

	s.Driver.Start()
}

// Reload re-reads the schedule store, picking up changes made by other
// processes.
func (s *Services) Reload() error {
	return s.Manager.Reload()
}

// Stop halts the driver, then the queue. A running capture is aborted at
// its next poll.
func (s *Services) Stop(ctx context.Context) {
	s.Driver.Stop(ctx)
	s.Queue.Stop()
}

// Health reports whether the persisted state is readable.
func (s *Services) Health() error {
	if _, err := s.Devices.List(); err != nil {
		return err
	}

	if _, err := s.Schedules.List(); err != nil {
		return err
	}

	return nil
}

// DeleteDevice removes the device at index and every schedule bound to it.
func (s *Services) DeleteDevice(index int) (model.Device, []model.Schedule, error) {
	d, err := s.Devices.Delete(index)
	if err != nil {
		return model.Device{}, nil, err
	}

	removed, err := s.Manager.RemoveForDevice(d.ID)
	if err != nil {
		return d, nil, errors.Wrap(err, "device deleted, removing its schedules failed")
	}

	return d, removed, nil
}

// DecryptedDevice returns the device at index with plaintext secrets, for
// display to an operator.
func (s *Services) DecryptedDevice(index int) (model.Device, error) {
	d, err := s.Devices.Get(index)
	if err != nil {
		return model.Device{}, err
	}

	if d.Password, err = s.Vault.Decrypt(d.Password); err != nil {
		return model.Device{}, err
	}

	if d.EnablePassword, err = s.Vault.Decrypt(d.EnablePassword); err != nil {
		return model.Device{}, err
	}

	return d, nil
}
