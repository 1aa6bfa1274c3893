package inventory

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/model"
)

// Encrypter protects secrets before they are written to the registry file.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Registry is the ordered, file backed collection of device records.
type Registry struct {
	path   string
	vault  Encrypter
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewRegistry(path string, vault Encrypter, logger *logrus.Logger) *Registry {
	return &Registry{path: path, vault: vault, logger: logger}
}

// load reads and normalizes the registry, the caller must hold r.mu.
//
// Records missing an id are assigned one and the file is rewritten so the
// id is stable across loads.
func (r *Registry) load() ([]model.Device, error) {
	var devices []model.Device
	if err := readYAML(r.path, &devices); err != nil {
		return nil, err
	}

	var assigned int

	for i := range devices {
		d := &devices[i]
		if d.EnablePassword == "" {
			d.EnablePassword = d.Password
		}

		if d.VendorProfile == "" {
			d.VendorProfile = model.DefaultVendorProfile
		}

		if d.ID == "" {
			d.ID = uuid.NewString()
			assigned++
		}
	}

	if assigned > 0 {
		r.logger.WithField("count", assigned).Info("assigned ids to devices without one")

		if err := writeYAML(r.path, devices); err != nil {
			return nil, err
		}
	}

	return devices, nil
}

// List returns the devices in registry order.
func (r *Registry) List() ([]model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

// Get returns the device at index.
func (r *Registry) Get(index int) (model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return model.Device{}, err
	}

	if index < 0 || index >= len(devices) {
		return model.Device{}, errors.Wrapf(model.ErrDeviceNotFound, "invalid device index %d", index)
	}

	return devices[index], nil
}

// GetByID returns the device with the given id along with its current position.
func (r *Registry) GetByID(id string) (model.Device, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return model.Device{}, -1, err
	}

	for i := range devices {
		if devices[i].ID == id {
			return devices[i], i, nil
		}
	}

	return model.Device{}, -1, errors.Wrapf(model.ErrDeviceNotFound, "device id %s", id)
}

// Add appends a device, encrypting its secrets. The enable secret defaults
// to the login password.
func (r *Registry) Add(in model.DeviceInput) (model.Device, error) {
	if err := validateInput(in); err != nil {
		return model.Device{}, err
	}

	password, err := r.vault.Encrypt(in.Password)
	if err != nil {
		return model.Device{}, err
	}

	enable := password
	if in.EnablePassword != "" {
		if enable, err = r.vault.Encrypt(in.EnablePassword); err != nil {
			return model.Device{}, err
		}
	}

	device := model.Device{
		ID:             uuid.NewString(),
		Hostname:       strings.TrimSpace(in.Hostname),
		IP:             strings.TrimSpace(in.IP),
		Username:       in.Username,
		Password:       password,
		EnablePassword: enable,
		VendorProfile:  in.VendorProfile,
		CaptureCommand: strings.TrimSpace(in.CaptureCommand),
	}

	if device.VendorProfile == "" {
		device.VendorProfile = model.DefaultVendorProfile
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return model.Device{}, err
	}

	devices = append(devices, device)
	if err := writeYAML(r.path, devices); err != nil {
		return model.Device{}, err
	}

	r.logger.WithFields(logrus.Fields{"hostname": device.Hostname, "ip": device.IP}).Info("device added")

	return device, nil
}

// Update applies a partial update to the device at index.
//
// Omitted secrets are preserved. A new password without a new enable
// secret also replaces the enable secret.
func (r *Registry) Update(index int, upd model.DeviceUpdate) (model.Device, error) {
	var (
		password, enable string
		err              error
	)

	if upd.NewPassword != "" {
		if password, err = r.vault.Encrypt(upd.NewPassword); err != nil {
			return model.Device{}, err
		}
	}

	if upd.NewEnablePassword != "" {
		if enable, err = r.vault.Encrypt(upd.NewEnablePassword); err != nil {
			return model.Device{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return model.Device{}, err
	}

	if index < 0 || index >= len(devices) {
		return model.Device{}, errors.Wrapf(model.ErrDeviceNotFound, "invalid device index %d", index)
	}

	old := devices[index]
	updated := old

	if err := copier.CopyWithOption(&updated, &upd, copier.Option{IgnoreEmpty: true}); err != nil {
		return model.Device{}, errors.Wrap(model.ErrConfiguration, "apply update: "+err.Error())
	}

	if password != "" {
		updated.Password = password
		updated.EnablePassword = password
	}

	if enable != "" {
		updated.EnablePassword = enable
	}

	if upd.ClearCaptureCommand {
		updated.CaptureCommand = ""
	}

	devices[index] = updated
	if err := writeYAML(r.path, devices); err != nil {
		return model.Device{}, err
	}

	r.logger.WithFields(logrus.Fields{
		"from":     old.Hostname,
		"hostname": updated.Hostname,
		"ip":       updated.IP,
	}).Info("device updated")

	return updated, nil
}

// Delete removes the device at index and returns it.
func (r *Registry) Delete(index int) (model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return model.Device{}, err
	}

	if index < 0 || index >= len(devices) {
		return model.Device{}, errors.Wrapf(model.ErrDeviceNotFound, "invalid device index %d", index)
	}

	deleted := devices[index]
	devices = append(devices[:index], devices[index+1:]...)

	if err := writeYAML(r.path, devices); err != nil {
		return model.Device{}, err
	}

	r.logger.WithFields(logrus.Fields{"hostname": deleted.Hostname, "ip": deleted.IP}).Info("device deleted")

	return deleted, nil
}

func validateInput(in model.DeviceInput) error {
	fields := []struct{ name, value string }{
		{"hostname", in.Hostname},
		{"ip", in.IP},
		{"username", in.Username},
		{"password", in.Password},
	}

	var missing []string

	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return errors.Wrapf(model.ErrConfiguration, "missing device fields: %s", strings.Join(missing, ", "))
	}

	return nil
}
