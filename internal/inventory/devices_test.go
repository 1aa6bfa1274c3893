package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/switch-backup/internal/model"
	"github.com/tastythames/switch-backup/internal/vault"
)

func newTestRegistry(t *testing.T) (*Registry, *vault.Vault, string) {
	t.Helper()

	v, err := vault.New([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "switches.yaml")

	return NewRegistry(path, v, logrus.New()), v, path
}

func fixtureInput(hostname string) model.DeviceInput {
	return model.DeviceInput{
		Hostname: hostname,
		IP:       "10.0.0.1",
		Username: "admin",
		Password: "plain-password",
	}
}

func TestRegistryAddEncryptsSecrets(t *testing.T) {
	r, v, path := newTestRegistry(t)

	in := fixtureInput("core-sw1")
	in.EnablePassword = "plain-enable"

	d, err := r.Add(in)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, model.DefaultVendorProfile, d.VendorProfile)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plain-password")
	assert.NotContains(t, string(raw), "plain-enable")

	pw, err := v.Decrypt(d.Password)
	require.NoError(t, err)
	assert.Equal(t, "plain-password", pw)

	en, err := v.Decrypt(d.EnablePassword)
	require.NoError(t, err)
	assert.Equal(t, "plain-enable", en)
}

func TestRegistryAddEnableDefaultsToPassword(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	d, err := r.Add(fixtureInput("sw"))
	require.NoError(t, err)
	assert.Equal(t, d.Password, d.EnablePassword)
}

func TestRegistryAddMissingFields(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	_, err := r.Add(model.DeviceInput{Hostname: "sw"})
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Contains(t, err.Error(), "ip, username, password")
}

func TestRegistryLoadNormalizesLegacy(t *testing.T) {
	r, _, path := newTestRegistry(t)

	legacy := `[
    {"hostname": "old-sw", "ip": "192.0.2.10", "username": "admin", "password": "gAAAAct"},
    {"hostname": "edge", "ip": "192.0.2.11", "username": "admin", "password": "gAAAAp", "enable_password": "gAAAAe", "device_type": "juniper_junos"}
]`
	require.NoError(t, os.WriteFile(path, []byte("\xef\xbb\xbf"+legacy), 0o600))

	devices, err := r.List()
	require.NoError(t, err)
	require.Len(t, devices, 2)

	for _, d := range devices {
		assert.NotEmpty(t, d.EnablePassword)
		assert.NotEmpty(t, d.ID)
	}

	assert.Equal(t, "gAAAAct", devices[0].EnablePassword)
	assert.Equal(t, model.DefaultVendorProfile, devices[0].VendorProfile)
	assert.Equal(t, "gAAAAe", devices[1].EnablePassword)
	assert.Equal(t, "juniper_junos", devices[1].VendorProfile)

	// ids are persisted on first load
	again, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, devices[0].ID, again[0].ID)
	assert.Equal(t, devices[1].ID, again[1].ID)
}

func TestRegistryUpdatePartial(t *testing.T) {
	tests := []struct {
		name        string
		update      model.DeviceUpdate
		wantPass    string
		wantEnable  string
		wantHost    string
		wantCommand string
	}{
		{
			name:       "metadata only keeps secrets",
			update:     model.DeviceUpdate{Hostname: "renamed"},
			wantPass:   "plain-password",
			wantEnable: "plain-enable",
			wantHost:   "renamed",
		},
		{
			name:       "new password replaces enable",
			update:     model.DeviceUpdate{NewPassword: "new-pass"},
			wantPass:   "new-pass",
			wantEnable: "new-pass",
			wantHost:   "sw1",
		},
		{
			name:       "both secrets",
			update:     model.DeviceUpdate{NewPassword: "new-pass", NewEnablePassword: "new-enable"},
			wantPass:   "new-pass",
			wantEnable: "new-enable",
			wantHost:   "sw1",
		},
		{
			name:        "enable only",
			update:      model.DeviceUpdate{NewEnablePassword: "new-enable", CaptureCommand: "show run"},
			wantPass:    "plain-password",
			wantEnable:  "new-enable",
			wantHost:    "sw1",
			wantCommand: "show run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, v, _ := newTestRegistry(t)

			in := fixtureInput("sw1")
			in.EnablePassword = "plain-enable"
			added, err := r.Add(in)
			require.NoError(t, err)

			got, err := r.Update(0, tt.update)
			require.NoError(t, err)

			assert.Equal(t, added.ID, got.ID)
			assert.Equal(t, tt.wantHost, got.Hostname)
			assert.Equal(t, "10.0.0.1", got.IP)
			assert.Equal(t, tt.wantCommand, got.CaptureCommand)

			pw, err := v.Decrypt(got.Password)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPass, pw)

			en, err := v.Decrypt(got.EnablePassword)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnable, en)
		})
	}
}

func TestRegistryUpdateClearsCaptureCommand(t *testing.T) {
	tests := []struct {
		name        string
		update      model.DeviceUpdate
		wantCommand string
	}{
		{
			name:        "empty command keeps it",
			update:      model.DeviceUpdate{Hostname: "renamed"},
			wantCommand: "show full-configuration",
		},
		{
			name:        "clear drops it",
			update:      model.DeviceUpdate{ClearCaptureCommand: true},
			wantCommand: "",
		},
		{
			name:        "replace",
			update:      model.DeviceUpdate{CaptureCommand: "show startup-config"},
			wantCommand: "show startup-config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRegistry(t)

			in := fixtureInput("fw1")
			in.CaptureCommand = "show full-configuration"
			_, err := r.Add(in)
			require.NoError(t, err)

			_, err = r.Update(0, tt.update)
			require.NoError(t, err)

			got, err := r.Get(0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCommand, got.CaptureCommand)
			assert.Equal(t, "10.0.0.1", got.IP)
		})
	}
}

func TestRegistryIndexErrors(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	_, err := r.Get(0)
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)

	_, err = r.Update(-1, model.DeviceUpdate{})
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)

	_, err = r.Delete(3)
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)

	_, _, err = r.GetByID("missing")
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)
}

func TestRegistryDelete(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	for _, h := range []string{"a", "b", "c"} {
		_, err := r.Add(fixtureInput(h))
		require.NoError(t, err)
	}

	b, idx, err := r.GetByID(mustGet(t, r, 1).ID)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	deleted, err := r.Delete(1)
	require.NoError(t, err)
	assert.Equal(t, b.ID, deleted.ID)

	devices, err := r.List()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "a", devices[0].Hostname)
	assert.Equal(t, "c", devices[1].Hostname)
}

func TestRegistryConcurrentAdds(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	var wg sync.WaitGroup

	count := 20
	for i := 0; i < count; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := r.Add(fixtureInput("sw"))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	devices, err := r.List()
	require.NoError(t, err)
	assert.Len(t, devices, count)
}

func TestRegistryCorruptFile(t *testing.T) {
	r, _, path := newTestRegistry(t)
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0o600))

	_, err := r.List()
	assert.ErrorIs(t, err, model.ErrStorage)
}

func mustGet(t *testing.T, r *Registry, index int) model.Device {
	t.Helper()

	d, err := r.Get(index)
	require.NoError(t, err)

	return d
}
