package model

// DefaultVendorProfile is assigned to devices stored without a profile.
const DefaultVendorProfile = "cisco_ios"

// Device is a persisted device record, secrets are stored as vault ciphertext.
//
// The yaml keys match the switches file written by earlier releases so
// those files load unchanged.
type Device struct {
	ID             string `yaml:"id" json:"id"`
	Hostname       string `yaml:"hostname" json:"hostname"`
	IP             string `yaml:"ip" json:"ip"`
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password" json:"password"`
	EnablePassword string `yaml:"enable_password" json:"enable_password"`
	VendorProfile  string `yaml:"device_type" json:"device_type"`
	CaptureCommand string `yaml:"backup_command,omitempty" json:"backup_command,omitempty"`
}

// DeviceInput carries plaintext fields for a new device.
type DeviceInput struct {
	Hostname       string
	IP             string
	Username       string
	Password       string
	EnablePassword string
	VendorProfile  string
	CaptureCommand string
}

// DeviceUpdate is a partial update, empty fields keep their stored value.
//
// Secrets are named differently from the Device fields so they are never
// copied across without being encrypted first.
type DeviceUpdate struct {
	Hostname          string
	IP                string
	Username          string
	VendorProfile     string
	CaptureCommand    string
	NewPassword       string
	NewEnablePassword string

	// ClearCaptureCommand drops the custom command, an empty CaptureCommand
	// alone keeps it.
	ClearCaptureCommand bool
}
