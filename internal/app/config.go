package app

import (
	"os"
	"strings"
	"time"

	"github.com/jeremywohl/flatten"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/tastythames/switch-backup/internal/capture"
	"github.com/tastythames/switch-backup/internal/model"
)

const (
	AppName   = "switchbackup"
	envPrefix = "SWITCHBACKUP"
)

// Configuration holds application configuration read from a YAML file or
// set by env variables.
//
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level"`

	// Listen is the address of the metrics, health and job endpoints.
	Listen string `mapstructure:"listen"`

	// Timezone schedules are evaluated in, the local zone when empty.
	Timezone string `mapstructure:"timezone"`

	Paths   PathsConfig     `mapstructure:"paths"`
	SSH     SSHConfig       `mapstructure:"ssh"`
	Capture capture.Options `mapstructure:"capture"`
	Queue   QueueConfig     `mapstructure:"queue"`
}

// PathsConfig locates the persisted state.
type PathsConfig struct {
	Devices   string `mapstructure:"devices"`
	Schedules string `mapstructure:"schedules"`
	Key       string `mapstructure:"key"`
	Backups   string `mapstructure:"backups"`
}

// SSHConfig defines the device transport.
type SSHConfig struct {
	Port             int           `mapstructure:"port"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	SessionTimeout   time.Duration `mapstructure:"session_timeout"`
	DialAttempts     int           `mapstructure:"dial_attempts"`
	KnownHostsFile   string        `mapstructure:"known_hosts_file"`
	LegacyAlgorithms bool          `mapstructure:"legacy_algorithms"`
}

// QueueConfig sizes the capture job queue.
type QueueConfig struct {
	Size int `mapstructure:"size"`
}

func (a *App) setDefaults() {
	opts := capture.DefaultOptions()

	defaults := map[string]interface{}{
		"log_level":                     "info",
		"listen":                        ":9222",
		"timezone":                      "",
		"paths.devices":                 "data/switches.yaml",
		"paths.schedules":               "data/schedules.yaml",
		"paths.key":                     "data/encryption.key",
		"paths.backups":                 "backups",
		"ssh.port":                      22,
		"ssh.connect_timeout":           150 * time.Second,
		"ssh.session_timeout":           150 * time.Second,
		"ssh.dial_attempts":             2,
		"ssh.known_hosts_file":          "",
		"ssh.legacy_algorithms":         false,
		"capture.min_lines":             opts.MinLines,
		"capture.fallback_min_lines":    opts.FallbackMinLines,
		"capture.poll_interval":         opts.PollInterval,
		"capture.poll_ceiling":          opts.PollCeiling,
		"capture.settle_delay":          opts.SettleDelay,
		"capture.prime_delay":           opts.PrimeDelay,
		"capture.exit_delay":            opts.ExitDelay,
		"capture.fallback_delay_factor": opts.FallbackDelayFactor,
		"capture.fallback_max_loops":    opts.FallbackMaxLoops,
		"queue.size":                    32,
	}

	for k, v := range defaults {
		a.v.SetDefault(k, v)
	}
}

// LoadConfiguration loads application configuration
//
// Reads in the cfgFile when available and overrides from environment variables.
func (a *App) LoadConfiguration(cfgFile string) error {
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if cfgFile != "" {
		fh, err := os.Open(cfgFile)
		if err != nil {
			return errors.Wrap(model.ErrConfiguration, err.Error())
		}
		defer fh.Close()

		if err = a.v.ReadConfig(fh); err != nil {
			return errors.Wrap(model.ErrConfiguration, "ReadConfig error:"+err.Error())
		}
	}

	a.setDefaults()

	if err := a.envBindVars(); err != nil {
		return errors.Wrap(model.ErrConfiguration, "env var bind error:"+err.Error())
	}

	if err := a.v.Unmarshal(a.Config); err != nil {
		return errors.Wrap(model.ErrConfiguration, "Unmarshal error: "+err.Error())
	}

	return a.validate()
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (a *App) envBindVars() error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(a.Config, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten config")
	}

	for k := range flat {
		if err := a.v.BindEnv(k); err != nil {
			return errors.Wrap(model.ErrConfiguration, "env var bind error: "+err.Error())
		}
	}

	return nil
}

func (a *App) validate() error {
	c := a.Config

	for name, path := range map[string]string{
		"paths.devices":   c.Paths.Devices,
		"paths.schedules": c.Paths.Schedules,
		"paths.key":       c.Paths.Key,
		"paths.backups":   c.Paths.Backups,
	} {
		if strings.TrimSpace(path) == "" {
			return errors.Wrap(model.ErrConfiguration, name+" is empty")
		}
	}

	if c.Queue.Size <= 0 {
		return errors.Wrap(model.ErrConfiguration, "queue.size must be positive")
	}

	if _, err := a.Location(); err != nil {
		return err
	}

	return nil
}

// Location returns the configured schedule timezone.
func (a *App) Location() (*time.Location, error) {
	if a.Config.Timezone == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(a.Config.Timezone)
	if err != nil {
		return nil, errors.Wrap(model.ErrConfiguration, "timezone: "+err.Error())
	}

	return loc, nil
}
