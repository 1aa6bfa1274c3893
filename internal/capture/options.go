package capture

import "time"

// Options tunes the capture protocol. The thresholds and delays are
// operational defaults, not device guarantees.
type Options struct {
	// MinLines is the interactive tier validation threshold.
	MinLines int `mapstructure:"min_lines"`
	// FallbackMinLines is the last resort tier validation threshold.
	FallbackMinLines int `mapstructure:"fallback_min_lines"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PollCeiling bounds the poll loop of one dump command.
	PollCeiling time.Duration `mapstructure:"poll_ceiling"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	PrimeDelay  time.Duration `mapstructure:"prime_delay"`
	ExitDelay   time.Duration `mapstructure:"exit_delay"`

	FallbackDelayFactor float64 `mapstructure:"fallback_delay_factor"`
	FallbackMaxLoops    int     `mapstructure:"fallback_max_loops"`
}

func DefaultOptions() Options {
	return Options{
		MinLines:            20,
		FallbackMinLines:    10,
		PollInterval:        3 * time.Second,
		PollCeiling:         60 * time.Second,
		SettleDelay:         2 * time.Second,
		PrimeDelay:          time.Second,
		ExitDelay:           time.Second,
		FallbackDelayFactor: 5,
		FallbackMaxLoops:    3000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()

	if o.MinLines <= 0 {
		o.MinLines = d.MinLines
	}

	if o.FallbackMinLines <= 0 {
		o.FallbackMinLines = d.FallbackMinLines
	}

	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}

	if o.PollCeiling <= 0 {
		o.PollCeiling = d.PollCeiling
	}

	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}

	if o.PrimeDelay < 0 {
		o.PrimeDelay = 0
	}

	if o.ExitDelay < 0 {
		o.ExitDelay = 0
	}

	if o.FallbackDelayFactor <= 0 {
		o.FallbackDelayFactor = d.FallbackDelayFactor
	}

	if o.FallbackMaxLoops <= 0 {
		o.FallbackMaxLoops = d.FallbackMaxLoops
	}

	return o
}
