package recovery

import "time"

// Config holds the engine tunables.
type Config struct {
	FallbackEnabled        bool          `yaml:"fallback_enabled"`
	FallbackQuality        int           `yaml:"fallback_quality"`       // 0-100, confidence of synthesized output
	MaxAttemptsPerError    int           `yaml:"max_attempts_per_error"` // ceiling across all strategies
	AttemptTimeout         time.Duration `yaml:"attempt_timeout"`        // caps each strategy's own timeout, 0 = strategy timeout only (30s when neither is set)
	PreservePartialResults bool          `yaml:"preserve_partial_results"`

	Retention     time.Duration `yaml:"retention"`      // resolved records older than this are swept
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 = derived from retention

	MajorPhases    []string `yaml:"major_phases"`
	CriticalPhases []string `yaml:"critical_phases"`

	NetworkRetry RetryConfig `yaml:"network_retry"`
}

// RetryConfig shapes the backoff used by the network retry strategy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DefaultConfig returns the reference tunables.
func DefaultConfig() Config {
	return Config{
		FallbackEnabled:        true,
		FallbackQuality:        60,
		MaxAttemptsPerError:    3,
		AttemptTimeout:         30 * time.Second,
		PreservePartialResults: true,
		Retention:              time.Hour,
		SweepInterval:          5 * time.Minute,
		MajorPhases:            []string{"aiGeneration", "validation", "optimization"},
		CriticalPhases:         []string{"packaging", "export"},
		NetworkRetry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
// FallbackEnabled and PreservePartialResults are taken as given.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.FallbackQuality <= 0 {
		c.FallbackQuality = d.FallbackQuality
	}
	if c.FallbackQuality > 100 {
		c.FallbackQuality = 100
	}
	if c.MaxAttemptsPerError <= 0 {
		c.MaxAttemptsPerError = d.MaxAttemptsPerError
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = min(max(c.Retention/10, time.Minute), time.Hour)
	}
	if c.MajorPhases == nil {
		c.MajorPhases = d.MajorPhases
	}
	if c.CriticalPhases == nil {
		c.CriticalPhases = d.CriticalPhases
	}
	if c.NetworkRetry.MaxAttempts <= 0 {
		c.NetworkRetry.MaxAttempts = d.NetworkRetry.MaxAttempts
	}
	if c.NetworkRetry.InitialDelay <= 0 {
		c.NetworkRetry.InitialDelay = d.NetworkRetry.InitialDelay
	}
	if c.NetworkRetry.MaxDelay <= 0 {
		c.NetworkRetry.MaxDelay = d.NetworkRetry.MaxDelay
	}
	return c
}

// ConfigUpdate is a partial change applied with Engine.UpdateConfig. Nil fields are left alone.
type ConfigUpdate struct {
	FallbackEnabled        *bool
	FallbackQuality        *int
	MaxAttemptsPerError    *int
	AttemptTimeout         *time.Duration
	PreservePartialResults *bool
}

// AsUpdate turns a full config into an update touching every runtime tunable.
func (c Config) AsUpdate() ConfigUpdate {
	return ConfigUpdate{
		FallbackEnabled:        &c.FallbackEnabled,
		FallbackQuality:        &c.FallbackQuality,
		MaxAttemptsPerError:    &c.MaxAttemptsPerError,
		AttemptTimeout:         &c.AttemptTimeout,
		PreservePartialResults: &c.PreservePartialResults,
	}
}

func (c Config) apply(u ConfigUpdate) Config {
	if u.FallbackEnabled != nil {
		c.FallbackEnabled = *u.FallbackEnabled
	}
	if u.FallbackQuality != nil {
		c.FallbackQuality = min(max(*u.FallbackQuality, 0), 100)
	}
	if u.MaxAttemptsPerError != nil && *u.MaxAttemptsPerError > 0 {
		c.MaxAttemptsPerError = *u.MaxAttemptsPerError
	}
	if u.AttemptTimeout != nil && *u.AttemptTimeout >= 0 {
		c.AttemptTimeout = *u.AttemptTimeout
	}
	if u.PreservePartialResults != nil {
		c.PreservePartialResults = *u.PreservePartialResults
	}
	return c
}
