package suite

import (
	"fmt"
	"time"
)

// RunMode selects how requests for a route are issued.
type RunMode string

const (
	RunModeSequence RunMode = "sequence"
	RunModeParallel RunMode = "parallel"
)

// IsValid returns true if the run mode is known to the measurement engine.
func (m RunMode) IsValid() bool {
	return m == RunModeSequence || m == RunModeParallel
}

// Options controls how a suite is benchmarked.
type Options struct {
	Debug                 bool    `yaml:"debug" toml:"debug" json:"debug"`
	RunMode               RunMode `yaml:"runMode" toml:"runMode" json:"runMode"`
	MaxConcurrentRequests int     `yaml:"maxConcurrentRequests" toml:"maxConcurrentRequests" json:"maxConcurrentRequests"`
	Delay                 int     `yaml:"delay" toml:"delay" json:"delay"`       // milliseconds between requests
	MaxTime               float64 `yaml:"maxTime" toml:"maxTime" json:"maxTime"` // seconds per route
	MinSamples            int     `yaml:"minSamples" toml:"minSamples" json:"minSamples"`
	StopOnError           bool    `yaml:"stopOnError" toml:"stopOnError" json:"stopOnError"`
}

// DefaultOptions returns the option set every root suite starts from.
func DefaultOptions() Options {
	return Options{
		Debug:                 false,
		RunMode:               RunModeSequence,
		MaxConcurrentRequests: 100,
		Delay:                 0,
		MaxTime:               10,
		MinSamples:            20,
		StopOnError:           true,
	}
}

// IsZero reports whether no option has been set at all.
func (o Options) IsZero() bool {
	return o == Options{}
}

// DelayDuration returns the delay between requests as a time.Duration.
func (o Options) DelayDuration() time.Duration {
	return time.Duration(o.Delay) * time.Millisecond
}

// MaxTimeDuration returns the per-route time budget as a time.Duration.
func (o Options) MaxTimeDuration() time.Duration {
	return time.Duration(o.MaxTime * float64(time.Second))
}

// Validate checks the options can drive a measurement.
func (o Options) Validate() error {
	if !o.RunMode.IsValid() {
		return fmt.Errorf("invalid runMode %q: must be one of %s, %s", o.RunMode, RunModeSequence, RunModeParallel)
	}
	if o.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("maxConcurrentRequests must be positive, got %d", o.MaxConcurrentRequests)
	}
	if o.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %d", o.Delay)
	}
	if o.MaxTime <= 0 {
		return fmt.Errorf("maxTime must be positive, got %v", o.MaxTime)
	}
	if o.MinSamples <= 0 {
		return fmt.Errorf("minSamples must be positive, got %d", o.MinSamples)
	}
	return nil
}

// PartialOptions is a sparse set of option overrides. Nil fields are unset.
type PartialOptions struct {
	Debug                 *bool    `yaml:"debug,omitempty" toml:"debug,omitempty" json:"debug,omitempty"`
	RunMode               *RunMode `yaml:"runMode,omitempty" toml:"runMode,omitempty" json:"runMode,omitempty"`
	MaxConcurrentRequests *int     `yaml:"maxConcurrentRequests,omitempty" toml:"maxConcurrentRequests,omitempty" json:"maxConcurrentRequests,omitempty"`
	Delay                 *int     `yaml:"delay,omitempty" toml:"delay,omitempty" json:"delay,omitempty"`
	MaxTime               *float64 `yaml:"maxTime,omitempty" toml:"maxTime,omitempty" json:"maxTime,omitempty"`
	MinSamples            *int     `yaml:"minSamples,omitempty" toml:"minSamples,omitempty" json:"minSamples,omitempty"`
	StopOnError           *bool    `yaml:"stopOnError,omitempty" toml:"stopOnError,omitempty" json:"stopOnError,omitempty"`
}

// IsEmpty reports whether no override is set.
func (p PartialOptions) IsEmpty() bool {
	return p == PartialOptions{}
}

// ApplyTo returns base with every set override applied.
func (p PartialOptions) ApplyTo(base Options) Options {
	if p.Debug != nil {
		base.Debug = *p.Debug
	}
	if p.RunMode != nil {
		base.RunMode = *p.RunMode
	}
	if p.MaxConcurrentRequests != nil {
		base.MaxConcurrentRequests = *p.MaxConcurrentRequests
	}
	if p.Delay != nil {
		base.Delay = *p.Delay
	}
	if p.MaxTime != nil {
		base.MaxTime = *p.MaxTime
	}
	if p.MinSamples != nil {
		base.MinSamples = *p.MinSamples
	}
	if p.StopOnError != nil {
		base.StopOnError = *p.StopOnError
	}
	return base
}
