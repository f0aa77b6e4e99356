// Package config holds the delegation failure-tracker tunables. Both values
// are adjustable at runtime through the admin surface without a restart, so
// reads go through an atomic snapshot rather than plain struct fields.
package config

import (
	"sync/atomic"
	"time"

	dErrors "authrelay/pkg/domain-errors"
)

// Tunables are the runtime-adjustable values.
type Tunables struct {
	// FailureThreshold is the failure count within the window above which
	// an alert is raised.
	FailureThreshold int
	// FailureWindow is the sliding window length.
	FailureWindow time.Duration
}

// Defaults per the delegation design: 10 failures in 5 minutes.
func Defaults() Tunables {
	return Tunables{
		FailureThreshold: 10,
		FailureWindow:    5 * time.Minute,
	}
}

// Config is a concurrency-safe holder for Tunables.
type Config struct {
	current atomic.Pointer[Tunables]
}

// New creates a Config seeded with the given tunables, validating them.
func New(t Tunables) (*Config, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	c := &Config{}
	c.current.Store(&t)
	return c, nil
}

// Snapshot returns the current tunables. The returned value is a copy;
// callers see a consistent pair even while an update races.
func (c *Config) Snapshot() Tunables {
	return *c.current.Load()
}

// Update replaces the tunables after validation.
func (c *Config) Update(t Tunables) error {
	if err := validate(t); err != nil {
		return err
	}
	c.current.Store(&t)
	return nil
}

func validate(t Tunables) error {
	if t.FailureThreshold < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "failure threshold must be at least 1")
	}
	if t.FailureWindow < time.Second {
		return dErrors.New(dErrors.CodeInvalidInput, "failure window must be at least one second")
	}
	return nil
}
