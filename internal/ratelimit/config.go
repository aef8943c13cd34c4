package ratelimit

import (
	"fmt"
	"time"

	"github.com/ppiankov/callproxy/internal/principal"
)

// Limit caps the number of delegated calls in a fixed window.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Enabled reports whether the limit restricts anything.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// Config holds the limit applied to every delegate and per-delegate
// overrides. An override replaces the default entirely.
type Config struct {
	Default   Limit                  `yaml:"default"`
	Delegates map[principal.ID]Limit `yaml:"delegates"`
}

// For returns the limit that applies to delegate.
func (c Config) For(delegate principal.ID) Limit {
	if l, ok := c.Delegates[delegate]; ok {
		return l
	}
	return c.Default
}

// HasLimits returns true if any limit is configured.
func (c Config) HasLimits() bool {
	if c.Default.Enabled() {
		return true
	}
	for _, l := range c.Delegates {
		if l.Enabled() {
			return true
		}
	}
	return false
}

// Validate rejects negative values.
func (c Config) Validate() error {
	check := func(who string, l Limit) error {
		if l.MaxRequests < 0 || l.Window < 0 {
			return fmt.Errorf("rate_limit %s: max_requests and window must not be negative", who)
		}
		return nil
	}
	if err := check("default", c.Default); err != nil {
		return err
	}
	for id, l := range c.Delegates {
		if err := check(id.Text(), l); err != nil {
			return err
		}
	}
	return nil
}
