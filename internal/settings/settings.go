// Package settings holds the proxy's process-wide configuration: the
// default delegation lifetime, the validation mode and the denylist.
package settings

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/callproxy/internal/denylist"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

// Values is a point-in-time copy of all settings.
type Values struct {
	DefaultLifetime time.Duration           `json:"default_lifetime" cbor:"default_lifetime"`
	Mode            model.ValidationMode    `json:"validation_mode" cbor:"validation_mode"`
	Denylist        map[principal.ID]string `json:"denylist" cbor:"denylist"`
}

// Store is the live settings of one proxy. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	lifetime time.Duration
	mode     model.ValidationMode
	denylist *denylist.Denylist
}

// NewStore returns a Store with the documented defaults: a seven day
// lifetime, KEY validation and an empty denylist.
func NewStore() *Store {
	return &Store{
		lifetime: DefaultLifetime,
		mode:     model.DefaultValidationMode,
		denylist: denylist.New(nil),
	}
}

// FromConfig builds a Store from a loaded configuration.
func FromConfig(cfg *Config) (*Store, error) {
	s := NewStore()
	if err := s.SetDefaultLifetime(cfg.DefaultLifetime); err != nil {
		return nil, err
	}
	if cfg.ValidationMode != "" {
		s.SetMode(cfg.ValidationMode)
	}
	s.denylist = denylist.New(cfg.Denylist)
	return s, nil
}

// DefaultLifetime returns the lifetime given to grants that name none.
func (s *Store) DefaultLifetime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifetime
}

// SetDefaultLifetime changes the default lifetime. Zero is allowed and
// makes every default grant expire immediately.
func (s *Store) SetDefaultLifetime(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("default lifetime must not be negative: %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifetime = d
	return nil
}

// Mode returns the current validation mode.
func (s *Store) Mode() model.ValidationMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the validation mode.
func (s *Store) SetMode(m model.ValidationMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Denylist returns the live denylist.
func (s *Store) Denylist() *denylist.Denylist {
	return s.denylist
}

// Values returns a copy of all settings.
func (s *Store) Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Values{
		DefaultLifetime: s.lifetime,
		Mode:            s.mode,
		Denylist:        s.denylist.ToMap(),
	}
}

// Restore replaces all settings with v.
func (s *Store) Restore(v Values) error {
	if v.DefaultLifetime < 0 {
		return fmt.Errorf("default lifetime must not be negative: %s", v.DefaultLifetime)
	}
	mode := v.Mode
	if mode == "" {
		mode = model.DefaultValidationMode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifetime = v.DefaultLifetime
	s.mode = mode
	s.denylist.Replace(v.Denylist)
	return nil
}
