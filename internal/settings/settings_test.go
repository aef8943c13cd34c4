package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

var target = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x01})

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore()
	if s.DefaultLifetime() != 7*24*time.Hour {
		t.Errorf("expected 7 day default lifetime, got %s", s.DefaultLifetime())
	}
	if s.Mode() != model.ValidateKey {
		t.Errorf("expected KEY mode, got %s", s.Mode())
	}
	if s.Denylist().Len() != 0 {
		t.Error("expected empty denylist")
	}
}

func TestSetDefaultLifetime(t *testing.T) {
	s := NewStore()
	if err := s.SetDefaultLifetime(0); err != nil {
		t.Fatalf("zero lifetime: %v", err)
	}
	if s.DefaultLifetime() != 0 {
		t.Errorf("expected 0, got %s", s.DefaultLifetime())
	}
	if err := s.SetDefaultLifetime(-time.Second); err == nil {
		t.Error("expected error for negative lifetime")
	}
	if s.DefaultLifetime() != 0 {
		t.Error("rejected lifetime must not be stored")
	}
}

func TestValuesRestore(t *testing.T) {
	s := NewStore()
	s.SetMode(model.ValidateAll)
	s.Denylist().Add(target, "ledger")

	v := s.Values()
	other := NewStore()
	if err := other.Restore(v); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if other.Mode() != model.ValidateAll {
		t.Errorf("expected ALL after restore, got %s", other.Mode())
	}
	if !other.Denylist().Contains(target) {
		t.Error("expected denylisted target after restore")
	}

	v.Denylist[principal.Anonymous] = "mutated"
	if s.Denylist().Contains(principal.Anonymous) {
		t.Error("Values must return a copy")
	}
}

func TestLoadConfigMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DefaultLifetime != DefaultLifetime {
		t.Errorf("expected default lifetime, got %s", cfg.DefaultLifetime)
	}
	if cfg.ValidationMode != model.ValidateKey {
		t.Errorf("expected KEY, got %s", cfg.ValidationMode)
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "self: " + target.Text() + "\n" +
		"default_lifetime: 1h30m\n" +
		"validation_mode: update\n" +
		"denylist:\n  " + principal.Anonymous.Text() + ": anon\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Self != target {
		t.Errorf("expected self %s, got %s", target, cfg.Self)
	}
	if cfg.DefaultLifetime != 90*time.Minute {
		t.Errorf("expected 1h30m, got %s", cfg.DefaultLifetime)
	}
	if cfg.ValidationMode != model.ValidateUpdate {
		t.Errorf("expected UPDATE, got %s", cfg.ValidationMode)
	}
	if cfg.Denylist[principal.Anonymous] != "anon" {
		t.Errorf("expected denylist entry, got %v", cfg.Denylist)
	}
	if cfg.Listen != "127.0.0.1:9800" {
		t.Errorf("unspecified fields keep defaults, got listen %q", cfg.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if !s.Denylist().Contains(principal.Anonymous) {
		t.Error("expected seeded denylist")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("validation_mode: SOMETIMES\n"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unknown validation mode")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.State = "redis:foo"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "self") || !strings.Contains(err.Error(), "state") {
		t.Errorf("expected self and state errors, got %v", err)
	}
}

func TestDefaultConfigYAMLParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte(DefaultConfigYAML()), 0o600)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("starter config must parse: %v", err)
	}
	if cfg.DefaultLifetime != DefaultLifetime {
		t.Errorf("expected 168h, got %s", cfg.DefaultLifetime)
	}
}

func TestLoadConfigRateLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "rate_limit:\n" +
		"  default: {max_requests: 5, window: 1m}\n" +
		"  delegates:\n" +
		"    " + target.Text() + ": {max_requests: 1, window: 10s}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.RateLimit.HasLimits() {
		t.Fatal("expected rate limits")
	}
	if got := cfg.RateLimit.For(target); got.MaxRequests != 1 || got.Window != 10*time.Second {
		t.Errorf("unexpected override: %+v", got)
	}
	if got := cfg.RateLimit.For(principal.Anonymous); got.MaxRequests != 5 || got.Window != time.Minute {
		t.Errorf("unexpected default: %+v", got)
	}
}
