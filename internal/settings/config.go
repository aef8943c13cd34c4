package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/callproxy/internal/alert"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/ratelimit"
)

// DefaultLifetime is the delegation lifetime used when a grant names none.
const DefaultLifetime = 7 * 24 * time.Hour

// Config is the on-disk configuration of a proxy instance.
type Config struct {
	Self             principal.ID            `yaml:"self"`
	Listen           string                  `yaml:"listen"`
	MetricsListen    string                  `yaml:"metrics_listen"`
	OwnersFile       string                  `yaml:"owners_file"`
	DefaultLifetime  time.Duration           `yaml:"default_lifetime"`
	ValidationMode   model.ValidationMode    `yaml:"validation_mode"`
	Denylist         map[principal.ID]string `yaml:"denylist"`
	Targets          map[principal.ID]string `yaml:"targets"`
	AuditLog         string                  `yaml:"audit_log"`
	State            string                  `yaml:"state"`
	SnapshotInterval time.Duration           `yaml:"snapshot_interval"`
	Alerts           []alert.AlertConfig     `yaml:"alerts"`
	RateLimit        ratelimit.Config        `yaml:"rate_limit"`
	LogLevel         string                  `yaml:"log_level"`
	LogJSON          bool                    `yaml:"log_json"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:9800",
		DefaultLifetime: DefaultLifetime,
		ValidationMode:  model.DefaultValidationMode,
		Denylist:        map[principal.ID]string{},
		Targets:         map[principal.ID]string{},
		LogLevel:        "info",
	}
}

// DefaultDir returns ~/.callproxy, or "" if the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".callproxy")
}

// LoadConfig loads configuration from a YAML file.
// Empty path falls back to ~/.callproxy/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		dir := DefaultDir()
		if dir == "" {
			return DefaultConfig(), nil
		}
		path = filepath.Join(dir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields a running proxy cannot do without.
func (c *Config) Validate() error {
	var errs []error
	if c.Self == principal.Management || c.Self.IsAnonymous() {
		errs = append(errs, errors.New("self: proxy principal must be set"))
	}
	if c.DefaultLifetime < 0 {
		errs = append(errs, fmt.Errorf("default_lifetime: must not be negative (got %s)", c.DefaultLifetime))
	}
	if c.SnapshotInterval < 0 {
		errs = append(errs, fmt.Errorf("snapshot_interval: must not be negative (got %s)", c.SnapshotInterval))
	}
	if c.State != "" && !strings.HasPrefix(c.State, "file:") && !strings.HasPrefix(c.State, "sqlite:") {
		errs = append(errs, fmt.Errorf("state: want file:<path> or sqlite:<path>, got %q", c.State))
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, err)
	}
	for target, addr := range c.Targets {
		if addr == "" {
			errs = append(errs, fmt.Errorf("targets: empty address for %s", target))
		}
	}
	return errors.Join(errs...)
}

// DefaultConfigYAML returns a commented starter configuration.
func DefaultConfigYAML() string {
	return `# callproxy configuration

# Principal of this proxy. Forwarding to it is refused as a self-call.
# self: <principal text>

# gRPC listen address and Prometheus metrics address.
listen: 127.0.0.1:9800
metrics_listen: ""

# YAML file listing owner principals. Reloaded on change.
owners_file: ~/.callproxy/owners.yaml

# Lifetime of a delegation when the grant does not name one.
default_lifetime: 168h

# Which in-scope delegated calls need owner approval: ALL, UPDATE or KEY.
validation_mode: KEY

# Targets the proxy never forwards to (principal: label).
denylist: {}

# gRPC address of each forwarding target (principal: host:port).
targets: {}

# Hash-chained decision log.
audit_log: ~/.callproxy/audit.jsonl

# Where proxy state is saved on shutdown: file:<path> or sqlite:<path>.
state: file:~/.callproxy/state.cbor
snapshot_interval: 0s

# Webhooks notified on proxy decisions.
alerts: []
#  - url: https://hooks.slack.com/services/...
#    format: slack
#    events: [require_approval, deny]

# Per-delegate call limits. Owners are never limited.
rate_limit:
  default: {max_requests: 0, window: 0s}
#  delegates:
#    <principal>: {max_requests: 10, window: 1m}

log_level: info
log_json: false
`
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
