package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
)

// Config selects and tunes the storage backend.
type Config struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path"    yaml:"path"`
	// DefaultTTL is the lifetime given to entries on write. Zero disables expiry.
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`
	// ExtendThreshold and ExtendTo drive the renewal hint after ledger writes.
	ExtendThreshold time.Duration `mapstructure:"extend_threshold" yaml:"extend_threshold"`
	ExtendTo        time.Duration `mapstructure:"extend_to"        yaml:"extend_to"`
}

// DefaultConfig mirrors a ~30 day ledger lifetime.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendMemory,
		DefaultTTL:      30 * 24 * time.Hour,
		ExtendThreshold: 30 * 24 * time.Hour,
		ExtendTo:        30 * 24 * time.Hour,
	}
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendMemory:
	case BackendPebble:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("store.path is required for the pebble backend")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendMemory, BackendPebble, c.Backend)
	}
	if c.DefaultTTL < 0 || c.ExtendThreshold < 0 || c.ExtendTo < 0 {
		return fmt.Errorf("store ttl values must not be negative")
	}
	return nil
}

// Open builds the configured backend.
func Open(cfg Config, log zerolog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Backend) {
	case BackendPebble:
		return OpenPebble(cfg.Path, cfg.DefaultTTL, log)
	default:
		return NewMemory(cfg.DefaultTTL, log), nil
	}
}
