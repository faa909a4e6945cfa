package prover

import (
	"errors"
	"fmt"
	"time"
)

const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config configures the proof engine.
type Config struct {
	// Mode selects in-process proving or a remote throne prover.
	Mode string `mapstructure:"mode" yaml:"mode"`
	// KeysDir holds trial.pk and trial.vk. Empty means an ephemeral setup.
	KeysDir string `mapstructure:"keys_dir" yaml:"keys_dir"`
	// AutoSetup runs the circuit setup when keys are missing.
	AutoSetup     bool          `mapstructure:"auto_setup" yaml:"auto_setup"`
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RemoteURL     string        `mapstructure:"remote_url" yaml:"remote_url"`
	// Fingerprint pins the expected verifying key (hex). Empty accepts the loaded key.
	Fingerprint string `mapstructure:"fingerprint" yaml:"fingerprint"`
}

// DefaultConfig returns a local engine with persisted keys.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeLocal,
		KeysDir:       "./data/keys",
		AutoSetup:     true,
		MaxConcurrent: 2,
		Timeout:       2 * time.Minute,
	}
}

// Validate checks the engine configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
	case ModeRemote:
		if c.RemoteURL == "" {
			return errors.New("remote_url is required in remote mode")
		}
		if c.KeysDir == "" {
			return errors.New("keys_dir is required in remote mode to load the verifying key")
		}
	default:
		return fmt.Errorf("unknown prover mode %q", c.Mode)
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("max_concurrent must be positive")
	}
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}
