package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	apisrv "github.com/compose-network/throne/server/api"
	"github.com/compose-network/throne/x/auth"
	"github.com/compose-network/throne/x/gamehub"
	"github.com/compose-network/throne/x/jobs"
	"github.com/compose-network/throne/x/progression"
	"github.com/compose-network/throne/x/prover"
	roundscheduler "github.com/compose-network/throne/x/round-scheduler"
	"github.com/compose-network/throne/x/store"
)

// Config holds the complete application configuration
type Config struct {
	API         apisrv.Config         `mapstructure:"api"         yaml:"api"`
	Log         LogConfig             `mapstructure:"log"         yaml:"log"`
	Metrics     MetricsConfig         `mapstructure:"metrics"     yaml:"metrics"`
	Store       store.Config          `mapstructure:"store"       yaml:"store"`
	Prover      prover.Config         `mapstructure:"prover"      yaml:"prover"`
	Attestation AttestationConfig     `mapstructure:"attestation" yaml:"attestation"`
	Progression progression.Config    `mapstructure:"progression" yaml:"progression"`
	Trials      TrialsConfig          `mapstructure:"trials"      yaml:"trials"`
	Auth        auth.Config           `mapstructure:"auth"        yaml:"auth"`
	GameHub     gamehub.Config        `mapstructure:"gamehub"     yaml:"gamehub"`
	Rounds      roundscheduler.Config `mapstructure:"rounds"      yaml:"rounds"`
	Jobs        JobsConfig            `mapstructure:"jobs"        yaml:"jobs"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// MetricsConfig toggles the /metrics endpoint on the API server
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// AttestationConfig holds the backend Ed25519 key. With only a public key the
// node verifies attestations but cannot issue them.
type AttestationConfig struct {
	PrivateKey string `mapstructure:"private_key" yaml:"private_key" env:"ATTESTATION_PRIVATE_KEY"`
	PublicKey  string `mapstructure:"public_key"  yaml:"public_key"  env:"ATTESTATION_PUBLIC_KEY"`
	// Issuer exposes POST /v1/solutions. Requires PrivateKey.
	Issuer bool `mapstructure:"issuer" yaml:"issuer"`
}

// TrialsConfig points at a YAML trial catalog. Empty uses the built-in trials.
type TrialsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// JobsConfig enables asynchronous proof jobs.
type JobsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	jobs.Config `mapstructure:",squash" yaml:",inline"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("api.listen_addr", d.API.ListenAddr)
	v.SetDefault("api.read_header_timeout", d.API.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)
	v.SetDefault("api.idle_timeout", d.API.IdleTimeout)
	v.SetDefault("api.max_header_bytes", d.API.MaxHeaderBytes)
	v.SetDefault("api.cors_origins", []string{})

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.default_ttl", d.Store.DefaultTTL)
	v.SetDefault("store.extend_threshold", d.Store.ExtendThreshold)
	v.SetDefault("store.extend_to", d.Store.ExtendTo)

	v.SetDefault("prover.mode", d.Prover.Mode)
	v.SetDefault("prover.keys_dir", d.Prover.KeysDir)
	v.SetDefault("prover.auto_setup", d.Prover.AutoSetup)
	v.SetDefault("prover.max_concurrent", d.Prover.MaxConcurrent)
	v.SetDefault("prover.timeout", d.Prover.Timeout)
	v.SetDefault("prover.remote_url", "")
	v.SetDefault("prover.fingerprint", "")

	v.SetDefault("attestation.private_key", "")
	v.SetDefault("attestation.public_key", "")
	v.SetDefault("attestation.issuer", d.Attestation.Issuer)

	v.SetDefault("progression.required_trials", d.Progression.RequiredTrials)
	v.SetDefault("progression.lock_on_king", d.Progression.LockOnKing)
	v.SetDefault("progression.lock_stripes", d.Progression.LockStripes)
	v.SetDefault("progression.ttl_threshold", d.Progression.TTLThreshold)
	v.SetDefault("progression.ttl_extend_to", d.Progression.TTLExtendTo)
	v.SetDefault("progression.admin", "")
	v.SetDefault("progression.auto_initialize", d.Progression.AutoInitialize)

	v.SetDefault("trials.path", "")

	v.SetDefault("auth.require_signatures", d.Auth.RequireSignatures)
	v.SetDefault("auth.max_body_bytes", d.Auth.MaxBodyBytes)
	v.SetDefault("auth.max_request_age", d.Auth.MaxRequestAge)

	v.SetDefault("gamehub.url", "")
	v.SetDefault("gamehub.api_key", "")
	v.SetDefault("gamehub.game_id", d.GameHub.GameID)
	v.SetDefault("gamehub.timeout", d.GameHub.Timeout)

	v.SetDefault("rounds.enabled", false)
	v.SetDefault("rounds.genesis", 0)
	v.SetDefault("rounds.duration", d.Rounds.Duration)

	v.SetDefault("jobs.enabled", d.Jobs.Enabled)
	v.SetDefault("jobs.workers", d.Jobs.Workers)
	v.SetDefault("jobs.queue_size", d.Jobs.QueueSize)
	v.SetDefault("jobs.retention", d.Jobs.Retention)
	v.SetDefault("jobs.stats_interval", d.Jobs.StatsInterval)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Prover.Validate(); err != nil {
		return fmt.Errorf("prover: %w", err)
	}
	if err := c.validateAttestation(); err != nil {
		return err
	}
	if err := c.validateProgression(); err != nil {
		return err
	}
	if err := c.GameHub.Validate(); err != nil {
		return fmt.Errorf("gamehub: %w", err)
	}
	if err := c.Rounds.Validate(); err != nil {
		return fmt.Errorf("rounds: %w", err)
	}
	if c.Jobs.Enabled {
		if err := c.Jobs.Config.Validate(); err != nil {
			return fmt.Errorf("jobs: %w", err)
		}
	}
	if c.Auth.MaxBodyBytes <= 0 {
		return fmt.Errorf("auth.max_body_bytes must be positive, got %d", c.Auth.MaxBodyBytes)
	}
	if c.Auth.MaxRequestAge < 0 {
		return fmt.Errorf("auth.max_request_age must not be negative, got %s", c.Auth.MaxRequestAge)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

func (c *Config) validateAttestation() error {
	if c.Attestation.Issuer && strings.TrimSpace(c.Attestation.PrivateKey) == "" {
		return fmt.Errorf("attestation.issuer requires attestation.private_key")
	}
	return nil
}

func (c *Config) validateProgression() error {
	if err := c.Progression.Validate(); err != nil {
		return fmt.Errorf("progression: %w", err)
	}
	if c.Rounds.Enabled && !common.IsHexAddress(c.Progression.Admin) {
		return fmt.Errorf("rounds.enabled requires progression.admin")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API: apisrv.DefaultConfig(),
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Store:       store.DefaultConfig(),
		Prover:      prover.DefaultConfig(),
		Progression: progression.DefaultConfig(),
		Auth:        auth.DefaultConfig(),
		GameHub:     gamehub.DefaultConfig(),
		Rounds:      roundscheduler.DefaultConfig(),
		Jobs: JobsConfig{
			Enabled: true,
			Config:  jobs.DefaultConfig(),
		},
	}
}
