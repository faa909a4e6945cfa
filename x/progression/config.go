package progression

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultRequiredTrials matches the size of the built-in trial catalog.
const DefaultRequiredTrials = 7

// Config holds progression settings.
type Config struct {
	// RequiredTrials is used by auto-initialization.
	RequiredTrials uint32 `mapstructure:"required_trials" yaml:"required_trials"`
	// LockOnKing locks the round when its King is crowned.
	LockOnKing bool `mapstructure:"lock_on_king" yaml:"lock_on_king"`
	// LockStripes is the number of per-player submission locks.
	LockStripes int `mapstructure:"lock_stripes" yaml:"lock_stripes"`

	TTLThreshold time.Duration `mapstructure:"ttl_threshold" yaml:"ttl_threshold"`
	TTLExtendTo  time.Duration `mapstructure:"ttl_extend_to" yaml:"ttl_extend_to"`

	// Admin, when set, initializes an empty store on startup.
	Admin          string `mapstructure:"admin"           yaml:"admin"`
	AutoInitialize bool   `mapstructure:"auto_initialize" yaml:"auto_initialize"`
}

// DefaultConfig returns the default progression settings.
func DefaultConfig() Config {
	return Config{
		RequiredTrials: DefaultRequiredTrials,
		LockOnKing:     true,
		LockStripes:    256,
		TTLThreshold:   7 * 24 * time.Hour,
		TTLExtendTo:    30 * 24 * time.Hour,
		AutoInitialize: true,
	}
}

func (c Config) Validate() error {
	if c.RequiredTrials == 0 {
		return fmt.Errorf("required_trials must be positive")
	}
	if c.LockStripes <= 0 {
		return fmt.Errorf("lock_stripes must be positive")
	}
	if c.TTLExtendTo < c.TTLThreshold {
		return fmt.Errorf("ttl_extend_to (%s) must not be below ttl_threshold (%s)", c.TTLExtendTo, c.TTLThreshold)
	}
	if c.Admin != "" && !common.IsHexAddress(c.Admin) {
		return fmt.Errorf("admin %q is not a hex address", c.Admin)
	}
	return nil
}

// AdminAddress parses Admin. The zero address is returned when unset.
func (c Config) AdminAddress() common.Address {
	return common.HexToAddress(c.Admin)
}
