package roundscheduler

import (
	"errors"
	"time"
)

// DefaultDuration is the round length used when timed rounds are enabled
// without an explicit duration.
const DefaultDuration = 24 * time.Hour

// Config enables timed rounds. Ticks fire at Genesis + k*Duration.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Genesis is a unix timestamp in seconds. Zero starts the schedule at Start.
	Genesis  int64         `mapstructure:"genesis" yaml:"genesis"`
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
}

func DefaultConfig() Config {
	return Config{Duration: DefaultDuration}
}

// GenesisTime returns Genesis as a time; zero when unset.
func (c Config) GenesisTime() time.Time {
	if c.Genesis == 0 {
		return time.Time{}
	}
	return time.Unix(c.Genesis, 0).UTC()
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Duration <= 0 {
		return errors.New("round duration must be positive")
	}
	if c.Genesis < 0 {
		return errors.New("round genesis cannot be negative")
	}
	return nil
}
