package gamehub

import (
	"fmt"
	"net/url"
	"time"
)

// Config points the session reporter at a game hub. An empty URL disables it.
type Config struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	GameID  string        `mapstructure:"game_id" yaml:"game_id"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		GameID:  "throne",
		Timeout: 10 * time.Second,
	}
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid gamehub url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gamehub url must be http or https, got %q", u.Scheme)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("gamehub timeout must be positive")
	}
	return nil
}
