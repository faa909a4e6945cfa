package jobs

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/x/prover"
)

// State is the lifecycle stage of a proof job.
type State string

const (
	StateQueued   State = "queued"
	StateProving  State = "proving"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// Done reports whether the job reached a terminal state.
func (s State) Done() bool {
	return s == StateComplete || s == StateFailed
}

var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("job queue is full")
	ErrClosed    = errors.New("job tracker closed")
)

// Job is the public view of an asynchronous proof request. The private
// solution is never part of it.
type Job struct {
	ID         string           `json:"id"`
	State      State            `json:"state"`
	TrialID    common.Hash      `json:"trial_id"`
	PlayerID   common.Hash      `json:"player_id"`
	RoundID    uint32           `json:"round_id"`
	Artifact   *prover.Artifact `json:"artifact,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// Config tunes the worker pool.
type Config struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	StatsInterval time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`
}

func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     64,
		Retention:     time.Hour,
		StatsInterval: 30 * time.Second,
	}
}

// Validate checks the worker pool configuration.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return errors.New("workers must be positive")
	case c.QueueSize <= 0:
		return errors.New("queue_size must be positive")
	case c.Retention <= 0:
		return errors.New("retention must be positive")
	}
	return nil
}
