package progression

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PlayerStatus is a player's position within a round.
type PlayerStatus string

const (
	StatusNotStarted PlayerStatus = "not_started"
	StatusInProgress PlayerStatus = "in_progress"
	StatusCompleted  PlayerStatus = "completed"
)

// PlayerProgress is the per (round, player) counter.
type PlayerProgress struct {
	Player          common.Address `json:"player"`
	RoundID         uint32         `json:"round_id"`
	TrialsCompleted uint32         `json:"trials_completed"`
	LastEventAt     time.Time      `json:"last_event_at"`
	IsKing          bool           `json:"is_king"`
}

// Status classifies the progress against the round's threshold.
func (p PlayerProgress) Status(required uint32) PlayerStatus {
	switch {
	case p.TrialsCompleted == 0:
		return StatusNotStarted
	case p.TrialsCompleted >= required:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// Session links a round to a two-player match reported to a game hub.
type Session struct {
	ID      uint32         `json:"id"`
	Player1 common.Address `json:"player1"`
	Player2 common.Address `json:"player2"`
}

// RoundState is the shared state of one round.
type RoundState struct {
	RoundID        uint32          `json:"round_id"`
	RequiredTrials uint32          `json:"required_trials"`
	Locked         bool            `json:"locked"`
	King           *common.Address `json:"king,omitempty"`
	CrownedAt      *time.Time      `json:"crowned_at,omitempty"`
	Session        *Session        `json:"session,omitempty"`
}

// Meta is the engine-wide configuration set at initialization.
type Meta struct {
	Admin          common.Address `json:"admin"`
	RequiredTrials uint32         `json:"required_trials"`
	CurrentRound   uint32         `json:"current_round"`
}
