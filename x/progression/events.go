package progression

import "github.com/ethereum/go-ethereum/common"

// EventKind names an observable state change.
type EventKind string

const (
	EventProgress       EventKind = "progress"
	EventKingCrowned    EventKind = "king_crowned"
	EventSessionStarted EventKind = "session_started"
	EventSessionEnded   EventKind = "session_ended"
	EventRoundAdvanced  EventKind = "round_advanced"
)

// Event is returned by state-changing operations; the caller decides how to
// publish it.
type Event interface {
	Kind() EventKind
}

type ProgressEvent struct {
	Player    common.Address `json:"player"`
	Round     uint32         `json:"round"`
	Completed uint32         `json:"completed"`
	Required  uint32         `json:"required"`
	Trial     uint32         `json:"trial"`
}

type KingCrownedEvent struct {
	Player common.Address `json:"player"`
	Round  uint32         `json:"round"`
	Trial  uint32         `json:"trial"`
}

type SessionStartedEvent struct {
	Session uint32         `json:"session"`
	Round   uint32         `json:"round"`
	Player1 common.Address `json:"player1"`
	Player2 common.Address `json:"player2"`
}

type SessionEndedEvent struct {
	Session    uint32         `json:"session"`
	Winner     common.Address `json:"winner"`
	Player1Won bool           `json:"player1_won"`
}

type RoundAdvancedEvent struct {
	From uint32 `json:"from"`
	To   uint32 `json:"to"`
}

func (ProgressEvent) Kind() EventKind       { return EventProgress }
func (KingCrownedEvent) Kind() EventKind    { return EventKingCrowned }
func (SessionStartedEvent) Kind() EventKind { return EventSessionStarted }
func (SessionEndedEvent) Kind() EventKind   { return EventSessionEnded }
func (RoundAdvancedEvent) Kind() EventKind  { return EventRoundAdvanced }
