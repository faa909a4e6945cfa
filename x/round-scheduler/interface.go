package roundscheduler

import (
	"context"
	"time"
)

// Scheduler invokes its handler whenever a round boundary passes.
type Scheduler interface {
	SetHandler(TickCallback)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// TickForTime returns the boundary index at or before t and its time.
	TickForTime(t time.Time) (index uint64, at time.Time)
}

// TickCallback is the hook invoked for each boundary.
type TickCallback func(context.Context, Tick) error

// Tick describes a boundary. Missed counts boundaries that passed while the
// process was not running or was busy; they are folded into this tick.
type Tick struct {
	Index    uint64
	At       time.Time
	Duration time.Duration
	Missed   uint64
}
