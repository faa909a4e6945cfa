package roundscheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var _ Scheduler = (*LocalScheduler)(nil)

// LocalScheduler fires on wall-clock boundaries genesis + k*duration. The
// boundary current at Start is considered handled; the first tick is the
// next one.
type LocalScheduler struct {
	mu      sync.Mutex
	handler TickCallback
	cancel  context.CancelFunc
	done    chan struct{}

	genesis  time.Time
	duration time.Duration
	now      func() time.Time

	log zerolog.Logger
}

// New constructs a scheduler. A zero genesis means "now" at Start.
func New(cfg Config, handler TickCallback, log zerolog.Logger) *LocalScheduler {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	return &LocalScheduler{
		handler:  handler,
		genesis:  cfg.GenesisTime(),
		duration: cfg.Duration,
		now:      time.Now,
		log:      log.With().Str("component", "round-scheduler").Logger(),
	}
}

// WithClock replaces the time source.
func (s *LocalScheduler) WithClock(now func() time.Time) *LocalScheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *LocalScheduler) SetHandler(h TickCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Start runs the scheduler until ctx is cancelled or Stop is called.
func (s *LocalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handler == nil {
		return errors.New("round scheduler requires a handler")
	}
	if s.cancel != nil {
		return nil
	}
	if s.genesis.IsZero() {
		s.genesis = s.now()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	last, pending := s.lastHandled(s.now())
	go s.run(runCtx, s.done, last, pending)

	s.log.Info().
		Time("genesis", s.genesis).
		Dur("duration", s.duration).
		Time("next_tick", s.nextBoundary(last, pending)).
		Msg("Round scheduler started")
	return nil
}

// Stop halts the scheduler and waits for an in-flight handler to return.
func (s *LocalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TickForTime returns the boundary index at or before t.
func (s *LocalScheduler) TickForTime(t time.Time) (uint64, time.Time) {
	if t.Before(s.genesis) {
		return 0, s.genesis
	}
	idx := uint64(t.Sub(s.genesis) / s.duration)
	return idx, s.boundary(idx)
}

// lastHandled treats the boundary current at start as already handled.
// pending reports that genesis is still ahead.
func (s *LocalScheduler) lastHandled(now time.Time) (last uint64, pending bool) {
	if now.Before(s.genesis) {
		return 0, true
	}
	idx, _ := s.TickForTime(now)
	return idx, false
}

func (s *LocalScheduler) nextBoundary(last uint64, pending bool) time.Time {
	if pending {
		return s.genesis
	}
	return s.boundary(last + 1)
}

func (s *LocalScheduler) run(ctx context.Context, done chan struct{}, last uint64, pending bool) {
	defer close(done)

	timer := time.NewTimer(s.delayUntil(s.nextBoundary(last, pending)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := s.clock()
		if !now.Before(s.genesis) {
			idx, at := s.TickForTime(now)
			if pending || idx > last {
				missed := idx
				if !pending {
					missed = idx - last - 1
				}
				s.fire(ctx, Tick{Index: idx, At: at, Duration: s.duration, Missed: missed})
				last, pending = idx, false
			}
		}

		timer.Reset(s.delayUntil(s.nextBoundary(last, pending)))
	}
}

func (s *LocalScheduler) fire(ctx context.Context, tick Tick) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	if tick.Missed > 0 {
		s.log.Warn().Uint64("tick", tick.Index).Uint64("missed", tick.Missed).Msg("Collapsing missed round boundaries")
	}
	if err := handler(ctx, tick); err != nil {
		s.log.Error().Err(err).Uint64("tick", tick.Index).Msg("Round tick handler failed")
		return
	}
	s.log.Debug().Uint64("tick", tick.Index).Time("at", tick.At).Msg("Round tick handled")
}

func (s *LocalScheduler) delayUntil(at time.Time) time.Duration {
	d := at.Sub(s.clock())
	if d < 0 {
		return 0
	}
	return d
}

func (s *LocalScheduler) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

func (s *LocalScheduler) boundary(idx uint64) time.Time {
	return s.genesis.Add(time.Duration(idx) * s.duration)
}
