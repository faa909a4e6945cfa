package store

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type backendFactory func(t *testing.T, ttl time.Duration, clock *fakeClock) Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		BackendMemory: func(t *testing.T, ttl time.Duration, clock *fakeClock) Store {
			return NewMemory(ttl, zerolog.Nop()).WithClock(clock.Now)
		},
		BackendPebble: func(t *testing.T, ttl time.Duration, clock *fakeClock) Store {
			p, err := OpenPebble(t.TempDir(), ttl, zerolog.Nop())
			require.NoError(t, err)
			return p.WithClock(clock.Now)
		},
	}
}

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("get set delete", func(t *testing.T) {
				clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
				s := factory(t, 0, clock)
				defer s.Close()
				ctx := t.Context()

				_, err := s.Get(ctx, []byte("a"))
				require.ErrorIs(t, err, ErrNotFound)

				require.NoError(t, s.Set(ctx, []byte("a"), []byte("1")))
				got, err := s.Get(ctx, []byte("a"))
				require.NoError(t, err)
				require.Equal(t, []byte("1"), got)

				ok, err := s.Has(ctx, []byte("a"))
				require.NoError(t, err)
				require.True(t, ok)

				require.NoError(t, s.Delete(ctx, []byte("a")))
				ok, err = s.Has(ctx, []byte("a"))
				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("batch is atomic and ordered", func(t *testing.T) {
				clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
				s := factory(t, 0, clock)
				defer s.Close()
				ctx := t.Context()

				b := NewBatch()
				b.Set([]byte("x"), []byte("1"))
				b.Set([]byte("y"), []byte("2"))
				b.Delete([]byte("x"))
				require.Equal(t, 3, b.Len())
				require.NoError(t, s.Apply(ctx, b))

				_, err := s.Get(ctx, []byte("x"))
				require.ErrorIs(t, err, ErrNotFound)
				got, err := s.Get(ctx, []byte("y"))
				require.NoError(t, err)
				require.Equal(t, []byte("2"), got)

				bad := NewBatch()
				bad.Set([]byte("z"), []byte("3"))
				bad.Set(nil, []byte("4"))
				require.ErrorIs(t, s.Apply(ctx, bad), ErrEmptyKey)
				ok, err := s.Has(ctx, []byte("z"))
				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("entries expire and extend", func(t *testing.T) {
				clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
				s := factory(t, time.Hour, clock)
				defer s.Close()
				ctx := t.Context()

				require.NoError(t, s.Set(ctx, []byte("k"), []byte("v")))

				// Plenty of life left: no-op.
				clock.Advance(10 * time.Minute)
				require.NoError(t, s.ExtendTTL(ctx, []byte("k"), 10*time.Minute, 2*time.Hour))

				// Below threshold: renewed to now+2h.
				clock.Advance(45 * time.Minute)
				require.NoError(t, s.ExtendTTL(ctx, []byte("k"), 10*time.Minute, 2*time.Hour))

				clock.Advance(90 * time.Minute)
				got, err := s.Get(ctx, []byte("k"))
				require.NoError(t, err)
				require.Equal(t, []byte("v"), got)

				clock.Advance(31 * time.Minute)
				_, err = s.Get(ctx, []byte("k"))
				require.ErrorIs(t, err, ErrNotFound)

				require.ErrorIs(t, s.ExtendTTL(ctx, []byte("missing"), time.Minute, time.Hour), ErrNotFound)
			})

			t.Run("persisted entries outlive the default ttl", func(t *testing.T) {
				clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
				s := factory(t, time.Hour, clock)
				defer s.Close()
				ctx := t.Context()

				require.NoError(t, s.Set(ctx, []byte("temp"), []byte("t")))
				require.NoError(t, s.Set(ctx, []byte("ledger"), []byte("old")))

				b := NewBatch()
				b.Persist([]byte("ledger"), []byte("new"))
				require.NoError(t, s.Apply(ctx, b))

				clock.Advance(365 * 24 * time.Hour)

				_, err := s.Get(ctx, []byte("temp"))
				require.ErrorIs(t, err, ErrNotFound)
				got, err := s.Get(ctx, []byte("ledger"))
				require.NoError(t, err)
				require.Equal(t, []byte("new"), got)

				// Renewal hints leave persisted entries alone.
				require.NoError(t, s.ExtendTTL(ctx, []byte("ledger"), time.Hour, time.Minute))
				clock.Advance(time.Hour)
				ok, err := s.Has(ctx, []byte("ledger"))
				require.NoError(t, err)
				require.True(t, ok)
			})

			t.Run("closed store rejects calls", func(t *testing.T) {
				clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
				s := factory(t, 0, clock)
				require.NoError(t, s.Close())
				require.NoError(t, s.Close())

				_, err := s.Get(t.Context(), []byte("a"))
				require.ErrorIs(t, err, ErrClosed)
				require.ErrorIs(t, s.Set(t.Context(), []byte("a"), []byte("b")), ErrClosed)
			})
		})
	}
}

func TestPebble_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := OpenPebble(dir, 0, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.Set(t.Context(), []byte("round"), []byte{0, 0, 0, 2}))
	require.NoError(t, p.Close())

	p, err = OpenPebble(dir, 0, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	got, err := p.Get(t.Context(), []byte("round"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 2}, got)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Backend = BackendPebble
	require.Error(t, cfg.Validate())
	cfg.Path = t.TempDir()
	require.NoError(t, cfg.Validate())

	cfg.Backend = "redis"
	require.Error(t, cfg.Validate())

	s, err := Open(DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
	require.NoError(t, s.Close())
}
