package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
)

var _ Store = (*Pebble)(nil)

var (
	dataPrefix   = []byte("d/")
	expiryPrefix = []byte("t/")
)

// Pebble is a persistent Store on top of cockroachdb/pebble. Values live
// under d/<key>; expiry deadlines (unix nanos, big-endian) under t/<key>.
type Pebble struct {
	db  *pebble.DB
	ttl time.Duration

	// mu serializes read-modify-write paths (Apply's expiry carry-over, ExtendTTL).
	mu     sync.Mutex
	closed bool

	now     func() time.Time
	metrics *Metrics
	log     zerolog.Logger
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string, defaultTTL time.Duration, log zerolog.Logger) (*Pebble, error) {
	logger := log.With().Str("component", "store-pebble").Logger()

	db, err := pebble.Open(path, &pebble.Options{Logger: pebbleLogger{log: logger}})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}

	logger.Info().Str("path", path).Dur("default_ttl", defaultTTL).Msg("Pebble store opened")

	return &Pebble{
		db:      db,
		ttl:     defaultTTL,
		now:     time.Now,
		metrics: NewMetrics(),
		log:     logger,
	}, nil
}

// WithClock replaces the time source.
func (p *Pebble) WithClock(now func() time.Time) *Pebble {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
	return p
}

func (p *Pebble) Get(_ context.Context, key []byte) ([]byte, error) {
	p.metrics.Operations.WithLabelValues(BackendPebble, "get").Inc()
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	p.mu.Lock()
	closed, now := p.closed, p.now()
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	alive, err := p.alive(key, now)
	if err != nil {
		return nil, p.fail("get", err)
	}
	if !alive {
		return nil, ErrNotFound
	}

	val, closer, err := p.db.Get(prefixed(dataPrefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, p.fail("get", err)
	}
	defer closer.Close()

	return clone(val), nil
}

func (p *Pebble) Has(ctx context.Context, key []byte) (bool, error) {
	_, err := p.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (p *Pebble) Set(ctx context.Context, key, value []byte) error {
	b := NewBatch()
	b.Set(key, value)
	return p.Apply(ctx, b)
}

func (p *Pebble) Delete(ctx context.Context, key []byte) error {
	b := NewBatch()
	b.Delete(key)
	return p.Apply(ctx, b)
}

func (p *Pebble) Apply(_ context.Context, b *Batch) error {
	if err := b.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.Operations.WithLabelValues(BackendPebble, "apply").Inc()
	p.metrics.BatchSize.Observe(float64(b.Len()))

	if p.closed {
		return ErrClosed
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	now := p.now()
	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			if err := batch.Set(prefixed(dataPrefix, o.key), o.value, nil); err != nil {
				return p.fail("apply", err)
			}
			if p.ttl <= 0 {
				continue
			}
			deadline := now.Add(p.ttl)
			if prev, ok, err := p.expiry(o.key); err != nil {
				return p.fail("apply", err)
			} else if ok && prev.After(deadline) {
				deadline = prev
			}
			if err := batch.Set(prefixed(expiryPrefix, o.key), encodeDeadline(deadline), nil); err != nil {
				return p.fail("apply", err)
			}
		case opPersist:
			if err := batch.Set(prefixed(dataPrefix, o.key), o.value, nil); err != nil {
				return p.fail("apply", err)
			}
			if err := batch.Delete(prefixed(expiryPrefix, o.key), nil); err != nil {
				return p.fail("apply", err)
			}
		case opDelete:
			if err := batch.Delete(prefixed(dataPrefix, o.key), nil); err != nil {
				return p.fail("apply", err)
			}
			if err := batch.Delete(prefixed(expiryPrefix, o.key), nil); err != nil {
				return p.fail("apply", err)
			}
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return p.fail("apply", fmt.Errorf("commit batch: %w", err))
	}
	return nil
}

func (p *Pebble) ExtendTTL(_ context.Context, key []byte, threshold, extendTo time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	_, closer, err := p.db.Get(prefixed(dataPrefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			p.metrics.TTLExtensions.WithLabelValues(BackendPebble, "missing").Inc()
			return ErrNotFound
		}
		return p.fail("extend_ttl", err)
	}
	_ = closer.Close()

	deadline, ok, err := p.expiry(key)
	if err != nil {
		return p.fail("extend_ttl", err)
	}
	if !ok {
		p.metrics.TTLExtensions.WithLabelValues(BackendPebble, "persistent").Inc()
		return nil
	}

	now := p.now()
	if !now.Before(deadline) {
		p.metrics.TTLExtensions.WithLabelValues(BackendPebble, "missing").Inc()
		return ErrNotFound
	}
	if deadline.Sub(now) >= threshold {
		p.metrics.TTLExtensions.WithLabelValues(BackendPebble, "skipped").Inc()
		return nil
	}

	if err := p.db.Set(prefixed(expiryPrefix, key), encodeDeadline(now.Add(extendTo)), pebble.Sync); err != nil {
		return p.fail("extend_ttl", err)
	}
	p.metrics.TTLExtensions.WithLabelValues(BackendPebble, "extended").Inc()
	return nil
}

func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info().Msg("Pebble store closed")
	return p.db.Close()
}

// alive reports whether key has not expired at now. Keys without a deadline are alive.
func (p *Pebble) alive(key []byte, now time.Time) (bool, error) {
	deadline, ok, err := p.expiry(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Before(deadline), nil
}

func (p *Pebble) expiry(key []byte) (time.Time, bool, error) {
	val, closer, err := p.db.Get(prefixed(expiryPrefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return time.Time{}, false, fmt.Errorf("corrupt expiry for key %x", key)
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(val))), true, nil
}

func (p *Pebble) fail(op string, err error) error {
	p.metrics.Errors.WithLabelValues(BackendPebble, op).Inc()
	p.log.Error().Err(err).Str("op", op).Msg("pebble operation failed")
	return err
}

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

func encodeDeadline(t time.Time) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(t.UnixNano()))
}

// pebbleLogger routes pebble's internal logging through zerolog.
type pebbleLogger struct {
	log zerolog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.log.Fatal().Msgf(format, args...)
}
