package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var _ Store = (*Memory)(nil)

type memEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-memory Store; suitable for tests and single-instance deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ttl     time.Duration
	closed  bool

	now     func() time.Time
	metrics *Metrics
	log     zerolog.Logger
}

// NewMemory returns an empty store giving entries the provided lifetime.
func NewMemory(defaultTTL time.Duration, log zerolog.Logger) *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		ttl:     defaultTTL,
		now:     time.Now,
		metrics: NewMetrics(),
		log:     log.With().Str("component", "store-memory").Logger(),
	}
}

// WithClock replaces the time source. Used by tests to drive expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.metrics.Operations.WithLabelValues(BackendMemory, "get").Inc()

	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.value), nil
}

func (m *Memory) Has(_ context.Context, key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.metrics.Operations.WithLabelValues(BackendMemory, "has").Inc()

	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.live(key)
	return ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value []byte) error {
	b := NewBatch()
	b.Set(key, value)
	return m.Apply(ctx, b)
}

func (m *Memory) Delete(ctx context.Context, key []byte) error {
	b := NewBatch()
	b.Delete(key)
	return m.Apply(ctx, b)
}

func (m *Memory) Apply(_ context.Context, b *Batch) error {
	if err := b.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.Operations.WithLabelValues(BackendMemory, "apply").Inc()
	m.metrics.BatchSize.Observe(float64(b.Len()))

	if m.closed {
		return ErrClosed
	}

	now := m.now()
	for _, o := range b.ops {
		k := string(o.key)
		switch o.kind {
		case opSet:
			e := memEntry{value: o.value}
			if m.ttl > 0 {
				e.expires = now.Add(m.ttl)
			}
			// Keep a longer lifetime granted by an earlier extension.
			if prev, ok := m.entries[k]; ok && prev.expires.After(e.expires) {
				e.expires = prev.expires
			}
			m.entries[k] = e
		case opPersist:
			m.entries[k] = memEntry{value: o.value}
		case opDelete:
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *Memory) ExtendTTL(_ context.Context, key []byte, threshold, extendTo time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	e, ok := m.live(key)
	if !ok {
		m.metrics.TTLExtensions.WithLabelValues(BackendMemory, "missing").Inc()
		return ErrNotFound
	}
	if e.expires.IsZero() {
		m.metrics.TTLExtensions.WithLabelValues(BackendMemory, "persistent").Inc()
		return nil
	}

	now := m.now()
	if e.expires.Sub(now) >= threshold {
		m.metrics.TTLExtensions.WithLabelValues(BackendMemory, "skipped").Inc()
		return nil
	}
	e.expires = now.Add(extendTo)
	m.entries[string(key)] = e
	m.metrics.TTLExtensions.WithLabelValues(BackendMemory, "extended").Inc()
	return nil
}

// Expiry reports when key expires; zero means never.
func (m *Memory) Expiry(key []byte) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.live(key)
	return e.expires, ok
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.entries {
		if _, ok := m.live([]byte(k)); ok {
			n++
		}
	}
	return n
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.log.Debug().Int("entries", len(m.entries)).Msg("memory store closed")
	return nil
}

// live must be called with m.mu held.
func (m *Memory) live(key []byte) (memEntry, bool) {
	e, ok := m.entries[string(key)]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		return memEntry{}, false
	}
	return e, true
}
