package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: key not found")
	ErrClosed   = errors.New("store: closed")
	ErrEmptyKey = errors.New("store: empty key")
)

// Store is the key-value substrate behind the progression ledger. Entries
// written with Set carry the default lifetime; entries written with
// Batch.Persist never expire. ExtendTTL is advisory and callers treat its
// failure as non-fatal.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Has(ctx context.Context, key []byte) (bool, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	// Apply writes every operation in b atomically.
	Apply(ctx context.Context, b *Batch) error
	// ExtendTTL renews the entry to extendTo when its remaining lifetime is
	// below threshold. Entries without expiry are left untouched.
	ExtendTTL(ctx context.Context, key []byte, threshold, extendTo time.Duration) error
	Close() error
}

type opKind uint8

const (
	opSet opKind = iota
	opPersist
	opDelete
)

type op struct {
	kind  opKind
	key   []byte
	value []byte
}

// Batch collects writes applied atomically by Store.Apply.
type Batch struct {
	ops []op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Set(key, value []byte) {
	b.ops = append(b.ops, op{kind: opSet, key: clone(key), value: clone(value)})
}

// Persist writes value with no expiry, dropping any lifetime the key had.
func (b *Batch) Persist(key, value []byte) {
	b.ops = append(b.ops, op{kind: opPersist, key: clone(key), value: clone(value)})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, op{kind: opDelete, key: clone(key)})
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// Keys returns the keys written by the batch, in order.
func (b *Batch) Keys() [][]byte {
	out := make([][]byte, 0, len(b.ops))
	for _, o := range b.ops {
		out = append(out, o.key)
	}
	return out
}

func (b *Batch) validate() error {
	for _, o := range b.ops {
		if len(o.key) == 0 {
			return ErrEmptyKey
		}
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
