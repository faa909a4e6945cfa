package progression

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/prover"
	"github.com/compose-network/throne/x/store"
)

// AttestationVerifier checks backend signatures. *attestation.Verifier
// satisfies it.
type AttestationVerifier interface {
	Verify(a attestation.Attestation) error
}

// TrialResolver maps a 1-based trial index to its 32-byte id.
// *trials.Catalog satisfies it.
type TrialResolver interface {
	TrialID(index uint32) (common.Hash, error)
}

// SessionHub is told when a linked multiplayer session starts and ends.
type SessionHub interface {
	StartGame(ctx context.Context, session Session, round uint32) error
	EndGame(ctx context.Context, session uint32, player1Won bool) error
}

// Option configures the Machine
type Option func(*options)

type options struct {
	store       store.Store
	attestation AttestationVerifier
	proofs      prover.Verifier
	fingerprint common.Hash
	trials      TrialResolver
	hub         SessionHub
	now         func() time.Time
}

// WithStore sets the backing store
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithAttestationVerifier enables the signature submission path
func WithAttestationVerifier(v AttestationVerifier) Option {
	return func(o *options) {
		o.attestation = v
	}
}

// WithProofVerifier enables the proof submission path. Artifacts must carry
// the given program fingerprint.
func WithProofVerifier(v prover.Verifier, fingerprint common.Hash) Option {
	return func(o *options) {
		o.proofs = v
		o.fingerprint = fingerprint
	}
}

// WithTrialCatalog binds trial indices to ids
func WithTrialCatalog(r TrialResolver) Option {
	return func(o *options) {
		o.trials = r
	}
}

// WithSessionHub sets the game hub notified about sessions
func WithSessionHub(h SessionHub) Option {
	return func(o *options) {
		o.hub = h
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
