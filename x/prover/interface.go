package prover

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/x/journal"
)

// Request is the input to proof generation.
type Request struct {
	TrialID  common.Hash
	Solution []byte
	PlayerID common.Hash
	RoundID  uint32
	// ExpectedHash is the hash the solution must match. Zero means
	// SHA256(Solution), which always yields a valid journal.
	ExpectedHash common.Hash
}

// Generator produces proof artifacts.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Artifact, error)
}

// Verifier checks proof artifacts against a pinned fingerprint.
type Verifier interface {
	Verify(a *Artifact, expected common.Hash) (journal.Journal, error)
	Fingerprint() common.Hash
}

// Prover generates and verifies.
type Prover interface {
	Generator
	Verifier
}
