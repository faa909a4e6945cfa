package issuer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/journal"
	"github.com/compose-network/throne/x/prover"
	"github.com/compose-network/throne/x/trials"
)

// RoundSource resolves the current round when a request leaves it unset.
type RoundSource interface {
	CurrentRoundID(ctx context.Context) (uint32, error)
}

// Request asks for an attestation that Player solved trial TrialIndex.
type Request struct {
	Player     common.Address `json:"player"`
	TrialIndex uint32         `json:"trial_index"`
	Solution   string         `json:"solution"`
	// RoundID zero means the current round.
	RoundID uint32 `json:"round_id"`
}

// Receipt is what the player submits on the signature path.
type Receipt struct {
	Signature    string                  `json:"signature"`
	SolutionHash string                  `json:"solution_hash"`
	Nonce        uint64                  `json:"nonce"`
	TrialRoundID uint32                  `json:"trial_round_id"`
	Player       common.Address          `json:"player"`
	Attestation  attestation.Attestation `json:"attestation"`
}

// Issuer checks a solution, proves it, verifies the proof and signs an
// attestation.
type Issuer struct {
	catalog *trials.Catalog
	gen     prover.Generator
	ver     prover.Verifier
	signer  *attestation.Signer
	nonces  *Nonces
	rounds  RoundSource

	metrics *Metrics
	log     zerolog.Logger
}

// Deps are the collaborators of an Issuer. Rounds is optional.
type Deps struct {
	Catalog   *trials.Catalog
	Generator prover.Generator
	Verifier  prover.Verifier
	Signer    *attestation.Signer
	Nonces    *Nonces
	Rounds    RoundSource
}

func New(deps Deps, log zerolog.Logger) (*Issuer, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("trial catalog is required")
	case deps.Generator == nil:
		return nil, errors.New("proof generator is required")
	case deps.Verifier == nil:
		return nil, errors.New("proof verifier is required")
	case deps.Signer == nil:
		return nil, errors.New("attestation signer is required")
	case deps.Nonces == nil:
		return nil, errors.New("nonce store is required")
	}

	return &Issuer{
		catalog: deps.Catalog,
		gen:     deps.Generator,
		ver:     deps.Verifier,
		signer:  deps.Signer,
		nonces:  deps.Nonces,
		rounds:  deps.Rounds,
		metrics: NewMetrics(),
		log:     log.With().Str("component", "issuer").Logger(),
	}, nil
}

// Catalog returns the trial catalog served to players.
func (i *Issuer) Catalog() *trials.Catalog {
	return i.catalog
}

// Issue runs the full flow. Nothing is consumed unless the proof verifies.
func (i *Issuer) Issue(ctx context.Context, req Request) (Receipt, error) {
	start := time.Now()
	receipt, err := i.issue(ctx, req)
	i.metrics.Duration.Observe(time.Since(start).Seconds())
	i.metrics.Requests.WithLabelValues(resultLabel(err)).Inc()
	return receipt, err
}

func (i *Issuer) issue(ctx context.Context, req Request) (Receipt, error) {
	if req.Player == (common.Address{}) {
		return Receipt{}, ErrInvalidRequest.WithMessage("player is required")
	}
	if req.Solution == "" || len(req.Solution) > prover.MaxSolutionSize {
		return Receipt{}, ErrInvalidRequest.WithMessage("solution must be 1..%d bytes", prover.MaxSolutionSize)
	}

	if err := i.catalog.Check(req.TrialIndex, req.Solution); err != nil {
		if errors.Is(err, trials.ErrUnknownTrial) {
			return Receipt{}, ErrInvalidRequest.WithCause(err).WithMessage("unknown trial %d", req.TrialIndex)
		}
		return Receipt{}, ErrIncorrectSolution
	}
	trialID, err := i.catalog.TrialID(req.TrialIndex)
	if err != nil {
		return Receipt{}, ErrInternal.WithCause(err)
	}

	round := req.RoundID
	if round == 0 && i.rounds != nil {
		if round, err = i.rounds.CurrentRoundID(ctx); err != nil {
			return Receipt{}, ErrInternal.WithCause(fmt.Errorf("resolve current round: %w", err))
		}
	}

	solution := []byte(req.Solution)
	hash := common.Hash(sha256.Sum256(solution))

	artifact, err := i.gen.Generate(ctx, prover.Request{
		TrialID:      trialID,
		Solution:     solution,
		PlayerID:     journal.PlayerID(req.Player),
		RoundID:      round,
		ExpectedHash: hash,
	})
	if err != nil {
		return Receipt{}, ErrProofFailed.WithCause(err)
	}
	j, err := i.ver.Verify(artifact, i.ver.Fingerprint())
	if err != nil {
		return Receipt{}, ErrProofFailed.WithCause(err)
	}
	if j.SolutionHash != hash || j.TrialID != trialID || j.PlayerID != journal.PlayerID(req.Player) {
		return Receipt{}, ErrProofFailed.WithMessage("journal does not match the request")
	}

	nonce, err := i.nonces.Next(ctx, req.Player)
	if err != nil {
		return Receipt{}, ErrInternal.WithCause(err)
	}
	att, err := i.signer.Attest(req.TrialIndex, req.Player, hash, nonce)
	if err != nil {
		return Receipt{}, ErrInternal.WithCause(err)
	}

	i.log.Info().
		Str("player", req.Player.Hex()).
		Uint32("trial", req.TrialIndex).
		Uint32("round", round).
		Uint64("nonce", nonce).
		Msg("Attestation issued")

	return Receipt{
		Signature:    base64.StdEncoding.EncodeToString(att.Signature),
		SolutionHash: hexutil.Encode(hash[:]),
		Nonce:        nonce,
		TrialRoundID: req.TrialIndex,
		Player:       req.Player,
		Attestation:  att,
	}, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "issued"
	}
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr.Type.String()
	}
	return "error"
}
