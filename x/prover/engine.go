package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/compose-network/throne/x/journal"
)

var _ Prover = (*Engine)(nil)

// Engine proves and verifies TrialCircuit statements with groth16 over BN254.
type Engine struct {
	ccs         constraint.ConstraintSystem
	pk          groth16.ProvingKey // nil for a verify-only engine
	vk          groth16.VerifyingKey
	fingerprint common.Hash

	sem     *semaphore.Weighted
	timeout time.Duration

	metrics *Metrics
	log     zerolog.Logger
}

// NewEngine compiles the circuit and loads (or creates) the key pair.
func NewEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	logger := log.With().Str("component", "prover").Logger()

	ccs, err := CompileCircuit()
	if err != nil {
		return nil, ErrSetup.WithCause(fmt.Errorf("compile circuit: %w", err))
	}

	var (
		pk groth16.ProvingKey
		vk groth16.VerifyingKey
	)
	switch {
	case cfg.KeysDir == "":
		logger.Warn().Msg("No keys_dir configured, running an ephemeral setup; artifacts will not verify after restart")
		if pk, vk, err = Setup(); err != nil {
			return nil, err
		}
	case KeysExist(cfg.KeysDir):
		if pk, err = LoadProvingKey(cfg.KeysDir); err != nil {
			return nil, ErrSetup.WithCause(err)
		}
		if vk, err = LoadVerifyingKey(cfg.KeysDir); err != nil {
			return nil, ErrSetup.WithCause(err)
		}
	case cfg.AutoSetup:
		logger.Info().Str("keys_dir", cfg.KeysDir).Msg("Keys not found, running circuit setup")
		if pk, vk, err = Setup(); err != nil {
			return nil, err
		}
		if err := SaveKeys(cfg.KeysDir, pk, vk); err != nil {
			return nil, ErrSetup.WithCause(err)
		}
	default:
		return nil, ErrSetup.WithMessage("keys not found in %s and auto_setup is disabled", cfg.KeysDir)
	}

	e, err := newEngine(cfg, ccs, pk, vk, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("fingerprint", e.fingerprint.Hex()).
		Int("constraints", ccs.GetNbConstraints()).
		Int("max_concurrent", cfg.MaxConcurrent).
		Msg("Proof engine initialized")

	return e, nil
}

// NewVerifyingEngine loads only the verifying key. Generate always fails.
func NewVerifyingEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	logger := log.With().Str("component", "prover").Logger()

	vk, err := LoadVerifyingKey(cfg.KeysDir)
	if err != nil {
		return nil, ErrSetup.WithCause(err)
	}
	e, err := newEngine(cfg, nil, nil, vk, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("fingerprint", e.fingerprint.Hex()).Msg("Verify-only proof engine initialized")
	return e, nil
}

// NewEngineFromKeys builds an engine around an existing key pair.
func NewEngineFromKeys(
	cfg Config,
	pk groth16.ProvingKey,
	vk groth16.VerifyingKey,
	log zerolog.Logger,
) (*Engine, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, ErrSetup.WithCause(err)
	}
	return newEngine(cfg, ccs, pk, vk, log.With().Str("component", "prover").Logger())
}

func newEngine(
	cfg Config,
	ccs constraint.ConstraintSystem,
	pk groth16.ProvingKey,
	vk groth16.VerifyingKey,
	log zerolog.Logger,
) (*Engine, error) {
	fp, err := FingerprintOf(vk)
	if err != nil {
		return nil, ErrSetup.WithCause(err)
	}
	if cfg.Fingerprint != "" {
		pinned := common.HexToHash(cfg.Fingerprint)
		if pinned != fp {
			return nil, ErrSetup.WithMessage("verifying key fingerprint %s does not match pinned %s", fp.Hex(), pinned.Hex())
		}
	}

	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}

	return &Engine{
		ccs:         ccs,
		pk:          pk,
		vk:          vk,
		fingerprint: fp,
		sem:         semaphore.NewWeighted(int64(limit)),
		timeout:     cfg.Timeout,
		metrics:     NewMetrics(),
		log:         log,
	}, nil
}

// Fingerprint returns the image id of the loaded verifying key.
func (e *Engine) Fingerprint() common.Hash {
	return e.fingerprint
}

// VerifyingKey returns the loaded verifying key.
func (e *Engine) VerifyingKey() groth16.VerifyingKey {
	return e.vk
}

type proveResult struct {
	proof []byte
	err   error
}

// Generate proves knowledge of req.Solution. A wrong answer still produces
// an artifact whose journal has IsValid == false. Cancelling ctx returns
// immediately; the running proof finishes in the background and is dropped.
func (e *Engine) Generate(ctx context.Context, req Request) (*Artifact, error) {
	if e.pk == nil {
		return nil, ErrProofGenerationFailed.WithMessage("engine is verify-only")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	solutionHash := common.Hash(sha256.Sum256(req.Solution))
	expected := req.ExpectedHash
	if expected == (common.Hash{}) {
		expected = solutionHash
	}
	isValid := solutionHash == expected

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.metrics.Generated.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("await proving slot: %w", err)
	}

	assignment := fullAssignment(req, solutionHash, expected, isValid)
	done := make(chan proveResult, 1)
	go func() {
		defer e.sem.Release(1)
		e.metrics.InFlight.Inc()
		defer e.metrics.InFlight.Dec()

		start := time.Now()
		proof, err := e.prove(assignment)
		e.metrics.GenerateDuration.Observe(time.Since(start).Seconds())
		done <- proveResult{proof: proof, err: err}
	}()

	var res proveResult
	select {
	case <-ctx.Done():
		e.metrics.Generated.WithLabelValues("cancelled").Inc()
		e.log.Debug().
			Str("trial_id", req.TrialID.Hex()).
			Uint32("round_id", req.RoundID).
			Msg("Proof generation cancelled, result will be discarded")
		return nil, fmt.Errorf("proof generation cancelled: %w", ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		e.metrics.Generated.WithLabelValues("failed").Inc()
		e.log.Error().Err(res.err).Str("trial_id", req.TrialID.Hex()).Msg("Proof generation failed")
		return nil, ErrProofGenerationFailed.WithCause(res.err)
	}

	j := journal.Journal{
		SolutionHash: solutionHash,
		TrialID:      req.TrialID,
		PlayerID:     req.PlayerID,
		RoundID:      req.RoundID,
		IsValid:      isValid,
	}
	if isValid {
		e.metrics.Generated.WithLabelValues("valid").Inc()
	} else {
		e.metrics.Generated.WithLabelValues("invalid").Inc()
	}

	e.log.Debug().
		Str("trial_id", req.TrialID.Hex()).
		Str("player_id", req.PlayerID.Hex()).
		Uint32("round_id", req.RoundID).
		Bool("is_valid", isValid).
		Int("proof_bytes", len(res.proof)).
		Msg("Proof generated")

	return &Artifact{Proof: res.proof, Journal: j, Fingerprint: e.fingerprint}, nil
}

func (e *Engine) prove(assignment *TrialCircuit) ([]byte, error) {
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(e.ccs, e.pk, w)
	if err != nil {
		return nil, fmt.Errorf("prove: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify checks the artifact against the expected fingerprint and returns
// its journal. The checks run in a fixed order: fingerprint, proof, then
// the is_valid flag.
func (e *Engine) Verify(a *Artifact, expected common.Hash) (j journal.Journal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrProofInvalid.WithCause(fmt.Errorf("verifier panic: %v", r))
		}
		e.metrics.Verifications.WithLabelValues(verifyResult(err)).Inc()
	}()

	if a == nil {
		return journal.Journal{}, ErrProofInvalid.WithMessage("missing artifact")
	}
	if a.Fingerprint != expected || expected != e.fingerprint {
		return journal.Journal{}, ErrFingerprintMismatch.WithMessage(
			"artifact %s, expected %s", a.Fingerprint.Hex(), expected.Hex())
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(a.Proof)); err != nil {
		return journal.Journal{}, ErrProofInvalid.WithCause(fmt.Errorf("decode proof: %w", err))
	}
	public, err := frontend.NewWitness(publicAssignment(a.Journal), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return journal.Journal{}, ErrProofInvalid.WithCause(fmt.Errorf("build public witness: %w", err))
	}
	if err := groth16.Verify(proof, e.vk, public); err != nil {
		return journal.Journal{}, ErrProofInvalid.WithCause(err)
	}

	if !a.Journal.IsValid {
		return journal.Journal{}, ErrSolutionRejected
	}
	return a.Journal, nil
}

func validateRequest(req Request) error {
	switch {
	case len(req.Solution) == 0:
		return ErrInvalidRequest.WithMessage("solution is empty")
	case len(req.Solution) > MaxSolutionSize:
		return ErrInvalidRequest.WithMessage("solution exceeds %d bytes", MaxSolutionSize)
	}
	return nil
}

func verifyResult(err error) string {
	var perr *Error
	if err == nil {
		return "ok"
	}
	if errors.As(err, &perr) {
		return perr.Type.String()
	}
	return "error"
}
