package prover

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/throne/x/journal"
)

var (
	engineOnce sync.Once
	testEngine *Engine
	engineErr  error
)

// sharedEngine runs the groth16 setup once for the whole package.
func sharedEngine(t *testing.T) *Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("groth16 setup is slow; skipped with -short")
	}
	engineOnce.Do(func() {
		pk, vk, err := Setup()
		if err != nil {
			engineErr = err
			return
		}
		cfg := DefaultConfig()
		testEngine, engineErr = NewEngineFromKeys(cfg, pk, vk, zerolog.Nop())
	})
	require.NoError(t, engineErr)
	return testEngine
}

func TestEngine_GenerateAndVerify(t *testing.T) {
	e := sharedEngine(t)

	req := circuitRequest("thronebreaker_complete")
	a, err := e.Generate(t.Context(), req)
	require.NoError(t, err)
	require.True(t, a.Journal.IsValid)
	require.Equal(t, common.Hash(sha256.Sum256(req.Solution)), a.Journal.SolutionHash)
	require.Equal(t, e.Fingerprint(), a.Fingerprint)

	j, err := e.Verify(a, e.Fingerprint())
	require.NoError(t, err)
	require.Equal(t, req.TrialID, j.TrialID)
	require.Equal(t, req.PlayerID, j.PlayerID)
	require.Equal(t, req.RoundID, j.RoundID)

	t.Run("journal survives the wire", func(t *testing.T) {
		decoded, err := journal.Decode(a.Journal.Encode())
		require.NoError(t, err)
		b := *a
		b.Journal = decoded.WithPlayer(a.Journal.PlayerID)
		_, err = e.Verify(&b, e.Fingerprint())
		require.NoError(t, err)
	})

	t.Run("tampered public inputs fail", func(t *testing.T) {
		for name, mutate := range map[string]func(*journal.Journal){
			"round":  func(j *journal.Journal) { j.RoundID++ },
			"player": func(j *journal.Journal) { j.PlayerID[31] ^= 1 },
			"trial":  func(j *journal.Journal) { j.TrialID = journal.TrialID("colorsigil") },
			"hash":   func(j *journal.Journal) { j.SolutionHash[0] ^= 1 },
		} {
			b := *a
			mutate(&b.Journal)
			_, err := e.Verify(&b, e.Fingerprint())
			require.ErrorIs(t, err, ErrProofInvalid, name)
		}
	})

	t.Run("fingerprint mismatch is checked first", func(t *testing.T) {
		b := *a
		b.Proof = []byte("garbage")
		b.Fingerprint = common.HexToHash("0x01")
		_, err := e.Verify(&b, e.Fingerprint())
		require.ErrorIs(t, err, ErrFingerprintMismatch)

		_, err = e.Verify(a, common.HexToHash("0x02"))
		require.ErrorIs(t, err, ErrFingerprintMismatch)
	})

	t.Run("garbage proof is invalid", func(t *testing.T) {
		b := *a
		b.Proof = []byte{0xde, 0xad, 0xbe, 0xef}
		_, err := e.Verify(&b, e.Fingerprint())
		require.ErrorIs(t, err, ErrProofInvalid)
	})
}

func TestEngine_WrongAnswerStillProves(t *testing.T) {
	e := sharedEngine(t)

	req := circuitRequest("CIPHER:guess")
	req.ExpectedHash = common.Hash(sha256.Sum256([]byte("CIPHER:answer")))

	a, err := e.Generate(t.Context(), req)
	require.NoError(t, err)
	require.False(t, a.Journal.IsValid)

	_, err = e.Verify(a, e.Fingerprint())
	require.ErrorIs(t, err, ErrSolutionRejected)

	// Flipping the flag breaks the proof instead of sneaking through.
	b := *a
	b.Journal.IsValid = true
	_, err = e.Verify(&b, e.Fingerprint())
	require.ErrorIs(t, err, ErrProofInvalid)
}

func TestEngine_CancelledGenerate(t *testing.T) {
	e := sharedEngine(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := e.Generate(ctx, circuitRequest("LOGIC:done"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngine_KeysPersist(t *testing.T) {
	e := sharedEngine(t)
	dir := t.TempDir()

	require.False(t, KeysExist(dir))
	require.NoError(t, SaveKeys(dir, e.pk, e.vk))
	require.True(t, KeysExist(dir))

	cfg := DefaultConfig()
	cfg.KeysDir = dir
	v, err := NewVerifyingEngine(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, e.Fingerprint(), v.Fingerprint())

	_, err = v.Generate(t.Context(), circuitRequest("x"))
	require.ErrorIs(t, err, ErrProofGenerationFailed)

	cfg.Fingerprint = common.HexToHash("0x03").Hex()
	_, err = NewVerifyingEngine(cfg, zerolog.Nop())
	require.ErrorIs(t, err, ErrSetup)
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateRequest(circuitRequest("a")))
	require.ErrorIs(t, validateRequest(circuitRequest("")), ErrInvalidRequest)
	require.ErrorIs(t, validateRequest(circuitRequest(string(make([]byte, MaxSolutionSize+1)))), ErrInvalidRequest)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Mode = ModeRemote
	require.Error(t, cfg.Validate())
	cfg.RemoteURL = "http://prover:8080"
	require.NoError(t, cfg.Validate())

	cfg.MaxConcurrent = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Mode = "gpu"
	require.Error(t, cfg.Validate())
}
