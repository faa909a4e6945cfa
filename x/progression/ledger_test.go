package progression

import (
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/store"
)

type ledgerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *ledgerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ledgerClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLedger_SurvivesStoreExpiry(t *testing.T) {
	t.Parallel()

	const ttl = 30 * 24 * time.Hour
	clock := &ledgerClock{now: epoch}
	st := store.NewMemory(ttl, zerolog.Nop()).WithClock(clock.Now)
	t.Cleanup(func() { _ = st.Close() })

	pub, priv, err := attestation.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := attestation.NewSigner(priv, zerolog.Nop())
	require.NoError(t, err)
	verifier, err := attestation.NewVerifier(pub)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Admin = admin.Hex()
	cfg.RequiredTrials = 2
	cfg.LockOnKing = false
	open := func() *Machine {
		m, err := New(cfg, zerolog.Nop(),
			WithStore(st),
			WithAttestationVerifier(verifier),
			WithClock(clock.Now))
		require.NoError(t, err)
		require.NoError(t, m.EnsureInitialized(t.Context()))
		return m
	}
	submission := func(player common.Address, trial uint32, nonce uint64) AttestationSubmission {
		a, err := signer.Attest(trial, player, sha256.Sum256([]byte{byte(trial)}), nonce)
		require.NoError(t, err)
		return AttestationSubmission{Attestation: a}
	}

	m := open()
	ctx := t.Context()
	_, err = m.Submit(ctx, submission(bob, 1, 1), 1)
	require.NoError(t, err)
	_, err = m.Submit(ctx, submission(bob, 2, 2), 1)
	require.NoError(t, err)
	first := submission(alice, 1, 1)
	_, err = m.Submit(ctx, first, 1)
	require.NoError(t, err)

	clock.Advance(ttl + 24*time.Hour)

	_, err = m.Submit(ctx, first, 1)
	require.ErrorIs(t, err, ErrReplayedNonce)

	// A restart over the idle store loads the ledger instead of resetting it.
	m = open()
	_, err = m.Submit(ctx, first, 1)
	require.ErrorIs(t, err, ErrReplayedNonce)

	meta, err := m.Meta(ctx)
	require.NoError(t, err)
	require.Equal(t, Meta{Admin: admin, RequiredTrials: 2, CurrentRound: 1}, meta)

	nonce, err := m.LastNonce(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	king, err := m.King(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, king)
	require.Equal(t, bob, *king)

	// Alice reaching the threshold later does not replace the King.
	_, err = m.Submit(ctx, submission(alice, 1, 2), 1)
	require.NoError(t, err)
	_, err = m.Submit(ctx, submission(alice, 2, 3), 1)
	require.NoError(t, err)
	king, err = m.King(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, bob, *king)
}

func TestEnsureInitialized_RefusesToResetRounds(t *testing.T) {
	t.Parallel()

	st := store.NewMemory(0, zerolog.Nop())
	t.Cleanup(func() { _ = st.Close() })

	cfg := DefaultConfig()
	cfg.Admin = admin.Hex()
	m, err := New(cfg, zerolog.Nop(), WithStore(st), WithProofVerifier(&stubVerifier{fingerprint: imageID}, imageID))
	require.NoError(t, err)
	ctx := t.Context()
	require.NoError(t, m.EnsureInitialized(ctx))

	_, _, err = m.AdvanceRound(ctx, admin, 1)
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, metaKey()))

	require.Error(t, m.EnsureInitialized(ctx))
	require.ErrorIs(t, m.Initialize(ctx, admin, 7), ErrAlreadyInitialized)

	rs, err := m.Round(ctx, 1)
	require.NoError(t, err)
	require.True(t, rs.Locked)
}
