package progression

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/journal"
	"github.com/compose-network/throne/x/prover"
	"github.com/compose-network/throne/x/store"
	"github.com/compose-network/throne/x/trials"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice   = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	imageID = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	epoch   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

type harness struct {
	m      *Machine
	st     store.Store
	signer *attestation.Signer
	proofs *stubVerifier
	hub    *recordingHub
	nonces map[common.Address]uint64
}

func newHarness(t *testing.T, required uint32, mutate func(*Config), extra ...Option) *harness {
	t.Helper()

	pub, priv, err := attestation.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := attestation.NewSigner(priv, zerolog.Nop())
	require.NoError(t, err)
	verifier, err := attestation.NewVerifier(pub)
	require.NoError(t, err)

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		st:     store.NewMemory(0, zerolog.Nop()),
		signer: signer,
		proofs: &stubVerifier{fingerprint: imageID},
		hub:    &recordingHub{},
		nonces: make(map[common.Address]uint64),
	}
	opts := append([]Option{
		WithStore(h.st),
		WithAttestationVerifier(verifier),
		WithProofVerifier(h.proofs, imageID),
		WithSessionHub(h.hub),
		WithClock(func() time.Time { return epoch }),
	}, extra...)

	h.m, err = New(cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	require.NoError(t, h.m.Initialize(t.Context(), admin, required))
	t.Cleanup(func() { _ = h.st.Close() })
	return h
}

// attest signs the next attestation for player and trial.
func (h *harness) attest(t *testing.T, player common.Address, trial uint32) AttestationSubmission {
	t.Helper()
	h.nonces[player]++
	hash := sha256.Sum256([]byte(fmt.Sprintf("solution-%d", trial)))
	a, err := h.signer.Attest(trial, player, hash, h.nonces[player])
	require.NoError(t, err)
	return AttestationSubmission{Attestation: a}
}

func (h *harness) complete(t *testing.T, player common.Address, round uint32, trials ...uint32) []Event {
	t.Helper()
	var last []Event
	for _, trial := range trials {
		events, err := h.m.Submit(t.Context(), h.attest(t, player, trial), round)
		require.NoError(t, err, "trial %d", trial)
		last = events
	}
	return last
}

type snapshot struct {
	Round    RoundState
	Progress PlayerProgress
	Nonce    uint64
}

func (h *harness) snapshot(t *testing.T, round uint32, player common.Address) snapshot {
	t.Helper()
	rs, err := h.m.Round(t.Context(), round)
	require.NoError(t, err)
	p, err := h.m.Progress(t.Context(), round, player)
	require.NoError(t, err)
	n, err := h.m.LastNonce(t.Context(), player)
	require.NoError(t, err)
	return snapshot{Round: rs, Progress: p, Nonce: n}
}

type stubVerifier struct {
	fingerprint common.Hash
	err         error
}

func (s *stubVerifier) Verify(a *prover.Artifact, expected common.Hash) (journal.Journal, error) {
	if s.err != nil {
		return journal.Journal{}, s.err
	}
	if a.Fingerprint != expected || expected != s.fingerprint {
		return journal.Journal{}, prover.ErrFingerprintMismatch
	}
	if !a.Journal.IsValid {
		return journal.Journal{}, prover.ErrSolutionRejected
	}
	return a.Journal, nil
}

func (s *stubVerifier) Fingerprint() common.Hash { return s.fingerprint }

type recordingHub struct {
	mu      sync.Mutex
	started []Session
	ended   []SessionEndedEvent
	fail    bool
}

func (r *recordingHub) StartGame(_ context.Context, s Session, _ uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("hub unavailable")
	}
	r.started = append(r.started, s)
	return nil
}

func (r *recordingHub) EndGame(_ context.Context, session uint32, player1Won bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("hub unavailable")
	}
	r.ended = append(r.ended, SessionEndedEvent{Session: session, Player1Won: player1Won})
	return nil
}

func proofFor(player common.Address, round uint32, trialID string, valid bool) *prover.Artifact {
	return &prover.Artifact{
		Proof: prover.ProofBytes{0x01},
		Journal: journal.Journal{
			SolutionHash: sha256.Sum256([]byte(trialID)),
			TrialID:      journal.TrialID(trialID),
			PlayerID:     journal.PlayerID(player),
			RoundID:      round,
			IsValid:      valid,
		},
		Fingerprint: imageID,
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig(), zerolog.Nop())
	require.Error(t, err)

	_, err = New(DefaultConfig(), zerolog.Nop(), WithStore(store.NewMemory(0, zerolog.Nop())))
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.RequiredTrials = 0
	_, err = New(cfg, zerolog.Nop(), WithStore(store.NewMemory(0, zerolog.Nop())), WithProofVerifier(&stubVerifier{}, imageID))
	require.Error(t, err)
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	m, err := New(DefaultConfig(), zerolog.Nop(),
		WithStore(store.NewMemory(0, zerolog.Nop())),
		WithProofVerifier(&stubVerifier{fingerprint: imageID}, imageID))
	require.NoError(t, err)
	ctx := t.Context()

	_, err = m.CurrentRound(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.Submit(ctx, ProofSubmission{Address: alice, TrialIndex: 1, Artifact: proofFor(alice, 1, "t1", true)}, 1)
	require.ErrorIs(t, err, ErrNotInitialized)

	require.ErrorIs(t, m.Initialize(ctx, admin, 0), ErrInvalidArgument)
	require.ErrorIs(t, m.Initialize(ctx, common.Address{}, 7), ErrInvalidArgument)
	require.NoError(t, m.Initialize(ctx, admin, 7))
	require.ErrorIs(t, m.Initialize(ctx, admin, 7), ErrAlreadyInitialized)

	rs, err := m.CurrentRound(ctx)
	require.NoError(t, err)
	require.Equal(t, RoundState{RoundID: 1, RequiredTrials: 7}, rs)

	got, err := m.Admin(ctx)
	require.NoError(t, err)
	require.Equal(t, admin, got)

	_, err = m.Round(ctx, 2)
	require.ErrorIs(t, err, ErrUnknownRound)
}

func TestEnsureInitialized(t *testing.T) {
	t.Parallel()

	st := store.NewMemory(0, zerolog.Nop())
	cfg := DefaultConfig()
	cfg.Admin = admin.Hex()
	cfg.RequiredTrials = 3

	m, err := New(cfg, zerolog.Nop(), WithStore(st), WithProofVerifier(&stubVerifier{}, imageID))
	require.NoError(t, err)
	require.NoError(t, m.EnsureInitialized(t.Context()))
	require.NoError(t, m.EnsureInitialized(t.Context()))

	meta, err := m.Meta(t.Context())
	require.NoError(t, err)
	require.Equal(t, Meta{Admin: admin, RequiredTrials: 3, CurrentRound: 1}, meta)
}

func TestSubmit_ProgressThenKing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, func(c *Config) { c.LockOnKing = false })

	events := h.complete(t, alice, 1, 1)
	require.Equal(t, []Event{ProgressEvent{Player: alice, Round: 1, Completed: 1, Required: 2, Trial: 1}}, events)

	p, err := h.m.Progress(t.Context(), 1, alice)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, p.Status(2))
	require.Equal(t, epoch, p.LastEventAt)

	events = h.complete(t, alice, 1, 2)
	require.Equal(t, []Event{KingCrownedEvent{Player: alice, Round: 1, Trial: 2}}, events)

	king, err := h.m.King(t.Context(), 1)
	require.NoError(t, err)
	require.NotNil(t, king)
	require.Equal(t, alice, *king)

	// Second finisher progresses but never takes the crown.
	events = h.complete(t, bob, 1, 1, 2)
	require.Equal(t, []Event{ProgressEvent{Player: bob, Round: 1, Completed: 2, Required: 2, Trial: 2}}, events)

	king, err = h.m.King(t.Context(), 1)
	require.NoError(t, err)
	require.Equal(t, alice, *king)

	pb, err := h.m.Progress(t.Context(), 1, bob)
	require.NoError(t, err)
	require.False(t, pb.IsKing)
	require.Equal(t, StatusCompleted, pb.Status(2))

	rs, err := h.m.Round(t.Context(), 1)
	require.NoError(t, err)
	require.False(t, rs.Locked)
	require.Equal(t, epoch, *rs.CrownedAt)
}

func TestSubmit_LockOnKing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, nil)
	h.complete(t, alice, 1, 1)

	before := h.snapshot(t, 1, bob)
	_, err := h.m.Submit(t.Context(), h.attest(t, bob, 1), 1)
	require.ErrorIs(t, err, ErrRoundLocked)
	require.Equal(t, before, h.snapshot(t, 1, bob))
}

func TestSubmit_Rejections(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 7, nil)
	first := h.attest(t, alice, 1)
	_, err := h.m.Submit(t.Context(), first, 1)
	require.NoError(t, err)

	tampered := h.attest(t, alice, 2)
	tampered.Attestation.SolutionHash[0] ^= 0xff

	forged := h.attest(t, alice, 2)
	forged.Attestation.Signature = make([]byte, attestation.SignatureSize)

	tests := []struct {
		name  string
		sub   Submission
		round uint32
		want  error
	}{
		{"replayed attestation", first, 1, ErrReplayedNonce},
		{"out of order", h.attest(t, alice, 4), 1, ErrOutOfOrderTrial},
		{"same trial again", h.attest(t, alice, 1), 1, ErrOutOfOrderTrial},
		{"tampered hash", tampered, 1, ErrInvalidAttestation},
		{"zero signature", forged, 1, ErrInvalidAttestation},
		{"unknown round", h.attest(t, alice, 2), 9, ErrUnknownRound},
		{"missing player", AttestationSubmission{}, 1, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.snapshot(t, 1, alice)
			_, err := h.m.Submit(t.Context(), tt.sub, tt.round)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, before, h.snapshot(t, 1, alice))
		})
	}

	// Nonces skipped by refused submissions remain usable.
	_, err = h.m.Submit(t.Context(), h.attest(t, alice, 2), 1)
	require.NoError(t, err)
}

func TestSubmit_FreshPlayerOutOfOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 7, nil)
	_, err := h.m.Submit(t.Context(), h.attest(t, bob, 3), 1)
	require.ErrorIs(t, err, ErrOutOfOrderTrial)

	p, err := h.m.Progress(t.Context(), 1, bob)
	require.NoError(t, err)
	require.Equal(t, StatusNotStarted, p.Status(7))
}

func TestAdvanceRound_StaleAttestations(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 7, nil)
	var stale []AttestationSubmission
	for trial := uint32(1); trial <= 3; trial++ {
		sub := h.attest(t, alice, trial)
		_, err := h.m.Submit(t.Context(), sub, 1)
		require.NoError(t, err)
		stale = append(stale, sub)
	}

	_, _, err := h.m.AdvanceRound(t.Context(), alice, 0)
	require.ErrorIs(t, err, ErrUnauthorized)

	next, events, err := h.m.AdvanceRound(t.Context(), admin, 1)
	require.NoError(t, err)
	require.Equal(t, RoundState{RoundID: 2, RequiredTrials: 7}, next)
	require.Equal(t, []Event{RoundAdvancedEvent{From: 1, To: 2}}, events)

	_, err = h.m.Submit(t.Context(), stale[2], 1)
	require.ErrorIs(t, err, ErrRoundLocked)
	_, err = h.m.Submit(t.Context(), stale[2], 2)
	require.ErrorIs(t, err, ErrReplayedNonce)

	// A fresh nonce for an old trial index still fails the ordering check.
	_, err = h.m.Submit(t.Context(), h.attest(t, alice, 4), 2)
	require.ErrorIs(t, err, ErrOutOfOrderTrial)

	events = h.complete(t, alice, 2, 1)
	require.Equal(t, []Event{ProgressEvent{Player: alice, Round: 2, Completed: 1, Required: 7, Trial: 1}}, events)

	old, err := h.m.Progress(t.Context(), 1, alice)
	require.NoError(t, err)
	require.EqualValues(t, 3, old.TrialsCompleted)
}

func TestSetRequiredTrials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3, nil)
	h.complete(t, alice, 1, 1, 2)

	_, err := h.m.SetRequiredTrials(t.Context(), bob, 1)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.m.SetRequiredTrials(t.Context(), admin, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	rs, err := h.m.SetRequiredTrials(t.Context(), admin, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, rs.RequiredTrials)
	require.Nil(t, rs.King, "lowering the threshold does not crown retroactively")

	events := h.complete(t, alice, 1, 3)
	require.Equal(t, []Event{KingCrownedEvent{Player: alice, Round: 1, Trial: 3}}, events)

	next, _, err := h.m.AdvanceRound(t.Context(), admin, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, next.RequiredTrials)
}

func TestAdvanceRound_ExpectedRound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 7, nil)
	ctx := t.Context()

	_, _, err := h.m.AdvanceRound(ctx, admin, 2)
	require.ErrorIs(t, err, ErrStaleRound)

	next, _, err := h.m.AdvanceRound(ctx, admin, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, next.RoundID)

	// Repeating the same request does not move the round again.
	_, _, err = h.m.AdvanceRound(ctx, admin, 1)
	require.ErrorIs(t, err, ErrStaleRound)

	meta, err := h.m.Meta(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, meta.CurrentRound)
	rs, err := h.m.Round(ctx, 2)
	require.NoError(t, err)
	require.False(t, rs.Locked)
}

func TestSubmit_ProofPath(t *testing.T) {
	t.Parallel()

	catalog := trials.Default()
	h := newHarness(t, 7, nil, WithTrialCatalog(catalog))
	first, err := catalog.Get(1)
	require.NoError(t, err)
	second, err := catalog.Get(2)
	require.NoError(t, err)

	events, err := h.m.Submit(t.Context(), ProofSubmission{Address: alice, TrialIndex: 1, Artifact: proofFor(alice, 1, first.ID, true)}, 1)
	require.NoError(t, err)
	require.Equal(t, []Event{ProgressEvent{Player: alice, Round: 1, Completed: 1, Required: 7, Trial: 1}}, events)

	otherImage := proofFor(alice, 1, second.ID, true)
	otherImage.Fingerprint = common.HexToHash("0x22")

	tests := []struct {
		name string
		sub  ProofSubmission
		want error
	}{
		{"wrong answer", ProofSubmission{alice, 2, proofFor(alice, 1, second.ID, false)}, ErrSolutionRejected},
		{"foreign fingerprint", ProofSubmission{alice, 2, otherImage}, ErrInvalidAttestation},
		{"bound to another player", ProofSubmission{alice, 2, proofFor(bob, 1, second.ID, true)}, ErrInvalidAttestation},
		{"bound to another round", ProofSubmission{alice, 2, proofFor(alice, 2, second.ID, true)}, ErrInvalidAttestation},
		{"proves another trial", ProofSubmission{alice, 2, proofFor(alice, 1, first.ID, true)}, ErrInvalidAttestation},
		{"missing artifact", ProofSubmission{Address: alice, TrialIndex: 2}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.snapshot(t, 1, alice)
			_, err := h.m.Submit(t.Context(), tt.sub, 1)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, before, h.snapshot(t, 1, alice))
		})
	}

	_, err = h.m.Submit(t.Context(), ProofSubmission{Address: alice, TrialIndex: 2, Artifact: proofFor(alice, 1, second.ID, true)}, 1)
	require.NoError(t, err)
}

func TestSubmit_SignaturePathRejectsUnknownTrial(t *testing.T) {
	t.Parallel()

	catalog := trials.Default()
	h := newHarness(t, 9, nil, WithTrialCatalog(catalog))
	h.complete(t, alice, 1, 1, 2, 3, 4, 5, 6, 7)

	before := h.snapshot(t, 1, alice)
	_, err := h.m.Submit(t.Context(), h.attest(t, alice, 8), 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, err, trials.ErrUnknownTrial)
	require.Equal(t, before, h.snapshot(t, 1, alice))

	// Signature completions still record the catalog trial id.
	first, err := catalog.Get(1)
	require.NoError(t, err)
	done, err := h.m.repo.trialCompleted(t.Context(), 1, alice, journal.TrialID(first.ID))
	require.NoError(t, err)
	require.True(t, done)
}

func TestSubmit_ProofInvalidIsIndistinguishable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 7, nil)
	h.proofs.err = prover.ErrProofInvalid

	_, err := h.m.Submit(t.Context(), ProofSubmission{Address: alice, TrialIndex: 1, Artifact: proofFor(alice, 1, "t1", true)}, 1)
	require.ErrorIs(t, err, ErrSolutionRejected)
}

func TestSubmit_TrialAlreadyCompleted(t *testing.T) {
	t.Parallel()

	// Without a catalog trial ids are not tied to indices.
	h := newHarness(t, 7, nil)
	_, err := h.m.Submit(t.Context(), ProofSubmission{Address: alice, TrialIndex: 1, Artifact: proofFor(alice, 1, "t1", true)}, 1)
	require.NoError(t, err)

	before := h.snapshot(t, 1, alice)
	_, err = h.m.Submit(t.Context(), ProofSubmission{Address: alice, TrialIndex: 2, Artifact: proofFor(alice, 1, "t1", true)}, 1)
	require.ErrorIs(t, err, ErrTrialAlreadyCompleted)
	require.Equal(t, before, h.snapshot(t, 1, alice))
}

func TestSessions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, nil)
	ctx := t.Context()

	_, err := h.m.StartSession(ctx, bob, 42, alice, bob)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.m.StartSession(ctx, alice, 42, alice, alice)
	require.ErrorIs(t, err, ErrInvalidArgument)

	events, err := h.m.StartSession(ctx, alice, 42, alice, bob)
	require.NoError(t, err)
	require.Equal(t, []Event{SessionStartedEvent{Session: 42, Round: 1, Player1: alice, Player2: bob}}, events)
	require.Equal(t, []Session{{ID: 42, Player1: alice, Player2: bob}}, h.hub.started)

	_, err = h.m.StartSession(ctx, alice, 43, alice, bob)
	require.ErrorIs(t, err, ErrInvalidArgument)

	h.complete(t, bob, 1, 1)
	events = h.complete(t, bob, 1, 2)
	require.Equal(t, []Event{
		SessionEndedEvent{Session: 42, Winner: bob, Player1Won: false},
		KingCrownedEvent{Player: bob, Round: 1, Trial: 2},
	}, events)
	require.Equal(t, []SessionEndedEvent{{Session: 42, Player1Won: false}}, h.hub.ended)

	_, _, err = h.m.AdvanceRound(ctx, admin, 0)
	require.NoError(t, err)
	old, err := h.m.Round(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, old.Session)
	require.True(t, old.Locked)
	cur, err := h.m.CurrentRound(ctx)
	require.NoError(t, err)
	require.Nil(t, cur.Session)
}

func TestSessions_HubFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, nil)
	h.hub.fail = true

	_, err := h.m.StartSession(t.Context(), alice, 7, alice, bob)
	require.NoError(t, err)

	events := h.complete(t, alice, 1, 1)
	require.Len(t, events, 2)
	assert.Equal(t, SessionEndedEvent{Session: 7, Winner: alice, Player1Won: true}, events[0])
}

func TestSubmit_ConcurrentSamePlayer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 7, nil)
	sub := h.attest(t, alice, 1)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.m.Submit(context.Background(), sub, 1); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, accepted.Load())
	p, err := h.m.Progress(t.Context(), 1, alice)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.TrialsCompleted)
}

func TestSubmit_ConcurrentSingleKing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, func(c *Config) { c.LockOnKing = false })

	players := make([]common.Address, 12)
	subs := make([][]AttestationSubmission, len(players))
	for i := range players {
		players[i] = common.BigToAddress(big.NewInt(int64(1000 + i)))
		subs[i] = []AttestationSubmission{h.attest(t, players[i], 1), h.attest(t, players[i], 2)}
	}

	var (
		wg     sync.WaitGroup
		kings  atomic.Int32
		failed atomic.Int32
	)
	for i := range players {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for _, sub := range subs[i] {
				events, err := h.m.Submit(context.Background(), sub, 1)
				if err != nil {
					failed.Add(1)
					return
				}
				for _, ev := range events {
					if ev.Kind() == EventKingCrowned {
						kings.Add(1)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	require.Zero(t, failed.Load())
	require.EqualValues(t, 1, kings.Load())

	king, err := h.m.King(t.Context(), 1)
	require.NoError(t, err)
	require.NotNil(t, king)
	for _, p := range players {
		progress, err := h.m.Progress(t.Context(), 1, p)
		require.NoError(t, err)
		require.EqualValues(t, 2, progress.TrialsCompleted)
		require.Equal(t, p == *king, progress.IsKing)
	}
}

func TestMachine_PersistsInPebble(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pub, priv, err := attestation.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verifier, err := attestation.NewVerifier(pub)
	require.NoError(t, err)
	signer, err := attestation.NewSigner(priv, zerolog.Nop())
	require.NoError(t, err)

	open := func() (*Machine, store.Store) {
		st, err := store.OpenPebble(dir, time.Hour, zerolog.Nop())
		require.NoError(t, err)
		m, err := New(DefaultConfig(), zerolog.Nop(), WithStore(st), WithAttestationVerifier(verifier))
		require.NoError(t, err)
		return m, st
	}

	m, st := open()
	require.NoError(t, m.Initialize(t.Context(), admin, 7))
	a, err := signer.Attest(1, alice, common.HexToHash("0xabc"), 5)
	require.NoError(t, err)
	_, err = m.Submit(t.Context(), AttestationSubmission{Attestation: a}, 1)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	m, st = open()
	defer st.Close()
	p, err := m.Progress(t.Context(), 1, alice)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.TrialsCompleted)
	n, err := m.LastNonce(t.Context(), alice)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	_, err = m.Submit(t.Context(), AttestationSubmission{Attestation: a}, 1)
	require.ErrorIs(t, err, ErrReplayedNonce)
}
