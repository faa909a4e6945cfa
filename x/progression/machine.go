package progression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/x/journal"
	"github.com/compose-network/throne/x/prover"
	"github.com/compose-network/throne/x/store"
)

var _ Service = (*Machine)(nil)

// Machine owns round, progress and replay state. Submissions for one player
// are serialized by a striped lock; round and meta records are written under
// mu so crowning, locking and round advancement never interleave.
type Machine struct {
	cfg     Config
	opts    options
	repo    *repository
	players *playerLocks

	mu sync.Mutex

	metrics *Metrics
	log     zerolog.Logger
}

// New creates a Machine. A store and at least one submission path are required.
func New(cfg Config, log zerolog.Logger, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid progression config: %w", err)
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if o.attestation == nil && o.proofs == nil {
		return nil, fmt.Errorf("an attestation or proof verifier is required")
	}

	return &Machine{
		cfg:     cfg,
		opts:    o,
		repo:    &repository{st: o.store},
		players: newPlayerLocks(cfg.LockStripes),
		metrics: NewMetrics(),
		log:     log.With().Str("component", "progression").Logger(),
	}, nil
}

// Initialize records the admin and opens round 1.
func (m *Machine) Initialize(ctx context.Context, admin common.Address, requiredTrials uint32) error {
	if admin == (common.Address{}) {
		return ErrInvalidArgument.WithMessage("admin address is required")
	}
	if requiredTrials == 0 {
		return ErrInvalidArgument.WithMessage("required_trials must be positive")
	}

	m.mu.Lock()
	_, ok, err := m.repo.meta(ctx)
	if err != nil {
		m.mu.Unlock()
		return ErrInternal.WithCause(err)
	}
	if ok {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if _, found, err := m.repo.round(ctx, 1); err != nil {
		m.mu.Unlock()
		return ErrInternal.WithCause(err)
	} else if found {
		m.mu.Unlock()
		return ErrAlreadyInitialized.WithMessage("round records exist without progression meta")
	}

	meta := Meta{Admin: admin, RequiredTrials: requiredTrials, CurrentRound: 1}
	b := newBatch()
	if err := b.putMeta(meta); err != nil {
		m.mu.Unlock()
		return ErrInternal.WithCause(err)
	}
	if err := b.putRound(RoundState{RoundID: 1, RequiredTrials: requiredTrials}); err != nil {
		m.mu.Unlock()
		return ErrInternal.WithCause(err)
	}
	if err := m.repo.apply(ctx, b.Batch); err != nil {
		m.mu.Unlock()
		return ErrInternal.WithCause(err)
	}
	m.mu.Unlock()

	m.extendTTL(ctx, b.Keys())
	m.metrics.CurrentRound.Set(1)
	m.log.Info().
		Str("admin", admin.Hex()).
		Uint32("required_trials", requiredTrials).
		Msg("Progression initialized")
	return nil
}

// EnsureInitialized initializes from config when auto-initialization is
// enabled and the store holds no progression state.
func (m *Machine) EnsureInitialized(ctx context.Context) error {
	meta, ok, err := m.repo.meta(ctx)
	if err != nil {
		return ErrInternal.WithCause(err)
	}
	if ok {
		m.metrics.CurrentRound.Set(float64(meta.CurrentRound))
		m.log.Info().
			Uint32("round", meta.CurrentRound).
			Str("admin", meta.Admin.Hex()).
			Msg("Progression state loaded")
		return nil
	}
	if !m.cfg.AutoInitialize || m.cfg.Admin == "" {
		m.log.Warn().Msg("Progression is not initialized; submissions will be refused")
		return nil
	}
	err = m.Initialize(ctx, m.cfg.AdminAddress(), m.cfg.RequiredTrials)
	if errors.Is(err, ErrAlreadyInitialized) {
		// A concurrent Initialize wrote meta first. Anything else means the
		// ledger lost its meta record and must not be reset over.
		if _, ok, merr := m.repo.meta(ctx); merr == nil && ok {
			return nil
		}
		return fmt.Errorf("refusing to re-initialize progression: %w", err)
	}
	return err
}

// Submit applies one trial completion for round. Every refusal leaves state
// untouched.
func (m *Machine) Submit(ctx context.Context, sub Submission, round uint32) ([]Event, error) {
	if sub == nil {
		return nil, ErrInvalidArgument.WithMessage("submission is required")
	}

	start := time.Now()
	events, err := m.submit(ctx, sub, round)
	m.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	m.metrics.Submissions.WithLabelValues(string(sub.Path()), resultLabel(err)).Inc()

	if err != nil {
		m.log.Debug().
			Err(err).
			Str("player", sub.Player().Hex()).
			Uint32("round", round).
			Uint32("trial", sub.Trial()).
			Str("path", string(sub.Path())).
			Msg("Submission refused")
		return nil, err
	}
	return events, nil
}

func (m *Machine) submit(ctx context.Context, sub Submission, round uint32) ([]Event, error) {
	player := sub.Player()
	if player == (common.Address{}) {
		return nil, ErrInvalidArgument.WithMessage("player address is required")
	}

	unlock := m.players.lock(player)
	defer unlock()

	if _, err := m.loadMeta(ctx); err != nil {
		return nil, err
	}
	rs, err := m.loadRound(ctx, round)
	if err != nil {
		return nil, err
	}
	if rs.Locked {
		return nil, ErrRoundLocked.WithMessage("round %d is locked", round)
	}

	if a, ok := sub.(AttestationSubmission); ok {
		last, err := m.repo.lastNonce(ctx, player)
		if err != nil {
			return nil, ErrInternal.WithCause(err)
		}
		if a.Attestation.Nonce <= last {
			return nil, ErrReplayedNonce.WithMessage("nonce %d is not above %d", a.Attestation.Nonce, last)
		}
	}

	progress, err := m.repo.progress(ctx, round, player)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	if sub.Trial() != progress.TrialsCompleted+1 {
		return nil, ErrOutOfOrderTrial.WithMessage("expected trial %d, got %d", progress.TrialsCompleted+1, sub.Trial())
	}

	trialID, err := m.authenticate(sub, round)
	if err != nil {
		return nil, err
	}

	if trialID != (common.Hash{}) {
		done, err := m.repo.trialCompleted(ctx, round, player, trialID)
		if err != nil {
			return nil, ErrInternal.WithCause(err)
		}
		if done {
			return nil, ErrTrialAlreadyCompleted
		}
	}

	return m.commit(ctx, sub, round, progress, trialID)
}

// authenticate checks the submission's evidence and returns the trial id it
// covers, or the zero hash when no catalog is configured.
func (m *Machine) authenticate(sub Submission, round uint32) (common.Hash, error) {
	switch s := sub.(type) {
	case AttestationSubmission:
		if m.opts.attestation == nil {
			return common.Hash{}, ErrInvalidArgument.WithMessage("signature submissions are disabled")
		}
		if err := m.opts.attestation.Verify(s.Attestation); err != nil {
			return common.Hash{}, ErrInvalidAttestation.WithCause(err)
		}
		if m.opts.trials == nil {
			return common.Hash{}, nil
		}
		id, err := m.opts.trials.TrialID(s.Trial())
		if err != nil {
			return common.Hash{}, ErrInvalidArgument.WithCause(err)
		}
		return id, nil

	case ProofSubmission:
		if m.opts.proofs == nil {
			return common.Hash{}, ErrInvalidArgument.WithMessage("proof submissions are disabled")
		}
		if s.Artifact == nil {
			return common.Hash{}, ErrInvalidArgument.WithMessage("artifact is required")
		}

		j, err := m.opts.proofs.Verify(s.Artifact, m.opts.fingerprint)
		switch {
		case errors.Is(err, prover.ErrProofInvalid), errors.Is(err, prover.ErrSolutionRejected):
			// Malformed proofs and wrong answers are indistinguishable to the caller.
			return common.Hash{}, ErrSolutionRejected.WithCause(err)
		case err != nil:
			return common.Hash{}, ErrInvalidAttestation.WithCause(err)
		}

		if j.PlayerID != journal.PlayerID(s.Address) {
			return common.Hash{}, ErrInvalidAttestation.WithMessage("journal is bound to another player")
		}
		if j.RoundID != round {
			return common.Hash{}, ErrInvalidAttestation.WithMessage("journal is bound to round %d", j.RoundID)
		}
		if m.opts.trials != nil {
			want, err := m.opts.trials.TrialID(s.TrialIndex)
			if err != nil {
				return common.Hash{}, ErrInvalidArgument.WithCause(err)
			}
			if j.TrialID != want {
				return common.Hash{}, ErrInvalidAttestation.WithMessage("journal does not prove trial %d", s.TrialIndex)
			}
		}
		return j.TrialID, nil

	default:
		return common.Hash{}, ErrInvalidArgument.WithMessage("unsupported submission %T", sub)
	}
}

// commit writes the accepted submission, and the crowning it may trigger, as
// one batch.
func (m *Machine) commit(
	ctx context.Context,
	sub Submission,
	round uint32,
	progress PlayerProgress,
	trialID common.Hash,
) ([]Event, error) {
	player := sub.Player()

	m.mu.Lock()
	rs, err := m.loadRound(ctx, round)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	// Crowning or an advance may have locked the round since the first check.
	if rs.Locked {
		m.mu.Unlock()
		return nil, ErrRoundLocked.WithMessage("round %d is locked", round)
	}

	now := m.opts.now().UTC()
	progress.TrialsCompleted++
	progress.LastEventAt = now

	b := newBatch()
	if a, ok := sub.(AttestationSubmission); ok {
		if err := b.putNonce(player, a.Attestation.Nonce); err != nil {
			m.mu.Unlock()
			return nil, ErrInternal.WithCause(err)
		}
	}
	if trialID != (common.Hash{}) {
		b.markTrial(round, player, trialID)
	}

	var (
		events []Event
		ended  *SessionEndedEvent
	)
	crowned := progress.TrialsCompleted >= rs.RequiredTrials && rs.King == nil
	if crowned {
		progress.IsKing = true
		king := player
		rs.King, rs.CrownedAt = &king, &now
		if m.cfg.LockOnKing {
			rs.Locked = true
		}
		if err := b.putRound(rs); err != nil {
			m.mu.Unlock()
			return nil, ErrInternal.WithCause(err)
		}
		if rs.Session != nil {
			ended = &SessionEndedEvent{
				Session:    rs.Session.ID,
				Winner:     player,
				Player1Won: player == rs.Session.Player1,
			}
			events = append(events, *ended)
		}
		events = append(events, KingCrownedEvent{Player: player, Round: round, Trial: sub.Trial()})
	} else {
		events = append(events, ProgressEvent{
			Player:    player,
			Round:     round,
			Completed: progress.TrialsCompleted,
			Required:  rs.RequiredTrials,
			Trial:     sub.Trial(),
		})
	}
	if err := b.putProgress(progress); err != nil {
		m.mu.Unlock()
		return nil, ErrInternal.WithCause(err)
	}

	if err := m.repo.apply(ctx, b.Batch); err != nil {
		m.mu.Unlock()
		return nil, ErrInternal.WithCause(err)
	}
	m.mu.Unlock()

	m.extendTTL(ctx, b.Keys())

	if crowned {
		m.metrics.Kings.Inc()
		m.log.Info().
			Str("player", player.Hex()).
			Uint32("round", round).
			Uint32("trials", progress.TrialsCompleted).
			Bool("locked", rs.Locked).
			Msg("King crowned")
	} else {
		m.log.Info().
			Str("player", player.Hex()).
			Uint32("round", round).
			Uint32("completed", progress.TrialsCompleted).
			Uint32("required", rs.RequiredTrials).
			Msg("Trial completed")
	}

	if ended != nil && m.opts.hub != nil {
		if err := m.opts.hub.EndGame(ctx, ended.Session, ended.Player1Won); err != nil {
			m.metrics.HubFailures.WithLabelValues("end_game").Inc()
			m.log.Warn().Err(err).Uint32("session", ended.Session).Msg("Failed to report session end to game hub")
		}
	}

	return events, nil
}

// AdvanceRound locks the current round and opens the next one. A non-zero
// from must name the current round, so a repeated request advances at most
// once.
func (m *Machine) AdvanceRound(ctx context.Context, caller common.Address, from uint32) (RoundState, []Event, error) {
	m.mu.Lock()
	meta, err := m.loadMeta(ctx)
	if err != nil {
		m.mu.Unlock()
		return RoundState{}, nil, err
	}
	if caller != meta.Admin {
		m.mu.Unlock()
		return RoundState{}, nil, ErrUnauthorized.WithMessage("only the admin can advance the round")
	}
	if from != 0 && from != meta.CurrentRound {
		m.mu.Unlock()
		return RoundState{}, nil, ErrStaleRound.WithMessage(
			"advance from round %d requested, current round is %d", from, meta.CurrentRound)
	}
	if meta.CurrentRound == math.MaxUint32 {
		m.mu.Unlock()
		return RoundState{}, nil, ErrInvalidArgument.WithMessage("round id exhausted")
	}

	cur, err := m.loadRound(ctx, meta.CurrentRound)
	if err != nil {
		m.mu.Unlock()
		return RoundState{}, nil, err
	}
	cur.Locked = true
	cur.Session = nil

	next := RoundState{RoundID: cur.RoundID + 1, RequiredTrials: meta.RequiredTrials}
	meta.CurrentRound = next.RoundID

	b := newBatch()
	for _, put := range []func() error{
		func() error { return b.putRound(cur) },
		func() error { return b.putRound(next) },
		func() error { return b.putMeta(meta) },
	} {
		if err := put(); err != nil {
			m.mu.Unlock()
			return RoundState{}, nil, ErrInternal.WithCause(err)
		}
	}
	if err := m.repo.apply(ctx, b.Batch); err != nil {
		m.mu.Unlock()
		return RoundState{}, nil, ErrInternal.WithCause(err)
	}
	m.mu.Unlock()

	m.extendTTL(ctx, b.Keys())
	m.metrics.CurrentRound.Set(float64(next.RoundID))
	m.log.Info().Uint32("from", cur.RoundID).Uint32("to", next.RoundID).Msg("Round advanced")

	return next, []Event{RoundAdvancedEvent{From: cur.RoundID, To: next.RoundID}}, nil
}

// SetRequiredTrials changes the threshold for the current and future rounds.
// Players already past the new threshold are crowned on their next submission.
func (m *Machine) SetRequiredTrials(ctx context.Context, caller common.Address, n uint32) (RoundState, error) {
	if n == 0 {
		return RoundState{}, ErrInvalidArgument.WithMessage("required_trials must be positive")
	}

	m.mu.Lock()
	meta, err := m.loadMeta(ctx)
	if err != nil {
		m.mu.Unlock()
		return RoundState{}, err
	}
	if caller != meta.Admin {
		m.mu.Unlock()
		return RoundState{}, ErrUnauthorized.WithMessage("only the admin can change required trials")
	}
	rs, err := m.loadRound(ctx, meta.CurrentRound)
	if err != nil {
		m.mu.Unlock()
		return RoundState{}, err
	}
	meta.RequiredTrials = n
	rs.RequiredTrials = n

	b := newBatch()
	if err := b.putMeta(meta); err != nil {
		m.mu.Unlock()
		return RoundState{}, ErrInternal.WithCause(err)
	}
	if err := b.putRound(rs); err != nil {
		m.mu.Unlock()
		return RoundState{}, ErrInternal.WithCause(err)
	}
	if err := m.repo.apply(ctx, b.Batch); err != nil {
		m.mu.Unlock()
		return RoundState{}, ErrInternal.WithCause(err)
	}
	m.mu.Unlock()

	m.extendTTL(ctx, b.Keys())
	m.log.Info().Uint32("round", rs.RoundID).Uint32("required_trials", n).Msg("Required trials updated")
	return rs, nil
}

// StartSession links a two-player match to the current round. Only player1
// may start it.
func (m *Machine) StartSession(
	ctx context.Context,
	caller common.Address,
	id uint32,
	player1, player2 common.Address,
) ([]Event, error) {
	if player1 == (common.Address{}) || player2 == (common.Address{}) {
		return nil, ErrInvalidArgument.WithMessage("both players are required")
	}
	if player1 == player2 {
		return nil, ErrInvalidArgument.WithMessage("players must differ")
	}
	if caller != player1 {
		return nil, ErrUnauthorized.WithMessage("session must be started by player1")
	}

	m.mu.Lock()
	meta, err := m.loadMeta(ctx)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	rs, err := m.loadRound(ctx, meta.CurrentRound)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if rs.Locked {
		m.mu.Unlock()
		return nil, ErrRoundLocked.WithMessage("round %d is locked", rs.RoundID)
	}
	if rs.Session != nil {
		m.mu.Unlock()
		return nil, ErrInvalidArgument.WithMessage("round %d already has session %d", rs.RoundID, rs.Session.ID)
	}

	session := Session{ID: id, Player1: player1, Player2: player2}
	rs.Session = &session

	b := newBatch()
	if err := b.putRound(rs); err != nil {
		m.mu.Unlock()
		return nil, ErrInternal.WithCause(err)
	}
	if err := m.repo.apply(ctx, b.Batch); err != nil {
		m.mu.Unlock()
		return nil, ErrInternal.WithCause(err)
	}
	m.mu.Unlock()

	m.extendTTL(ctx, b.Keys())
	m.log.Info().
		Uint32("session", id).
		Uint32("round", rs.RoundID).
		Str("player1", player1.Hex()).
		Str("player2", player2.Hex()).
		Msg("Session started")

	if m.opts.hub != nil {
		if err := m.opts.hub.StartGame(ctx, session, rs.RoundID); err != nil {
			m.metrics.HubFailures.WithLabelValues("start_game").Inc()
			m.log.Warn().Err(err).Uint32("session", id).Msg("Failed to report session start to game hub")
		}
	}

	return []Event{SessionStartedEvent{Session: id, Round: rs.RoundID, Player1: player1, Player2: player2}}, nil
}

func (m *Machine) Meta(ctx context.Context) (Meta, error) {
	return m.loadMeta(ctx)
}

func (m *Machine) Admin(ctx context.Context) (common.Address, error) {
	meta, err := m.loadMeta(ctx)
	return meta.Admin, err
}

func (m *Machine) CurrentRound(ctx context.Context) (RoundState, error) {
	meta, err := m.loadMeta(ctx)
	if err != nil {
		return RoundState{}, err
	}
	return m.loadRound(ctx, meta.CurrentRound)
}

// CurrentRoundID returns the id of the open round.
func (m *Machine) CurrentRoundID(ctx context.Context) (uint32, error) {
	meta, err := m.loadMeta(ctx)
	return meta.CurrentRound, err
}

func (m *Machine) Round(ctx context.Context, id uint32) (RoundState, error) {
	if _, err := m.loadMeta(ctx); err != nil {
		return RoundState{}, err
	}
	return m.loadRound(ctx, id)
}

// Progress returns a player's counter for round. Players who have not
// started report zero.
func (m *Machine) Progress(ctx context.Context, round uint32, player common.Address) (PlayerProgress, error) {
	if _, err := m.Round(ctx, round); err != nil {
		return PlayerProgress{}, err
	}
	p, err := m.repo.progress(ctx, round, player)
	if err != nil {
		return PlayerProgress{}, ErrInternal.WithCause(err)
	}
	return p, nil
}

// King returns the round's King, or nil while the round is unclaimed.
func (m *Machine) King(ctx context.Context, round uint32) (*common.Address, error) {
	rs, err := m.Round(ctx, round)
	if err != nil {
		return nil, err
	}
	return rs.King, nil
}

func (m *Machine) LastNonce(ctx context.Context, player common.Address) (uint64, error) {
	n, err := m.repo.lastNonce(ctx, player)
	if err != nil {
		return 0, ErrInternal.WithCause(err)
	}
	return n, nil
}

func (m *Machine) loadMeta(ctx context.Context) (Meta, error) {
	meta, ok, err := m.repo.meta(ctx)
	if err != nil {
		return Meta{}, ErrInternal.WithCause(err)
	}
	if !ok {
		return Meta{}, ErrNotInitialized
	}
	return meta, nil
}

func (m *Machine) loadRound(ctx context.Context, id uint32) (RoundState, error) {
	rs, ok, err := m.repo.round(ctx, id)
	if err != nil {
		return RoundState{}, ErrInternal.WithCause(err)
	}
	if !ok {
		return RoundState{}, ErrUnknownRound.WithMessage("round %d does not exist", id)
	}
	return rs, nil
}

// extendTTL renews the lifetime of freshly written keys. Failures are
// advisory.
func (m *Machine) extendTTL(ctx context.Context, keys [][]byte) {
	if m.cfg.TTLExtendTo <= 0 {
		return
	}
	for _, key := range keys {
		err := m.opts.store.ExtendTTL(ctx, key, m.cfg.TTLThreshold, m.cfg.TTLExtendTo)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			continue
		}
		m.metrics.TTLFailures.Inc()
		m.log.Warn().Err(err).Hex("key", key).Msg("Failed to extend TTL")
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "accepted"
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type.String()
	}
	return "error"
}
