package progression

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/throne/x/store"
)

// Key layout. Every key is fixed-width after its prefix.
var (
	keyMeta        = []byte("throne/meta")
	prefixRound    = []byte("throne/round/")
	prefixProgress = []byte("throne/progress/")
	prefixTrial    = []byte("throne/trial/")
	prefixNonce    = []byte("throne/nonce/")
)

func metaKey() []byte { return keyMeta }

func roundKey(round uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte(nil), prefixRound...), round)
}

func progressKey(round uint32, player common.Address) []byte {
	k := binary.BigEndian.AppendUint32(append([]byte(nil), prefixProgress...), round)
	k = append(k, '/')
	return append(k, player.Bytes()...)
}

func trialKey(round uint32, player common.Address, trial common.Hash) []byte {
	k := binary.BigEndian.AppendUint32(append([]byte(nil), prefixTrial...), round)
	k = append(k, '/')
	k = append(k, player.Bytes()...)
	k = append(k, '/')
	return append(k, trial.Bytes()...)
}

func nonceKey(player common.Address) []byte {
	return append(append([]byte(nil), prefixNonce...), player.Bytes()...)
}

// On-disk records, rlp encoded. Optional values carry an explicit flag.
type metaRecord struct {
	Admin          common.Address
	RequiredTrials uint32
	CurrentRound   uint32
}

type roundRecord struct {
	RoundID        uint32
	RequiredTrials uint32
	Locked         bool
	HasKing        bool
	King           common.Address
	CrownedAt      uint64
	HasSession     bool
	SessionID      uint32
	SessionPlayer1 common.Address
	SessionPlayer2 common.Address
}

type progressRecord struct {
	TrialsCompleted uint32
	LastEventAt     uint64
	IsKing          bool
}

var completedMarker = []byte{1}

// repository maps progression state onto a store.Store.
type repository struct {
	st store.Store
}

func (r *repository) meta(ctx context.Context) (Meta, bool, error) {
	var rec metaRecord
	ok, err := r.get(ctx, metaKey(), &rec)
	if err != nil || !ok {
		return Meta{}, false, err
	}
	return Meta(rec), true, nil
}

func (r *repository) round(ctx context.Context, id uint32) (RoundState, bool, error) {
	var rec roundRecord
	ok, err := r.get(ctx, roundKey(id), &rec)
	if err != nil || !ok {
		return RoundState{}, false, err
	}
	rs := RoundState{
		RoundID:        rec.RoundID,
		RequiredTrials: rec.RequiredTrials,
		Locked:         rec.Locked,
	}
	if rec.HasKing {
		king := rec.King
		crowned := time.UnixMilli(int64(rec.CrownedAt)).UTC()
		rs.King, rs.CrownedAt = &king, &crowned
	}
	if rec.HasSession {
		rs.Session = &Session{ID: rec.SessionID, Player1: rec.SessionPlayer1, Player2: rec.SessionPlayer2}
	}
	return rs, true, nil
}

// progress returns the stored counter, or a zero value for a player who has
// not started the round.
func (r *repository) progress(ctx context.Context, round uint32, player common.Address) (PlayerProgress, error) {
	p := PlayerProgress{Player: player, RoundID: round}
	var rec progressRecord
	ok, err := r.get(ctx, progressKey(round, player), &rec)
	if err != nil || !ok {
		return p, err
	}
	p.TrialsCompleted = rec.TrialsCompleted
	p.IsKing = rec.IsKing
	if rec.LastEventAt != 0 {
		p.LastEventAt = time.UnixMilli(int64(rec.LastEventAt)).UTC()
	}
	return p, nil
}

func (r *repository) lastNonce(ctx context.Context, player common.Address) (uint64, error) {
	var n uint64
	if _, err := r.get(ctx, nonceKey(player), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *repository) trialCompleted(ctx context.Context, round uint32, player common.Address, trial common.Hash) (bool, error) {
	return r.st.Has(ctx, trialKey(round, player, trial))
}

func (r *repository) apply(ctx context.Context, b *store.Batch) error {
	return r.st.Apply(ctx, b)
}

func (r *repository) get(ctx context.Context, key []byte, dst any) (bool, error) {
	raw, err := r.st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	if err := rlp.DecodeBytes(raw, dst); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// batch accumulates one atomic state transition.
//
// Meta, round and nonce records are written without expiry: they hold the
// admin, every King and the replay guard. Progress and completed-trial
// markers carry the store lifetime and are renewed after each write.
type batch struct {
	*store.Batch
}

func newBatch() batch {
	return batch{store.NewBatch()}
}

func (b batch) put(key []byte, v any) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	b.Set(key, raw)
	return nil
}

func (b batch) persist(key []byte, v any) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	b.Persist(key, raw)
	return nil
}

func (b batch) putMeta(m Meta) error {
	return b.persist(metaKey(), metaRecord(m))
}

func (b batch) putRound(rs RoundState) error {
	rec := roundRecord{
		RoundID:        rs.RoundID,
		RequiredTrials: rs.RequiredTrials,
		Locked:         rs.Locked,
	}
	if rs.King != nil {
		rec.HasKing, rec.King = true, *rs.King
		if rs.CrownedAt != nil {
			rec.CrownedAt = uint64(rs.CrownedAt.UnixMilli())
		}
	}
	if rs.Session != nil {
		rec.HasSession = true
		rec.SessionID = rs.Session.ID
		rec.SessionPlayer1, rec.SessionPlayer2 = rs.Session.Player1, rs.Session.Player2
	}
	return b.persist(roundKey(rs.RoundID), rec)
}

func (b batch) putProgress(p PlayerProgress) error {
	rec := progressRecord{
		TrialsCompleted: p.TrialsCompleted,
		IsKing:          p.IsKing,
	}
	if !p.LastEventAt.IsZero() {
		rec.LastEventAt = uint64(p.LastEventAt.UnixMilli())
	}
	return b.put(progressKey(p.RoundID, p.Player), rec)
}

func (b batch) putNonce(player common.Address, nonce uint64) error {
	return b.persist(nonceKey(player), nonce)
}

func (b batch) markTrial(round uint32, player common.Address, trial common.Hash) {
	b.Set(trialKey(round, player, trial), completedMarker)
}
