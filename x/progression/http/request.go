package http

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/progression"
	"github.com/compose-network/throne/x/prover"
)

// A zero round_id targets the current round.
type attestationSubmitReq struct {
	RoundID     uint32                  `json:"round_id"`
	Attestation attestation.Attestation `json:"attestation"`
}

type proofSubmitReq struct {
	Player     common.Address   `json:"player"`
	TrialIndex uint32           `json:"trial_index"`
	RoundID    uint32           `json:"round_id"`
	Artifact   *prover.Artifact `json:"artifact"`
}

// Signed admin and session bodies carry issued_at (unix seconds) and are
// refused outside auth.Config.MaxRequestAge. Round names the round being
// closed and must be the current one.
type advanceRoundReq struct {
	Caller   common.Address `json:"caller"`
	Round    uint32         `json:"round"`
	IssuedAt int64          `json:"issued_at"`
}

type requiredTrialsReq struct {
	Caller         common.Address `json:"caller"`
	RequiredTrials uint32         `json:"required_trials"`
	IssuedAt       int64          `json:"issued_at"`
}

type startSessionReq struct {
	SessionID uint32         `json:"session_id"`
	Player1   common.Address `json:"player1"`
	Player2   common.Address `json:"player2"`
	IssuedAt  int64          `json:"issued_at"`
}

type eventView struct {
	Kind  progression.EventKind `json:"kind"`
	Event progression.Event     `json:"event"`
}

type eventsResp struct {
	Events []eventView `json:"events"`
}

func newEventsResp(events []progression.Event) eventsResp {
	out := eventsResp{Events: make([]eventView, 0, len(events))}
	for _, ev := range events {
		out.Events = append(out.Events, eventView{Kind: ev.Kind(), Event: ev})
	}
	return out
}

type progressResp struct {
	progression.PlayerProgress
	Required uint32                   `json:"required_trials"`
	Status   progression.PlayerStatus `json:"status"`
}

type nonceResp struct {
	Player    common.Address `json:"player"`
	LastNonce uint64         `json:"last_nonce"`
}

type roundResp struct {
	progression.RoundState
	Events []eventView `json:"events,omitempty"`
}
