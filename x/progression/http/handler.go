package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/throne/server/api"
	"github.com/compose-network/throne/server/api/middleware"
	"github.com/compose-network/throne/x/auth"
	"github.com/compose-network/throne/x/progression"
)

type Handler struct {
	svc  progression.Service
	auth auth.Config
	now  func() time.Time
	log  zerolog.Logger
}

func NewHandler(svc progression.Service, authCfg auth.Config, log zerolog.Logger) *Handler {
	return &Handler{
		svc:  svc,
		auth: authCfg,
		now:  time.Now,
		log:  log.With().Str("component", "progression-http").Logger(),
	}
}

func (h *Handler) fresh(w http.ResponseWriter, r *http.Request, issuedAt int64) bool {
	return apicommon.Fresh(w, r, issuedAt, h.now(), h.auth.MaxRequestAge)
}

func (h *Handler) handleSubmitAttestation(w http.ResponseWriter, r *http.Request) {
	var req attestationSubmitReq
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &req) {
		return
	}
	if req.Attestation.Player == (common.Address{}) {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_player", "attestation.player is required", nil)
		return
	}
	if !apicommon.Authorize(w, r, req.Attestation.Player, h.auth.RequireSignatures) {
		return
	}

	round, ok := h.resolveRound(w, r, req.RoundID)
	if !ok {
		return
	}
	events, err := h.svc.Submit(r.Context(), progression.AttestationSubmission{Attestation: req.Attestation}, round)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, newEventsResp(events))
}

func (h *Handler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req proofSubmitReq
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &req) {
		return
	}
	if req.Player == (common.Address{}) {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_player", "player is required", nil)
		return
	}
	if req.Artifact == nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "missing_artifact", "artifact is required", nil)
		return
	}
	if !apicommon.Authorize(w, r, req.Player, h.auth.RequireSignatures) {
		return
	}

	round, ok := h.resolveRound(w, r, req.RoundID)
	if !ok {
		return
	}
	sub := progression.ProofSubmission{Address: req.Player, TrialIndex: req.TrialIndex, Artifact: req.Artifact}
	events, err := h.svc.Submit(r.Context(), sub, round)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, newEventsResp(events))
}

func (h *Handler) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.CurrentRound(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, rs)
}

func (h *Handler) handleRound(w http.ResponseWriter, r *http.Request) {
	round, ok := parseRound(w, r)
	if !ok {
		return
	}
	rs, err := h.svc.Round(r.Context(), round)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, rs)
}

func (h *Handler) handlePlayerProgress(w http.ResponseWriter, r *http.Request) {
	round, ok := parseRound(w, r)
	if !ok {
		return
	}
	player, ok := parsePlayer(w, r)
	if !ok {
		return
	}

	rs, err := h.svc.Round(r.Context(), round)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Progress(r.Context(), round, player)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, progressResp{
		PlayerProgress: p,
		Required:       rs.RequiredTrials,
		Status:         p.Status(rs.RequiredTrials),
	})
}

func (h *Handler) handlePlayerNonce(w http.ResponseWriter, r *http.Request) {
	player, ok := parsePlayer(w, r)
	if !ok {
		return
	}
	n, err := h.svc.LastNonce(r.Context(), player)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, nonceResp{Player: player, LastNonce: n})
}

func (h *Handler) handleAdvanceRound(w http.ResponseWriter, r *http.Request) {
	var req advanceRoundReq
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &req) {
		return
	}
	if req.Round == 0 {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_round", "round is required", nil)
		return
	}
	if !apicommon.Authorize(w, r, req.Caller, h.auth.RequireSignatures) || !h.fresh(w, r, req.IssuedAt) {
		return
	}

	rs, events, err := h.svc.AdvanceRound(r.Context(), req.Caller, req.Round)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, roundResp{RoundState: rs, Events: newEventsResp(events).Events})
}

func (h *Handler) handleRequiredTrials(w http.ResponseWriter, r *http.Request) {
	var req requiredTrialsReq
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &req) {
		return
	}
	if !apicommon.Authorize(w, r, req.Caller, h.auth.RequireSignatures) || !h.fresh(w, r, req.IssuedAt) {
		return
	}

	rs, err := h.svc.SetRequiredTrials(r.Context(), req.Caller, req.RequiredTrials)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, rs)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionReq
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &req) {
		return
	}
	if !apicommon.Authorize(w, r, req.Player1, h.auth.RequireSignatures) || !h.fresh(w, r, req.IssuedAt) {
		return
	}

	caller := req.Player1
	if signer, ok := middleware.SignerFromContext(r.Context()); ok {
		caller = signer
	}
	events, err := h.svc.StartSession(r.Context(), caller, req.SessionID, req.Player1, req.Player2)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusCreated, newEventsResp(events))
}

func (h *Handler) resolveRound(w http.ResponseWriter, r *http.Request, round uint32) (uint32, bool) {
	if round != 0 {
		return round, true
	}
	rs, err := h.svc.CurrentRound(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	return rs.RoundID, true
}

// writeError maps progression failures to HTTP. Only the error kind and its
// public message are exposed; causes stay in the logs.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *progression.Error
	if !errors.As(err, &perr) {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Unexpected progression failure")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
		return
	}

	status := statusFor(perr.Type)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Progression operation failed")
		apicommon.WriteError(w, r, status, perr.Type.String(), perr.Type.String(), nil)
		return
	}
	apicommon.WriteError(w, r, status, perr.Type.String(), perr.Message, nil)
}

func statusFor(t progression.ErrorType) int {
	switch t {
	case progression.ErrorTypeInvalidArgument:
		return http.StatusBadRequest
	case progression.ErrorTypeUnauthorized:
		return http.StatusForbidden
	case progression.ErrorTypeUnknownRound:
		return http.StatusNotFound
	case progression.ErrorTypeRoundLocked,
		progression.ErrorTypeReplayedNonce,
		progression.ErrorTypeOutOfOrderTrial,
		progression.ErrorTypeTrialAlreadyCompleted,
		progression.ErrorTypeAlreadyInitialized,
		progression.ErrorTypeStaleRound:
		return http.StatusConflict
	case progression.ErrorTypeInvalidAttestation,
		progression.ErrorTypeSolutionRejected:
		return http.StatusUnprocessableEntity
	case progression.ErrorTypeNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseRound(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := mux.Vars(r)["round"]
	round, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || round == 0 {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_round",
			fmt.Sprintf("round must be a positive 32-bit integer, got %q", raw), nil)
		return 0, false
	}
	return uint32(round), true
}

func parsePlayer(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["player"]
	if !common.IsHexAddress(raw) {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_player", "bad address", nil)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
