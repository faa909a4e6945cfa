package http

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/throne/server/api"
	"github.com/compose-network/throne/x/auth"
	"github.com/compose-network/throne/x/issuer"
	"github.com/compose-network/throne/x/trials"
)

type Handler struct {
	issuer *issuer.Issuer
	auth   auth.Config
	log    zerolog.Logger
}

func NewHandler(iss *issuer.Issuer, authCfg auth.Config, log zerolog.Logger) *Handler {
	return &Handler{
		issuer: iss,
		auth:   authCfg,
		log:    log.With().Str("component", "issuer-http").Logger(),
	}
}

type trialView struct {
	trials.Trial
	TrialID common.Hash `json:"trial_id"`
}

func (h *Handler) handleSolution(w http.ResponseWriter, r *http.Request) {
	var req issuer.Request
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &req) {
		return
	}
	if !apicommon.Authorize(w, r, req.Player, h.auth.RequireSignatures) {
		return
	}

	receipt, err := h.issuer.Issue(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleTrials(w http.ResponseWriter, r *http.Request) {
	catalog := h.issuer.Catalog()
	out := make([]trialView, 0, catalog.Len())
	for _, t := range catalog.All() {
		id, err := catalog.TrialID(t.Index)
		if err != nil {
			continue
		}
		out = append(out, trialView{Trial: t, TrialID: id})
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"trials": out})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ierr *issuer.Error
	if !errors.As(err, &ierr) {
		ierr = issuer.ErrInternal.WithCause(err)
	}

	switch ierr.Type {
	case issuer.ErrorTypeInvalidRequest:
		apicommon.WriteError(w, r, http.StatusBadRequest, ierr.Type.String(), ierr.Message, nil)
	case issuer.ErrorTypeIncorrectSolution:
		apicommon.WriteError(w, r, http.StatusUnprocessableEntity, ierr.Type.String(), ierr.Message, nil)
	case issuer.ErrorTypeProofFailed:
		h.log.Warn().Err(err).Msg("Proof step failed while issuing attestation")
		apicommon.WriteError(w, r, http.StatusBadGateway, ierr.Type.String(), ierr.Message, nil)
	default:
		h.log.Error().Err(err).Msg("Failed to issue attestation")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
