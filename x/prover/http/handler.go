package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/throne/server/api"
	"github.com/compose-network/throne/x/auth"
	"github.com/compose-network/throne/x/jobs"
	"github.com/compose-network/throne/x/prover"
)

type Handler struct {
	gen  prover.Generator
	ver  prover.Verifier
	jobs jobs.Service
	auth auth.Config
	log  zerolog.Logger
}

// NewHandler serves proof generation through gen (optional), asynchronous
// jobs through svc (optional) and verification through ver.
func NewHandler(
	gen prover.Generator,
	ver prover.Verifier,
	svc jobs.Service,
	authCfg auth.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		gen:  gen,
		ver:  ver,
		jobs: svc,
		auth: authCfg,
		log:  log.With().Str("component", "prover-http").Logger(),
	}
}

func (h *Handler) handleProve(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProveRequest(w, r)
	if !ok {
		return
	}

	artifact, err := h.gen.Generate(r.Context(), req)
	if err != nil {
		h.writeProverError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, prover.NewProveResponse(artifact))
}

func (h *Handler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProveRequest(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Submit(r.Context(), req)
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "queue_full", err.Error(), nil)
		return
	case errors.Is(err, jobs.ErrClosed):
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "shutting_down", err.Error(), nil)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to enqueue proof job")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to enqueue job", nil)
		return
	}

	w.Header().Set("Location", strings.Replace(routeProveJob, "{id}", job.ID, 1))
	apicommon.WriteJSON(w, http.StatusAccepted, job)
}

func (h *Handler) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		apicommon.WriteError(w, r, http.StatusNotFound, "job_not_found", "no job with id "+id, nil)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", id).Msg("Failed to load proof job")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to load job", nil)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &req) {
		return
	}
	if req.Artifact == nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "missing_artifact", "artifact is required", nil)
		return
	}

	expected := h.ver.Fingerprint()
	if req.ImageID != nil {
		expected = *req.ImageID
	}

	j, err := h.ver.Verify(req.Artifact, expected)
	if err != nil {
		h.writeProverError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, verifyResp{Valid: true, Journal: j})
}

func (h *Handler) handleImageID(w http.ResponseWriter, r *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, prover.ImageIDResponse{ImageID: h.ver.Fingerprint()})
}

func (h *Handler) decodeProveRequest(w http.ResponseWriter, r *http.Request) (prover.Request, bool) {
	var wire prover.ProveRequest
	if !apicommon.DecodeJSON(w, r, h.auth.MaxBodyBytes, &wire) {
		return prover.Request{}, false
	}
	req, err := wire.ToRequest()
	if err != nil {
		h.writeProverError(w, r, err)
		return prover.Request{}, false
	}
	if len(req.Solution) == 0 || len(req.Solution) > prover.MaxSolutionSize {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("solution must be 1..%d bytes", prover.MaxSolutionSize), nil)
		return prover.Request{}, false
	}
	if !apicommon.Authorize(w, r, wire.PlayerAddress, h.auth.RequireSignatures) {
		return prover.Request{}, false
	}
	return req, true
}

// writeProverError maps engine failures to HTTP. A proof that does not
// verify and a proof of a wrong answer share one code.
func (h *Handler) writeProverError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, prover.ErrInvalidRequest):
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_request", message(err), nil)
	case errors.Is(err, prover.ErrFingerprintMismatch):
		apicommon.WriteError(w, r, http.StatusUnprocessableEntity, "fingerprint_mismatch", message(err), nil)
	case errors.Is(err, prover.ErrProofInvalid), errors.Is(err, prover.ErrSolutionRejected):
		apicommon.WriteError(w, r, http.StatusUnprocessableEntity, "proof_rejected", "proof rejected", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "cancelled", "proof generation did not finish", nil)
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Proof generation failed")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "generation_failed",
			"proof generation failed; safe to retry", nil)
	}
}

func message(err error) string {
	var perr *prover.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}
