package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeSubmitAttestation, h.handleSubmitAttestation).
		Methods(http.MethodPost).
		Name(routeNameSubmitAttestation)
	r.HandleFunc(routeSubmitProof, h.handleSubmitProof).
		Methods(http.MethodPost).
		Name(routeNameSubmitProof)

	r.HandleFunc(routeCurrentRound, h.handleCurrentRound).Methods(http.MethodGet).Name(routeNameCurrentRound)
	r.HandleFunc(routeRound, h.handleRound).Methods(http.MethodGet).Name(routeNameRound)
	r.HandleFunc(routePlayerProgress, h.handlePlayerProgress).Methods(http.MethodGet).Name(routeNamePlayerProgress)
	r.HandleFunc(routePlayerNonce, h.handlePlayerNonce).Methods(http.MethodGet).Name(routeNamePlayerNonce)

	r.HandleFunc(routeAdvanceRound, h.handleAdvanceRound).Methods(http.MethodPost).Name(routeNameAdvanceRound)
	r.HandleFunc(routeRequiredTrials, h.handleRequiredTrials).Methods(http.MethodPost).Name(routeNameRequiredTrials)
	r.HandleFunc(routeSessions, h.handleStartSession).Methods(http.MethodPost).Name(routeNameSessions)
}
