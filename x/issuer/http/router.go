package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeSolutions, h.handleSolution).Methods(http.MethodPost).Name(routeNameSolutions)
	r.HandleFunc(routeTrials, h.handleTrials).Methods(http.MethodGet).Name(routeNameTrials)
}
