package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes. Generation routes are only bound when
// a generator is configured, job routes only with a job service.
func (h *Handler) RegisterMux(r *mux.Router) {
	if h.gen != nil {
		r.HandleFunc(routeProve, h.handleProve).Methods(http.MethodPost).Name(routeNameProve)
	}
	if h.jobs != nil {
		r.HandleFunc(routeProveJobs, h.handleSubmitJob).Methods(http.MethodPost).Name(routeNameProveJobs)
		r.HandleFunc(routeProveJob, h.handleJob).Methods(http.MethodGet).Name(routeNameProveJob)
	}
	r.HandleFunc(routeVerify, h.handleVerify).Methods(http.MethodPost).Name(routeNameVerify)
	r.HandleFunc(routeImageID, h.handleImageID).Methods(http.MethodGet).Name(routeNameImageID)
}
