package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/govm/pkg/model"
)

// requireStore answers 503 when the server runs without a journal.
func (s *Server) requireStore(w http.ResponseWriter, reqID string) bool {
	if s.store != nil {
		return true
	}
	respondError(w, reqID, http.StatusServiceUnavailable,
		&model.APIError{Code: model.ErrUnavailable, Message: "dispatch journal is disabled"})
	return false
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	recs, total, err := s.store.ListPackages(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if recs == nil {
		recs = []*model.PackageRecord{}
	}
	respondList(w, reqID, recs, pagination(opts, total))
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetPackage(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if rec == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("package", id))
		return
	}
	respondOK(w, reqID, rec)
}

func (s *Server) handleListIdleEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	events, total, err := s.store.ListIdleEvents(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if events == nil {
		events = []*model.IdleEvent{}
	}
	respondList(w, reqID, events, pagination(opts, total))
}
