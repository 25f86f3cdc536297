package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/govm/pkg/model"
)

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	objects := s.scheduler.Snapshot().Objects
	total := len(objects)
	start := min(opts.Offset, total)
	end := min(start+opts.Limit, total)
	respondList(w, reqID, objects[start:end], pagination(opts, total))
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	raw := chi.URLParam(r, "id")

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid object id",
				model.FieldError{Field: "id", Message: "id must be an unsigned integer"}))
		return
	}
	obj, ok := s.scheduler.Object(model.LogicalObjectID(id))
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("object", raw))
		return
	}
	respondOK(w, reqID, obj)
}
