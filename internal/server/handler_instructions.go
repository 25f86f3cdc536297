package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/me/govm/pkg/model"
)

func (s *Server) handleSubmitInstructions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if len(req.Messages) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "messages", Message: "at least one message is required"}))
		return
	}

	var details []model.FieldError
	for i, m := range req.Messages {
		if m == nil {
			details = append(details, model.FieldError{Field: fmt.Sprintf("messages[%d]", i), Message: "message is null"})
			continue
		}
		shape := m.Validate()
		for _, fe := range shape {
			fe.Field = fmt.Sprintf("messages[%d].%s", i, fe.Field)
			details = append(details, fe)
		}
		// An unknown unit type would halt the scheduler on the next tick.
		if len(shape) == 0 && !s.scheduler.HasUnitType(m.UnitType) {
			details = append(details, model.FieldError{
				Field:   fmt.Sprintf("messages[%d].unit", i),
				Message: fmt.Sprintf("unknown unit type %q", m.UnitType),
			})
		}
	}
	if len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid instruction messages", details...))
		return
	}

	if err := s.scheduler.Err(); err != nil {
		respondError(w, reqID, http.StatusServiceUnavailable,
			&model.APIError{Code: model.ErrUnavailable, Message: "scheduler halted: " + err.Error()})
		return
	}
	if s.scheduler.Backpressure() {
		w.Header().Set("Retry-After", "1")
		respondError(w, reqID, http.StatusTooManyRequests,
			&model.APIError{Code: model.ErrBackpressure, Message: "scheduler is applying backpressure, retry later"})
		return
	}

	ids := s.scheduler.Receive(req.Messages)
	s.logger.Debug("instructions received", "count", len(ids), "request_id", reqID)
	respondAccepted(w, reqID, model.SubmitResponse{Accepted: len(ids), IDs: ids})
}
