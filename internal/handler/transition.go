package handler

import (
	"net/http"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/service"
)

// TransitionRequest is the body of POST /trips/{id}/transitions.
type TransitionRequest struct {
	Status          domain.TripStatus   `json:"status"`
	ExpectedVersion *int64              `json:"expected_version,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	DelayReason     *domain.DelayReason `json:"delay_reason,omitempty"`
	SkipSafetyGate  bool                `json:"skip_safety_gate,omitempty"`
	SkipReason      string              `json:"skip_reason,omitempty"`
}

// ProposeTransition handles POST /trips/{id}/transitions.
func (s *Server) ProposeTransition(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body TransitionRequest
	if !readBody(w, r, &body) {
		return
	}

	trip, err := s.transitions.ProposeTransition(r.Context(), a, service.TransitionRequest{
		TripID:          id,
		Target:          body.Status,
		ExpectedVersion: body.ExpectedVersion,
		Notes:           body.Notes,
		DelayReason:     body.DelayReason,
		SkipSafetyGate:  body.SkipSafetyGate,
		SkipReason:      body.SkipReason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// ListTransitions handles GET /trips/{id}/transitions.
func (s *Server) ListTransitions(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	next, err := s.transitions.NextStates(r.Context(), a, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}
