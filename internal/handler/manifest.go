package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/domain"
)

// ManifestResponse reports whether a manifest request was handed off.
type ManifestResponse struct {
	TripID    uuid.UUID              `json:"trip_id"`
	Requested bool                   `json:"requested"`
	Trigger   domain.ManifestTrigger `json:"trigger,omitempty"`
}

// RequestManifest handles POST /trips/{id}/manifest.
func (s *Server) RequestManifest(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.manifests.RequestManual(r.Context(), a, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ManifestResponse{TripID: id, Requested: true, Trigger: domain.ManifestManualCompany})
}

// CapacityChanged handles POST /trips/{id}/capacity, called by the booking
// side after seats were sold or released.
func (s *Server) CapacityChanged(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	requested, err := s.manifests.CapacityChanged(r.Context(), a, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ManifestResponse{TripID: id, Requested: requested}
	if requested {
		resp.Trigger = domain.ManifestAutoFullCapacity
	}
	writeJSON(w, http.StatusOK, resp)
}
