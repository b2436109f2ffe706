package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/service"
)

// TripRequest is the body of POST /trips and PUT /trips/{id}. Version is
// required on PUT. AvailableSlots defaults to TotalSlots.
type TripRequest struct {
	Version          *int64           `json:"version,omitempty"`
	Origin           string           `json:"origin"`
	Destination      string           `json:"destination"`
	DepartureTime    time.Time        `json:"departure_time"`
	DriverID         *uuid.UUID       `json:"driver_id,omitempty"`
	ConductorID      *uuid.UUID       `json:"conductor_id,omitempty"`
	ManualTicketerID *uuid.UUID       `json:"manual_ticketer_id,omitempty"`
	VehicleID        *uuid.UUID       `json:"vehicle_id,omitempty"`
	Price            float64          `json:"price"`
	TotalSlots       int              `json:"total_slots"`
	AvailableSlots   *int             `json:"available_slots,omitempty"`
	Overrides        OverridesRequest `json:"overrides"`
}

// OverridesRequest accepts scheduling conflicts reported by a previous 409.
type OverridesRequest struct {
	OverrideVehicleConflict   bool   `json:"override_vehicle_conflict"`
	VehicleOverrideReason     string `json:"vehicle_override_reason"`
	AcknowledgeStaffConflicts bool   `json:"acknowledge_staff_conflicts"`
}

func (b TripRequest) input() service.TripInput {
	available := b.TotalSlots
	if b.AvailableSlots != nil {
		available = *b.AvailableSlots
	}
	return service.TripInput{
		Origin:           b.Origin,
		Destination:      b.Destination,
		DepartureTime:    b.DepartureTime,
		DriverID:         b.DriverID,
		ConductorID:      b.ConductorID,
		ManualTicketerID: b.ManualTicketerID,
		VehicleID:        b.VehicleID,
		Price:            b.Price,
		TotalSlots:       b.TotalSlots,
		AvailableSlots:   available,
	}
}

func (o OverridesRequest) overrides() service.Overrides {
	return service.Overrides{
		OverrideVehicleConflict:   o.OverrideVehicleConflict,
		VehicleReason:             o.VehicleOverrideReason,
		AcknowledgeStaffConflicts: o.AcknowledgeStaffConflicts,
	}
}

// CreateTrip handles POST /trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	var body TripRequest
	if !readBody(w, r, &body) {
		return
	}

	created, err := s.trips.Create(r.Context(), a, body.input(), body.Overrides.overrides())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetTrip handles GET /trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	trip, err := s.trips.Get(r.Context(), a, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// UpdateTrip handles PUT /trips/{id}.
func (s *Server) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body TripRequest
	if !readBody(w, r, &body) {
		return
	}
	if body.Version == nil {
		requestError(w, "version is required")
		return
	}

	updated, err := s.trips.Update(r.Context(), a, id, *body.Version, body.input(), body.Overrides.overrides())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ConflictsRequest is the body of POST /trips/conflicts. ExcludeTripID is the
// trip being edited, if any.
type ConflictsRequest struct {
	DepartureTime    time.Time  `json:"departure_time"`
	DriverID         *uuid.UUID `json:"driver_id,omitempty"`
	ConductorID      *uuid.UUID `json:"conductor_id,omitempty"`
	VehicleID        *uuid.UUID `json:"vehicle_id,omitempty"`
	ManualTicketerID *uuid.UUID `json:"manual_ticketer_id,omitempty"`
	ExcludeTripID    *uuid.UUID `json:"exclude_trip_id,omitempty"`
}

// ConflictsResponse lists the conflicts found for a candidate.
type ConflictsResponse struct {
	Conflicts []domain.Conflict `json:"conflicts"`
}

// DetectConflicts handles POST /trips/conflicts. The candidate is always
// checked within the caller's own company.
func (s *Server) DetectConflicts(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	var body ConflictsRequest
	if !readBody(w, r, &body) {
		return
	}

	conflicts, err := s.trips.DetectConflicts(r.Context(), a, domain.ConflictCandidate{
		CompanyID:        a.CompanyID,
		DepartureTime:    body.DepartureTime,
		DriverID:         body.DriverID,
		ConductorID:      body.ConductorID,
		VehicleID:        body.VehicleID,
		ManualTicketerID: body.ManualTicketerID,
		ExcludeTripID:    body.ExcludeTripID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: conflicts})
}

// ListTripAudit handles GET /trips/{id}/audit.
// Supports ?page= and ?limit= query parameters.
func (s *Server) ListTripAudit(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	params, ok := pageParams(w, r)
	if !ok {
		return
	}

	page, err := s.trips.AuditTrail(r.Context(), a, id, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
