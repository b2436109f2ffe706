package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConflictWindow is the rest margin around a departure inside which a
// resource may not be assigned to a second trip without an override. It is a
// safety constant, not a business setting.
const ConflictWindow = 24 * time.Hour

// ResourceKind names the trip field a conflict was found on.
type ResourceKind string

const (
	ResourceDriver         ResourceKind = "DRIVER"
	ResourceConductor      ResourceKind = "CONDUCTOR"
	ResourceVehicle        ResourceKind = "VEHICLE"
	ResourceManualTicketer ResourceKind = "MANUAL_TICKETER"
)

// Staff reports whether the resource is a person rather than a vehicle.
func (k ResourceKind) Staff() bool {
	return k != ResourceVehicle
}

// Conflict describes one existing trip that overlaps a candidate's resource.
type Conflict struct {
	ResourceKind             ResourceKind `json:"resource_kind"`
	ResourceID               uuid.UUID    `json:"resource_id"`
	ConflictingTripID        uuid.UUID    `json:"conflicting_trip_id"`
	Route                    string       `json:"route"`
	ConflictingDepartureTime time.Time    `json:"conflicting_departure_time"`
}

// ConflictCandidate is a trip being created or edited, reduced to the fields
// conflict detection looks at. ExcludeTripID is the trip's own id when editing.
type ConflictCandidate struct {
	CompanyID        uuid.UUID  `json:"company_id"`
	DepartureTime    time.Time  `json:"departure_time"`
	DriverID         *uuid.UUID `json:"driver_id,omitempty"`
	ConductorID      *uuid.UUID `json:"conductor_id,omitempty"`
	VehicleID        *uuid.UUID `json:"vehicle_id,omitempty"`
	ManualTicketerID *uuid.UUID `json:"manual_ticketer_id,omitempty"`
	ExcludeTripID    *uuid.UUID `json:"exclude_trip_id,omitempty"`
}

// ResourceRef is a single non-null resource of a candidate.
type ResourceRef struct {
	Kind ResourceKind
	ID   uuid.UUID
}

// Resources returns the candidate's assigned resources in a stable order.
func (c ConflictCandidate) Resources() []ResourceRef {
	var refs []ResourceRef
	add := func(kind ResourceKind, id *uuid.UUID) {
		if id != nil {
			refs = append(refs, ResourceRef{Kind: kind, ID: *id})
		}
	}
	add(ResourceDriver, c.DriverID)
	add(ResourceConductor, c.ConductorID)
	add(ResourceVehicle, c.VehicleID)
	add(ResourceManualTicketer, c.ManualTicketerID)
	return refs
}

// Window returns the inclusive departure-time range searched for conflicts.
func (c ConflictCandidate) Window() (from, to time.Time) {
	return c.DepartureTime.Add(-ConflictWindow), c.DepartureTime.Add(ConflictWindow)
}

// CandidateFor builds the conflict candidate for an existing or new trip.
func CandidateFor(t Trip) ConflictCandidate {
	c := ConflictCandidate{
		CompanyID:        t.CompanyID,
		DepartureTime:    t.DepartureTime,
		DriverID:         t.DriverID,
		ConductorID:      t.ConductorID,
		VehicleID:        t.VehicleID,
		ManualTicketerID: t.ManualTicketerID,
	}
	if t.ID != uuid.Nil {
		id := t.ID
		c.ExcludeTripID = &id
	}
	return c
}
