// Package domain contains the core data types for the Busline trip engine.
// This package has no dependencies on other internal packages and is imported
// by every other internal package (repo, service, dispatch, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DelayReason classifies why a trip left its schedule.
type DelayReason string

const (
	DelayTraffic     DelayReason = "TRAFFIC"
	DelayWeather     DelayReason = "WEATHER"
	DelayMechanical  DelayReason = "MECHANICAL"
	DelayOperational DelayReason = "OPERATIONAL"
	DelayOther       DelayReason = "OTHER"
)

// Valid reports whether r is one of the known delay reasons.
func (r DelayReason) Valid() bool {
	switch r {
	case DelayTraffic, DelayWeather, DelayMechanical, DelayOperational, DelayOther:
		return true
	}
	return false
}

// Price bounds accepted for a single trip fare.
const (
	MinPrice = 0
	MaxPrice = 100000
)

// Trip is a single scheduled bus journey. It is the only contended row in the
// system: every write goes through a compare-and-swap on Version.
//
// Resource fields are weak references. The trip never owns the vehicle or the
// staff member it points at.
type Trip struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID uuid.UUID  `json:"company_id"`
	Version   int64      `json:"version"`
	Status    TripStatus `json:"status"`

	Origin      string `json:"origin"`
	Destination string `json:"destination"`

	DepartureTime       time.Time  `json:"departure_time"`
	ActualDepartureTime *time.Time `json:"actual_departure_time,omitempty"`
	ActualArrivalTime   *time.Time `json:"actual_arrival_time,omitempty"`

	// Cleared whenever the trip departs.
	DelayReason *DelayReason `json:"delay_reason,omitempty"`
	DelayedAt   *time.Time   `json:"delayed_at,omitempty"`

	DriverID         *uuid.UUID `json:"driver_id,omitempty"`
	ConductorID      *uuid.UUID `json:"conductor_id,omitempty"`
	ManualTicketerID *uuid.UUID `json:"manual_ticketer_id,omitempty"`
	VehicleID        *uuid.UUID `json:"vehicle_id,omitempty"`

	BookingHalted  bool    `json:"booking_halted"`
	Price          float64 `json:"price"`
	TotalSlots     int     `json:"total_slots"`
	AvailableSlots int     `json:"available_slots"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Route returns the human-readable route label used in conflict reports and
// audit details.
func (t Trip) Route() string {
	return t.Origin + " → " + t.Destination
}

// ViewOnly reports whether the stored status forbids further field edits.
func (t Trip) ViewOnly() bool {
	return t.Status.ViewOnly()
}

// EffectiveStatus returns the status used by the bulk delete guard. A
// SCHEDULED trip whose departure time has already passed is treated as
// DEPARTED even though nobody advanced it yet. The state machine does not use
// this; it always works from the stored status.
func (t Trip) EffectiveStatus(now time.Time) TripStatus {
	if t.Status == StatusScheduled && t.DepartureTime.Before(now) {
		return StatusDeparted
	}
	return t.Status
}

// StaffIDs returns the assigned driver and conductor, the staff members whose
// availability follows the trip's lifecycle.
func (t Trip) StaffIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, id := range []*uuid.UUID{t.DriverID, t.ConductorID} {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	return ids
}

// AssignedIDs returns every staff member referenced by the trip, including the
// manual ticketer.
func (t Trip) AssignedIDs() []uuid.UUID {
	ids := t.StaffIDs()
	if t.ManualTicketerID != nil {
		ids = append(ids, *t.ManualTicketerID)
	}
	return ids
}
