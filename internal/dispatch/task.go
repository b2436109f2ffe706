// Package dispatch runs the side effects of committed trip changes: staff
// status sync, manifest requests and notifications. Publishing never blocks
// and never fails the caller; a task that keeps failing is logged and counted.
package dispatch

import (
	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/domain"
)

// Kind identifies what a Task does.
type Kind string

const (
	KindStaffSync Kind = "staff_sync"
	KindManifest  Kind = "manifest"
	KindNotify    Kind = "notify"
)

// Task is one fire-and-forget side effect. Only the fields of its Kind are set.
type Task struct {
	Kind      Kind
	TripID    uuid.UUID
	CompanyID uuid.UUID

	// KindStaffSync: the trip's driver/conductor. Status is the status the
	// trip entered; it is logged but never decides the staff status.
	Status   domain.TripStatus
	StaffIDs []uuid.UUID

	// KindManifest
	Trigger domain.ManifestTrigger

	// KindNotify. Company admins are added to Recipients when the task runs.
	Notification domain.NotificationKind
	Recipients   []uuid.UUID
	Payload      map[string]any
}

// StaffSync builds the staff status task for a trip that just entered its
// current status. Only DEPARTED, COMPLETED and CANCELLED move staff.
func StaffSync(trip domain.Trip) Task {
	return Task{
		Kind:      KindStaffSync,
		TripID:    trip.ID,
		CompanyID: trip.CompanyID,
		Status:    trip.Status,
		StaffIDs:  trip.StaffIDs(),
	}
}

// Manifest builds a manifest request task.
func Manifest(trip domain.Trip, trigger domain.ManifestTrigger) Task {
	return Task{
		Kind:      KindManifest,
		TripID:    trip.ID,
		CompanyID: trip.CompanyID,
		Trigger:   trigger,
	}
}

// Notify builds a notification task for the given staff and the trip's
// company admins.
func Notify(trip domain.Trip, kind domain.NotificationKind, recipients []uuid.UUID, payload map[string]any) Task {
	return Task{
		Kind:         KindNotify,
		TripID:       trip.ID,
		CompanyID:    trip.CompanyID,
		Notification: kind,
		Recipients:   recipients,
		Payload:      payload,
	}
}
