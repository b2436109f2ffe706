package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names the business event an audit entry records.
type AuditAction string

const (
	AuditTripCreated              AuditAction = "TRIP_CREATED"
	AuditTripUpdated              AuditAction = "TRIP_UPDATED"
	AuditTripStatusChanged        AuditAction = "TRIP_STATUS_CHANGED"
	AuditBookingAutoHalted        AuditAction = "BOOKING_AUTO_HALTED"
	AuditPreTripCheckOverride     AuditAction = "PRE_TRIP_CHECK_OVERRIDE"
	AuditResourceConflictOverride AuditAction = "RESOURCE_CONFLICT_OVERRIDE"
	AuditManifestRequested        AuditAction = "MANIFEST_REQUESTED"
)

// BulkAuditAction returns the audit action recorded for a bulk call.
func BulkAuditAction(a BulkAction) AuditAction {
	return AuditAction("BULK_" + string(a))
}

// AuditEntry is an append-only record of who did what to which trip.
// TripID and CompanyID are nil for entries not tied to a single trip/company.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	ActorID   uuid.UUID      `json:"actor_id"`
	Action    AuditAction    `json:"action"`
	Details   map[string]any `json:"details"`
	TripID    *uuid.UUID     `json:"trip_id,omitempty"`
	CompanyID *uuid.UUID     `json:"company_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTripAudit builds an entry scoped to a trip and its company.
func NewTripAudit(actor Actor, action AuditAction, trip Trip, details map[string]any) AuditEntry {
	tripID, companyID := trip.ID, trip.CompanyID
	return AuditEntry{
		ActorID:   actor.ID,
		Action:    action,
		Details:   details,
		TripID:    &tripID,
		CompanyID: &companyID,
	}
}
