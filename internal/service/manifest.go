package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/dispatch"
	"github.com/pkordes/busline/internal/domain"
)

// ManifestService requests passenger manifests outside the automatic
// departure trigger.
type ManifestService struct {
	store      Store
	dispatcher Dispatcher
	log        *slog.Logger
}

// NewManifestService constructs a ManifestService.
func NewManifestService(store Store, d Dispatcher, log *slog.Logger) *ManifestService {
	return &ManifestService{store: store, dispatcher: d, log: log}
}

// RequestManual asks for a manifest on behalf of the company (MANUAL_COMPANY).
// Cancelled trips have no passengers to list and are refused.
func (s *ManifestService) RequestManual(ctx context.Context, actor domain.Actor, tripID uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return fmt.Errorf("service.ManifestService.RequestManual: %w", err)
	}
	trip, err := s.tripFor(ctx, actor, tripID)
	if err != nil {
		return fmt.Errorf("service.ManifestService.RequestManual: %w", err)
	}
	if trip.Status == domain.StatusCancelled {
		return fmt.Errorf("%w: trip is cancelled", domain.ErrViewOnlyStatus)
	}
	s.request(ctx, actor, trip, domain.ManifestManualCompany)
	return nil
}

// CapacityChanged is called after seats were sold or released. When the trip
// has just sold out it requests an AUTO_FULL_CAPACITY manifest and reports true.
func (s *ManifestService) CapacityChanged(ctx context.Context, actor domain.Actor, tripID uuid.UUID) (bool, error) {
	trip, err := s.tripFor(ctx, actor, tripID)
	if err != nil {
		return false, fmt.Errorf("service.ManifestService.CapacityChanged: %w", err)
	}
	if trip.AvailableSlots > 0 || trip.Status.Terminal() {
		return false, nil
	}
	s.request(ctx, actor, trip, domain.ManifestAutoFullCapacity)
	return true, nil
}

func (s *ManifestService) tripFor(ctx context.Context, actor domain.Actor, tripID uuid.UUID) (domain.Trip, error) {
	trip, err := s.store.Repos().Trips.GetByID(ctx, tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	if err := requireCompany(actor, trip); err != nil {
		return domain.Trip{}, err
	}
	return trip, nil
}

// request records the audit entry and hands the request to the dispatcher.
// The audit write is best-effort like the request itself.
func (s *ManifestService) request(ctx context.Context, actor domain.Actor, trip domain.Trip, trigger domain.ManifestTrigger) {
	entry := domain.NewTripAudit(actor, domain.AuditManifestRequested, trip, map[string]any{
		"trigger": trigger,
		"route":   trip.Route(),
	})
	if _, err := s.store.Repos().Audit.Append(ctx, entry); err != nil {
		s.log.ErrorContext(ctx, "manifest audit entry not written", "trip_id", trip.ID, "error", err)
	}
	s.dispatcher.Publish(dispatch.Manifest(trip, trigger))
}
