package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/clock"
	"github.com/pkordes/busline/internal/dispatch"
	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/metrics"
	"github.com/pkordes/busline/internal/repo"
)

// TransitionRequest asks to move a trip to Target.
//
// ExpectedVersion, when set, must match the stored version; clients that
// rendered a trip pass it to avoid acting on stale data. DelayReason is
// required for DELAYED. SkipSafetyGate with a SkipReason of at least
// domain.MinOverrideReasonLen characters bypasses a blocked safety gate.
type TransitionRequest struct {
	TripID          uuid.UUID
	Target          domain.TripStatus
	ExpectedVersion *int64
	Notes           string
	DelayReason     *domain.DelayReason
	SkipSafetyGate  bool
	SkipReason      string
}

// NextStates is the current status of a trip and the targets the actor may
// pick from it.
type NextStates struct {
	TripID  uuid.UUID           `json:"trip_id"`
	Version int64               `json:"version"`
	Current domain.TripStatus   `json:"current"`
	Allowed []domain.TripStatus `json:"allowed"`
}

// TransitionService is the trip state machine. It is the only writer of a
// trip's status.
type TransitionService struct {
	store      Store
	dispatcher Dispatcher
	clock      clock.Clock
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// NewTransitionService constructs a TransitionService.
func NewTransitionService(store Store, d Dispatcher, clk clock.Clock, m *metrics.Metrics, log *slog.Logger) *TransitionService {
	return &TransitionService{store: store, dispatcher: d, clock: clk, metrics: m, log: log}
}

// ProposeTransition validates and applies one status change. The status
// write, its lifecycle fields, vehicle release and audit entries commit
// together under a compare-and-swap on the trip version; staff sync and the
// departure manifest are dispatched after commit.
//
// Errors: domain.ErrValidation, domain.ErrNotFound, domain.ErrAuthorization,
// *domain.InvalidTransitionError, *domain.SafetyGateError,
// domain.ErrVersionConflict, domain.ErrTimeout.
func (s *TransitionService) ProposeTransition(ctx context.Context, actor domain.Actor, req TransitionRequest) (domain.Trip, error) {
	if !req.Target.Valid() {
		return domain.Trip{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, req.Target)
	}

	var (
		prev, updated domain.Trip
		gateSkipped   bool
	)
	err := s.store.WithinTx(ctx, TxTimeout, func(r repo.Repos) error {
		trip, err := r.Trips.GetByID(ctx, req.TripID)
		if err != nil {
			return err
		}
		if err := requireCompany(actor, trip); err != nil {
			return err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != trip.Version {
			return domain.ErrVersionConflict
		}
		if !domain.CanTransition(trip.Status, req.Target) {
			return domain.NewInvalidTransition(trip.Status, req.Target)
		}

		next, skipped, err := s.apply(ctx, r, actor, trip, req)
		if err != nil {
			return err
		}

		updated, err = r.Trips.UpdateStatus(ctx, next, trip.Version)
		if err != nil {
			return err
		}
		if (req.Target == domain.StatusCompleted || req.Target == domain.StatusCancelled) && trip.VehicleID != nil {
			if _, err := r.Vehicles.Release(ctx, *trip.VehicleID); err != nil {
				return err
			}
		}
		if err := s.audit(ctx, r, actor, trip, updated, req, skipped); err != nil {
			return err
		}
		prev, gateSkipped = trip, skipped
		return nil
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TransitionService.ProposeTransition: %w", err)
	}

	s.metrics.Transitions.WithLabelValues(string(prev.Status), string(updated.Status)).Inc()
	if gateSkipped {
		s.metrics.Overrides.WithLabelValues(metrics.OverrideSafetyGate).Inc()
	}
	s.log.InfoContext(ctx, "trip status changed",
		"trip_id", updated.ID,
		"from", prev.Status,
		"to", updated.Status,
		"actor_id", actor.ID,
	)

	switch updated.Status {
	case domain.StatusDeparted:
		s.dispatcher.Publish(dispatch.StaffSync(updated))
		s.dispatcher.Publish(dispatch.Manifest(updated, domain.ManifestAutoDeparted))
	case domain.StatusCompleted, domain.StatusCancelled:
		s.dispatcher.Publish(dispatch.StaffSync(updated))
	}
	return updated, nil
}

// apply returns trip with the fields the target status sets, after the
// authorization and gate checks that target needs.
func (s *TransitionService) apply(ctx context.Context, r repo.Repos, actor domain.Actor, trip domain.Trip, req TransitionRequest) (domain.Trip, bool, error) {
	now := s.clock.Now()
	next := trip
	next.Status = req.Target
	skipped := false

	switch req.Target {
	case domain.StatusDelayed:
		if req.DelayReason == nil || !req.DelayReason.Valid() {
			return trip, false, fmt.Errorf("%w: a valid delay reason is required", domain.ErrValidation)
		}
		reason := *req.DelayReason
		next.DelayReason = &reason
		next.DelayedAt = &now

	case domain.StatusScheduled:
		next.DelayReason = nil
		next.DelayedAt = nil

	case domain.StatusDeparted:
		if !actor.CanDepart(trip) {
			return trip, false, fmt.Errorf("%w: only a company admin or the assigned driver may depart a trip", domain.ErrAuthorization)
		}
		if trip.VehicleID != nil {
			vehicle, err := r.Vehicles.GetByID(ctx, *trip.VehicleID)
			if err != nil {
				return trip, false, err
			}
			decision, err := NewSafetyGate(r.Inspections, s.clock).Evaluate(ctx, vehicle, req.Target)
			if err != nil {
				return trip, false, err
			}
			if decision.Blocked {
				if !req.SkipSafetyGate {
					s.metrics.SafetyGateBlocks.Inc()
					return trip, false, decision.Block(vehicle)
				}
				if err := domain.ValidateOverrideReason(req.SkipReason); err != nil {
					return trip, false, err
				}
				skipped = true
			}
		}
		next.ActualDepartureTime = &now
		next.BookingHalted = true
		next.DelayReason = nil
		next.DelayedAt = nil

	case domain.StatusCompleted:
		next.ActualArrivalTime = &now
		next.BookingHalted = true

	case domain.StatusCancelled:
		next.BookingHalted = true
	}
	return next, skipped, nil
}

// audit writes the entries of one transition inside its transaction.
func (s *TransitionService) audit(ctx context.Context, r repo.Repos, actor domain.Actor, prev, updated domain.Trip, req TransitionRequest, gateSkipped bool) error {
	details := map[string]any{
		"previous_status": prev.Status,
		"new_status":      updated.Status,
		"route":           updated.Route(),
		"vehicle_id":      updated.VehicleID,
		"driver_id":       updated.DriverID,
		"notes":           req.Notes,
	}
	if updated.DelayReason != nil {
		details["delay_reason"] = *updated.DelayReason
	}
	entries := []domain.AuditEntry{domain.NewTripAudit(actor, domain.AuditTripStatusChanged, updated, details)}

	if updated.Status == domain.StatusDeparted {
		entries = append(entries, domain.NewTripAudit(actor, domain.AuditBookingAutoHalted, updated, map[string]any{
			"route": updated.Route(),
		}))
	}
	if gateSkipped {
		entries = append(entries, domain.NewTripAudit(actor, domain.AuditPreTripCheckOverride, updated, map[string]any{
			"reason":     req.SkipReason,
			"vehicle_id": updated.VehicleID,
			"route":      updated.Route(),
		}))
	}

	for _, e := range entries {
		if _, err := r.Audit.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// NextStates returns the targets the actor may choose for a trip. DEPARTED is
// left out for actors who may not depart it.
func (s *TransitionService) NextStates(ctx context.Context, actor domain.Actor, tripID uuid.UUID) (NextStates, error) {
	trip, err := s.store.Repos().Trips.GetByID(ctx, tripID)
	if err != nil {
		return NextStates{}, fmt.Errorf("service.TransitionService.NextStates: %w", err)
	}
	if err := requireCompany(actor, trip); err != nil {
		return NextStates{}, fmt.Errorf("service.TransitionService.NextStates: %w", err)
	}

	allowed := []domain.TripStatus{}
	for _, st := range domain.NextStatuses(trip.Status) {
		if st == domain.StatusDeparted && !actor.CanDepart(trip) {
			continue
		}
		allowed = append(allowed, st)
	}
	return NextStates{TripID: trip.ID, Version: trip.Version, Current: trip.Status, Allowed: allowed}, nil
}
