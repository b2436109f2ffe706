package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/dispatch"
	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/metrics"
	"github.com/pkordes/busline/internal/repo"
)

// TripInput is the schedulable part of a trip, as submitted for create or edit.
type TripInput struct {
	Origin           string
	Destination      string
	DepartureTime    time.Time
	DriverID         *uuid.UUID
	ConductorID      *uuid.UUID
	ManualTicketerID *uuid.UUID
	VehicleID        *uuid.UUID
	Price            float64
	TotalSlots       int
	AvailableSlots   int
}

// Overrides carries the caller's explicit acceptance of scheduling conflicts.
// A vehicle conflict needs OverrideVehicleConflict and a VehicleReason of at
// least domain.MinOverrideReasonLen characters; staff conflicts need
// AcknowledgeStaffConflicts.
type Overrides struct {
	OverrideVehicleConflict   bool
	VehicleReason             string
	AcknowledgeStaffConflicts bool
}

// TripService schedules and edits trips.
type TripService struct {
	store      Store
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// NewTripService constructs a TripService.
func NewTripService(store Store, d Dispatcher, m *metrics.Metrics, log *slog.Logger) *TripService {
	return &TripService{store: store, dispatcher: d, metrics: m, log: log}
}

// Create validates and persists a new SCHEDULED trip for the actor's company.
// Conflicts are re-detected inside the write transaction.
func (s *TripService) Create(ctx context.Context, actor domain.Actor, in TripInput, ov Overrides) (domain.Trip, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	if err := validateTripInput(in); err != nil {
		return domain.Trip{}, err
	}

	trip := in.apply(domain.Trip{CompanyID: actor.CompanyID, Status: domain.StatusScheduled})
	var (
		created    domain.Trip
		overridden []domain.ResourceKind
	)
	err := s.store.WithinTx(ctx, TxTimeout, func(r repo.Repos) error {
		if err := checkVehicleAssignable(ctx, r, actor, in.VehicleID); err != nil {
			return err
		}
		conflicts, err := NewConflictDetector(r, s.metrics).FindConflicts(ctx, actor, domain.CandidateFor(trip))
		if err != nil {
			return err
		}
		audits, err := applyOverridePolicy(conflicts, ov)
		if err != nil {
			return err
		}

		created, err = r.Trips.Create(ctx, trip)
		if err != nil {
			return err
		}
		overridden = nil
		if _, err := r.Audit.Append(ctx, domain.NewTripAudit(actor, domain.AuditTripCreated, created, tripDetails(created))); err != nil {
			return err
		}
		for _, a := range audits {
			overridden = append(overridden, a.kind)
			if _, err := r.Audit.Append(ctx, domain.NewTripAudit(actor, domain.AuditResourceConflictOverride, created, a.details)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}

	s.afterWrite(ctx, created, nil, overridden)
	return created, nil
}

// Update edits the schedulable fields of a trip at expectedVersion.
// View-only trips are refused with domain.ErrViewOnlyStatus, and a price
// change on a trip with PAID bookings with domain.ErrHasPaidBookings.
func (s *TripService) Update(ctx context.Context, actor domain.Actor, id uuid.UUID, expectedVersion int64, in TripInput, ov Overrides) (domain.Trip, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Update: %w", err)
	}
	if err := validateTripInput(in); err != nil {
		return domain.Trip{}, err
	}

	var (
		prev, updated domain.Trip
		overridden    []domain.ResourceKind
	)
	err := s.store.WithinTx(ctx, TxTimeout, func(r repo.Repos) error {
		current, err := r.Trips.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := requireCompany(actor, current); err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		if current.ViewOnly() {
			return fmt.Errorf("%w: trip is %s", domain.ErrViewOnlyStatus, current.Status)
		}
		// A vehicle that went into maintenance after assignment does not block
		// unrelated edits; only a newly assigned vehicle must be ACTIVE.
		if !sameID(current.VehicleID, in.VehicleID) {
			if err := checkVehicleAssignable(ctx, r, actor, in.VehicleID); err != nil {
				return err
			}
		}

		if in.Price != current.Price {
			if err := refusePaid(ctx, r, id); err != nil {
				return err
			}
		}

		next := in.apply(current)
		conflicts, err := NewConflictDetector(r, s.metrics).FindConflicts(ctx, actor, domain.CandidateFor(next))
		if err != nil {
			return err
		}
		audits, err := applyOverridePolicy(conflicts, ov)
		if err != nil {
			return err
		}

		updated, err = r.Trips.UpdateDetails(ctx, next, expectedVersion)
		if err != nil {
			return err
		}
		details := tripDetails(updated)
		details["changed"] = changedFields(current, updated)
		if _, err := r.Audit.Append(ctx, domain.NewTripAudit(actor, domain.AuditTripUpdated, updated, details)); err != nil {
			return err
		}
		overridden = nil
		for _, a := range audits {
			overridden = append(overridden, a.kind)
			if _, err := r.Audit.Append(ctx, domain.NewTripAudit(actor, domain.AuditResourceConflictOverride, updated, a.details)); err != nil {
				return err
			}
		}
		prev = current
		return nil
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Update: %w", err)
	}

	s.afterWrite(ctx, updated, &prev, overridden)
	return updated, nil
}

// Get returns a trip of the actor's company.
func (s *TripService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Trip, error) {
	trip, err := s.store.Repos().Trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Get: %w", err)
	}
	if err := requireCompany(actor, trip); err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Get: %w", err)
	}
	return trip, nil
}

// DetectConflicts runs conflict detection without writing anything, so
// callers can show conflicts before submitting.
func (s *TripService) DetectConflicts(ctx context.Context, actor domain.Actor, c domain.ConflictCandidate) ([]domain.Conflict, error) {
	conflicts, err := NewConflictDetector(s.store.Repos(), s.metrics).FindConflicts(ctx, actor, c)
	if err != nil {
		return nil, fmt.Errorf("service.TripService.DetectConflicts: %w", err)
	}
	return conflicts, nil
}

// AuditTrail returns one page of the audit entries recorded for a trip in the
// actor's company. Entries of deleted trips remain readable.
func (s *TripService) AuditTrail(ctx context.Context, actor domain.Actor, tripID uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error) {
	page, err := s.store.Repos().Audit.ListByTrip(ctx, actor.CompanyID, tripID, p)
	if err != nil {
		return domain.Page[domain.AuditEntry]{}, fmt.Errorf("service.TripService.AuditTrail: %w", err)
	}
	return page, nil
}

// afterWrite publishes assignment notifications for staff that are new on the
// trip and counts accepted overrides.
func (s *TripService) afterWrite(ctx context.Context, trip domain.Trip, prev *domain.Trip, overridden []domain.ResourceKind) {
	for _, kind := range overridden {
		label := metrics.OverrideStaffConflict
		if kind == domain.ResourceVehicle {
			label = metrics.OverrideVehicleConflict
		}
		s.metrics.Overrides.WithLabelValues(label).Inc()
	}

	assigned := trip.AssignedIDs()
	if prev != nil {
		before := map[uuid.UUID]bool{}
		for _, id := range prev.AssignedIDs() {
			before[id] = true
		}
		fresh := assigned[:0:0]
		for _, id := range assigned {
			if !before[id] {
				fresh = append(fresh, id)
			}
		}
		assigned = fresh
	}
	if len(assigned) > 0 {
		s.dispatcher.Publish(dispatch.Notify(trip, domain.NotifyTripAssignment, assigned, map[string]any{
			"route":          trip.Route(),
			"departure_time": trip.DepartureTime,
		}))
	}
	s.log.InfoContext(ctx, "trip saved", "trip_id", trip.ID, "version", trip.Version)
}

type overrideAudit struct {
	kind    domain.ResourceKind
	details map[string]any
}

// applyOverridePolicy decides whether conflicts block the write. It returns
// the override audit entries to record when they do not.
func applyOverridePolicy(conflicts []domain.Conflict, ov Overrides) ([]overrideAudit, error) {
	vehicle, staff := SplitConflicts(conflicts)

	blocked := (len(vehicle) > 0 && !ov.OverrideVehicleConflict) ||
		(len(staff) > 0 && !ov.AcknowledgeStaffConflicts)
	if blocked {
		return nil, &domain.ConflictError{Conflicts: conflicts}
	}

	var audits []overrideAudit
	if len(vehicle) > 0 {
		if err := domain.ValidateOverrideReason(ov.VehicleReason); err != nil {
			return nil, err
		}
		audits = append(audits, overrideAudit{kind: domain.ResourceVehicle, details: map[string]any{
			"resource_kind": domain.ResourceVehicle,
			"reason":        strings.TrimSpace(ov.VehicleReason),
			"conflicts":     vehicle,
		}})
	}
	if len(staff) > 0 {
		audits = append(audits, overrideAudit{kind: staff[0].ResourceKind, details: map[string]any{
			"resource_kind": "STAFF",
			"acknowledged":  true,
			"conflicts":     staff,
		}})
	}
	return audits, nil
}

// checkVehicleAssignable enforces the hard vehicle rules that no override
// lifts: the vehicle exists, belongs to the actor's company and is ACTIVE.
func checkVehicleAssignable(ctx context.Context, r repo.Repos, actor domain.Actor, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	v, err := r.Vehicles.GetByID(ctx, *id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: vehicle does not exist", domain.ErrValidation)
	}
	if err != nil {
		return err
	}
	if v.CompanyID != actor.CompanyID {
		return fmt.Errorf("%w: vehicle belongs to another company", domain.ErrAuthorization)
	}
	if v.Status == domain.VehicleMaintenance || v.Status == domain.VehicleInactive {
		return fmt.Errorf("%w: vehicle %s is %s and cannot be assigned", domain.ErrValidation, v.PlateNumber, v.Status)
	}
	return nil
}

func validateTripInput(in TripInput) error {
	switch {
	case strings.TrimSpace(in.Origin) == "":
		return fmt.Errorf("%w: origin is required", domain.ErrValidation)
	case strings.TrimSpace(in.Destination) == "":
		return fmt.Errorf("%w: destination is required", domain.ErrValidation)
	case in.DepartureTime.IsZero():
		return fmt.Errorf("%w: departure time is required", domain.ErrValidation)
	case in.Price < domain.MinPrice || in.Price > domain.MaxPrice:
		return fmt.Errorf("%w: price must be between %d and %d", domain.ErrValidation, domain.MinPrice, domain.MaxPrice)
	case in.TotalSlots <= 0:
		return fmt.Errorf("%w: total slots must be positive", domain.ErrValidation)
	case in.AvailableSlots < 0 || in.AvailableSlots > in.TotalSlots:
		return fmt.Errorf("%w: available slots must be between 0 and total slots", domain.ErrValidation)
	}
	return nil
}

// apply copies the input onto t.
func (in TripInput) apply(t domain.Trip) domain.Trip {
	t.Origin = strings.TrimSpace(in.Origin)
	t.Destination = strings.TrimSpace(in.Destination)
	t.DepartureTime = in.DepartureTime.UTC()
	t.DriverID = in.DriverID
	t.ConductorID = in.ConductorID
	t.ManualTicketerID = in.ManualTicketerID
	t.VehicleID = in.VehicleID
	t.Price = in.Price
	t.TotalSlots = in.TotalSlots
	t.AvailableSlots = in.AvailableSlots
	return t
}

func tripDetails(t domain.Trip) map[string]any {
	return map[string]any{
		"route":          t.Route(),
		"departure_time": t.DepartureTime,
		"vehicle_id":     t.VehicleID,
		"driver_id":      t.DriverID,
		"price":          t.Price,
	}
}

// changedFields lists the schedulable fields that differ between a and b.
func changedFields(a, b domain.Trip) []string {
	changed := []string{}
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add("origin", a.Origin != b.Origin)
	add("destination", a.Destination != b.Destination)
	add("departure_time", !a.DepartureTime.Equal(b.DepartureTime))
	add("driver_id", !sameID(a.DriverID, b.DriverID))
	add("conductor_id", !sameID(a.ConductorID, b.ConductorID))
	add("manual_ticketer_id", !sameID(a.ManualTicketerID, b.ManualTicketerID))
	add("vehicle_id", !sameID(a.VehicleID, b.VehicleID))
	add("price", a.Price != b.Price)
	add("total_slots", a.TotalSlots != b.TotalSlots)
	add("available_slots", a.AvailableSlots != b.AvailableSlots)
	return changed
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
