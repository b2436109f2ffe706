package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/metrics"
	"github.com/pkordes/busline/internal/repo"
)

// ConflictDetector finds trips that already hold a candidate's resources
// within ±domain.ConflictWindow. It only reads; whether a conflict blocks a
// write is decided by the caller's override policy.
type ConflictDetector struct {
	trips    repo.TripRepo
	vehicles repo.VehicleRepo
	staff    repo.StaffRepo
	metrics  *metrics.Metrics
}

// NewConflictDetector binds a detector to r, which may be transaction-bound.
func NewConflictDetector(r repo.Repos, m *metrics.Metrics) *ConflictDetector {
	return &ConflictDetector{trips: r.Trips, vehicles: r.Vehicles, staff: r.Staff, metrics: m}
}

// FindConflicts returns every overlapping trip per assigned resource, in
// resource order (driver, conductor, vehicle, ticketer) and then by departure.
// It never returns nil on success.
//
// Returns domain.ErrAuthorization when the candidate or any of its resources
// belongs to another company, and domain.ErrValidation when a resource does
// not exist.
func (d *ConflictDetector) FindConflicts(ctx context.Context, actor domain.Actor, c domain.ConflictCandidate) ([]domain.Conflict, error) {
	if c.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("service.ConflictDetector.FindConflicts: %w", domain.ErrAuthorization)
	}
	if c.DepartureTime.IsZero() {
		return nil, fmt.Errorf("%w: departure time is required", domain.ErrValidation)
	}

	from, to := c.Window()
	conflicts := []domain.Conflict{}
	for _, ref := range c.Resources() {
		if err := d.checkOwner(ctx, c.CompanyID, ref); err != nil {
			return nil, err
		}
		trips, err := d.trips.FindByResource(ctx, c.CompanyID, ref, from, to, c.ExcludeTripID)
		if err != nil {
			return nil, fmt.Errorf("service.ConflictDetector.FindConflicts: %w", err)
		}
		for _, t := range trips {
			conflicts = append(conflicts, domain.Conflict{
				ResourceKind:             ref.Kind,
				ResourceID:               ref.ID,
				ConflictingTripID:        t.ID,
				Route:                    t.Route(),
				ConflictingDepartureTime: t.DepartureTime,
			})
			d.metrics.Conflicts.WithLabelValues(string(ref.Kind)).Inc()
		}
	}
	return conflicts, nil
}

func (d *ConflictDetector) checkOwner(ctx context.Context, companyID uuid.UUID, ref domain.ResourceRef) error {
	var owner uuid.UUID
	if ref.Kind == domain.ResourceVehicle {
		v, err := d.vehicles.GetByID(ctx, ref.ID)
		if err != nil {
			return resourceLookupError(ref, err)
		}
		owner = v.CompanyID
	} else {
		s, err := d.staff.GetByID(ctx, ref.ID)
		if err != nil {
			return resourceLookupError(ref, err)
		}
		owner = s.CompanyID
	}
	if owner != companyID {
		return fmt.Errorf("%w: %s belongs to another company", domain.ErrAuthorization, kindLabel(ref.Kind))
	}
	return nil
}

func resourceLookupError(ref domain.ResourceRef, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s does not exist", domain.ErrValidation, kindLabel(ref.Kind))
	}
	return fmt.Errorf("service.ConflictDetector: %w", err)
}

func kindLabel(k domain.ResourceKind) string {
	switch k {
	case domain.ResourceDriver:
		return "driver"
	case domain.ResourceConductor:
		return "conductor"
	case domain.ResourceVehicle:
		return "vehicle"
	default:
		return "manual ticketer"
	}
}

// SplitConflicts separates vehicle conflicts from staff conflicts, since
// each kind needs a different override.
func SplitConflicts(conflicts []domain.Conflict) (vehicle, staff []domain.Conflict) {
	for _, c := range conflicts {
		if c.ResourceKind.Staff() {
			staff = append(staff, c)
		} else {
			vehicle = append(vehicle, c)
		}
	}
	return vehicle, staff
}
