package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/service"
)

func (h *harness) detector() *service.ConflictDetector {
	return service.NewConflictDetector(h.store.Repos(), h.metrics)
}

func TestFindConflicts_Window(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   int
	}{
		{"23h later", 23 * time.Hour, 1},
		{"23h earlier", -23 * time.Hour, 1},
		{"exactly 24h later", 24 * time.Hour, 1},
		{"exactly 24h earlier", -24 * time.Hour, 1},
		{"25h later", 25 * time.Hour, 0},
		{"25h earlier", -25 * time.Hour, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			driver := h.store.putStaff(h.company, domain.StaffDriver)
			existing := h.scheduledTrip(func(tr *domain.Trip) { tr.DriverID = &driver })

			got, err := h.detector().FindConflicts(context.Background(), h.admin, domain.ConflictCandidate{
				CompanyID:     h.company,
				DepartureTime: existing.DepartureTime.Add(tc.offset),
				DriverID:      &driver,
			})

			require.NoError(t, err)
			require.Len(t, got, tc.want)
			if tc.want == 1 {
				assert.Equal(t, domain.Conflict{
					ResourceKind:             domain.ResourceDriver,
					ResourceID:               driver,
					ConflictingTripID:        existing.ID,
					Route:                    "Manila → Baguio",
					ConflictingDepartureTime: existing.DepartureTime,
				}, got[0])
			}
		})
	}
}

func TestFindConflicts_NoResourcesIsEmptyNotNil(t *testing.T) {
	h := newHarness()
	h.scheduledTrip()

	got, err := h.detector().FindConflicts(context.Background(), h.admin, domain.ConflictCandidate{
		CompanyID:     h.company,
		DepartureTime: now.Add(2 * time.Hour),
	})

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindConflicts_ExcludesOwnTrip(t *testing.T) {
	h := newHarness()
	driver := h.store.putStaff(h.company, domain.StaffDriver)
	trip := h.scheduledTrip(func(tr *domain.Trip) { tr.DriverID = &driver })

	got, err := h.detector().FindConflicts(context.Background(), h.admin, domain.CandidateFor(trip))

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindConflicts_EveryResourceKind(t *testing.T) {
	h := newHarness()
	driver := h.store.putStaff(h.company, domain.StaffDriver)
	conductor := h.store.putStaff(h.company, domain.StaffConductor)
	ticketer := h.store.putStaff(h.company, domain.StaffTicketer)
	v := h.store.putVehicle(domain.Vehicle{CompanyID: h.company})
	h.scheduledTrip(func(tr *domain.Trip) {
		tr.DriverID = &driver
		tr.VehicleID = &v.ID
	})
	h.scheduledTrip(func(tr *domain.Trip) {
		tr.DepartureTime = now.Add(10 * time.Hour)
		tr.ConductorID = &conductor
		tr.ManualTicketerID = &ticketer
	})

	got, err := h.detector().FindConflicts(context.Background(), h.admin, domain.ConflictCandidate{
		CompanyID:        h.company,
		DepartureTime:    now.Add(5 * time.Hour),
		DriverID:         &driver,
		ConductorID:      &conductor,
		VehicleID:        &v.ID,
		ManualTicketerID: &ticketer,
	})

	require.NoError(t, err)
	kinds := make([]domain.ResourceKind, len(got))
	for i, c := range got {
		kinds[i] = c.ResourceKind
	}
	assert.Equal(t, []domain.ResourceKind{
		domain.ResourceDriver,
		domain.ResourceConductor,
		domain.ResourceVehicle,
		domain.ResourceManualTicketer,
	}, kinds)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Conflicts.WithLabelValues("VEHICLE")), 0)

	vehicle, staff := service.SplitConflicts(got)
	assert.Len(t, vehicle, 1)
	assert.Len(t, staff, 3)
}

func TestFindConflicts_Rejected(t *testing.T) {
	h := newHarness()
	foreignDriver := h.store.putStaff(uuid.New(), domain.StaffDriver)
	foreignVehicle := h.store.putVehicle(domain.Vehicle{CompanyID: uuid.New()})
	missing := uuid.New()
	departure := now.Add(2 * time.Hour)

	tests := []struct {
		name    string
		c       domain.ConflictCandidate
		wantErr error
	}{
		{"candidate of another company", domain.ConflictCandidate{CompanyID: uuid.New(), DepartureTime: departure}, domain.ErrAuthorization},
		{"driver of another company", domain.ConflictCandidate{CompanyID: h.company, DepartureTime: departure, DriverID: &foreignDriver}, domain.ErrAuthorization},
		{"vehicle of another company", domain.ConflictCandidate{CompanyID: h.company, DepartureTime: departure, VehicleID: &foreignVehicle.ID}, domain.ErrAuthorization},
		{"unknown conductor", domain.ConflictCandidate{CompanyID: h.company, DepartureTime: departure, ConductorID: &missing}, domain.ErrValidation},
		{"no departure time", domain.ConflictCandidate{CompanyID: h.company}, domain.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.detector().FindConflicts(context.Background(), h.admin, tc.c)

			require.ErrorIs(t, err, tc.wantErr)
			assert.NotContains(t, domain.PublicMessage(err), foreignDriver.String())
			assert.NotContains(t, domain.PublicMessage(err), foreignVehicle.ID.String())
		})
	}
}
