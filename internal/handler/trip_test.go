package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/handler"
	"github.com/pkordes/busline/internal/service"
)

func tripBody() map[string]any {
	return map[string]any{
		"origin":         "Manila",
		"destination":    "Baguio",
		"departure_time": "2030-06-01T08:00:00Z",
		"price":          650,
		"total_slots":    45,
	}
}

// ---- POST /trips -----------------------------------------------------------

func TestCreateTrip_201(t *testing.T) {
	fixture := tripFixture()
	var gotIn service.TripInput
	var gotActor domain.Actor
	svc := &mockTripServicer{
		create: func(_ context.Context, a domain.Actor, in service.TripInput, _ service.Overrides) (domain.Trip, error) {
			gotActor, gotIn = a, in
			return fixture, nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips", tripBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp domain.Trip
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, fixture.ID, resp.ID)
	assert.Equal(t, testAdmin, gotActor)
	assert.Equal(t, "Manila", gotIn.Origin)
	assert.Equal(t, 45, gotIn.AvailableSlots, "available slots default to total")
	assert.True(t, gotIn.DepartureTime.Equal(time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)))
}

func TestCreateTrip_PassesOverrides(t *testing.T) {
	var got service.Overrides
	svc := &mockTripServicer{
		create: func(_ context.Context, _ domain.Actor, _ service.TripInput, ov service.Overrides) (domain.Trip, error) {
			got = ov
			return tripFixture(), nil
		},
	}
	body := tripBody()
	body["overrides"] = map[string]any{
		"override_vehicle_conflict":   true,
		"vehicle_override_reason":     "spare bus unavailable",
		"acknowledge_staff_conflicts": true,
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.Overrides{
		OverrideVehicleConflict:   true,
		VehicleReason:             "spare bus unavailable",
		AcknowledgeStaffConflicts: true,
	}, got)
}

func TestCreateTrip_401_NoToken(t *testing.T) {
	svc := &mockTripServicer{}

	rec := doAs(t, newHTTPHandler(handler.Services{Trips: svc}), nil, http.MethodPost, "/trips", tripBody())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.ErrorCode("UNAUTHENTICATED"), decodeError(t, rec).Code)
}

func TestCreateTrip_422_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body any
		want string
	}{
		{name: "empty", body: nil, want: "request body is required"},
		{name: "malformed", body: `{"origin":`, want: "invalid request body"},
		{name: "unknown field", body: `{"origin":"Manila","skip_checks":true}`, want: "invalid request body"},
		{name: "two objects", body: `{"origin":"Manila"}{"origin":"Vigan"}`, want: "single JSON object"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockTripServicer{}

			rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips", tc.body)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			got := decodeError(t, rec)
			assert.Equal(t, domain.CodeValidation, got.Code)
			assert.Contains(t, got.Message, tc.want)
		})
	}
}

func TestCreateTrip_422_ValidationError(t *testing.T) {
	svc := &mockTripServicer{
		create: func(context.Context, domain.Actor, service.TripInput, service.Overrides) (domain.Trip, error) {
			return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w: origin is required", domain.ErrValidation)
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips", tripBody())

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, "validation error: origin is required", got.Message)
	assert.False(t, got.Overridable)
}

func TestCreateTrip_409_ResourceConflict(t *testing.T) {
	conflict := domain.Conflict{
		ResourceKind:             domain.ResourceDriver,
		ResourceID:               uuid.New(),
		ConflictingTripID:        uuid.New(),
		Route:                    "Manila → Vigan",
		ConflictingDepartureTime: time.Date(2030, 6, 1, 14, 0, 0, 0, time.UTC),
	}
	svc := &mockTripServicer{
		create: func(context.Context, domain.Actor, service.TripInput, service.Overrides) (domain.Trip, error) {
			return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", &domain.ConflictError{Conflicts: []domain.Conflict{conflict}})
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips", tripBody())

	require.Equal(t, http.StatusConflict, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, domain.CodeResourceConflict, got.Code)
	assert.True(t, got.Overridable)

	details, ok := got.Details.(map[string]any)
	require.True(t, ok)
	conflicts, ok := details["conflicts"].([]any)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	first := conflicts[0].(map[string]any)
	assert.Equal(t, "DRIVER", first["resource_kind"])
	assert.Equal(t, conflict.ConflictingTripID.String(), first["conflicting_trip_id"])
}

func TestCreateTrip_403_Authorization(t *testing.T) {
	svc := &mockTripServicer{
		create: func(context.Context, domain.Actor, service.TripInput, service.Overrides) (domain.Trip, error) {
			return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w: company admin required", domain.ErrAuthorization)
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips", tripBody())

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeAuthorization, decodeError(t, rec).Code)
}

func TestCreateTrip_500_InternalError(t *testing.T) {
	svc := &mockTripServicer{
		create: func(context.Context, domain.Actor, service.TripInput, service.Overrides) (domain.Trip, error) {
			return domain.Trip{}, errors.New("pq: connection refused to 10.0.0.7")
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips", tripBody())

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, domain.CodeInternal, got.Code)
	assert.Equal(t, "internal error", got.Message)
}

// ---- GET /trips/{id} -------------------------------------------------------

func TestGetTrip_200(t *testing.T) {
	fixture := tripFixture()
	svc := &mockTripServicer{
		get: func(_ context.Context, _ domain.Actor, id uuid.UUID) (domain.Trip, error) {
			assert.Equal(t, fixture.ID, id)
			return fixture, nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodGet, "/trips/"+fixture.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.Trip
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, fixture.ID, resp.ID)
	assert.Equal(t, domain.StatusScheduled, resp.Status)
}

func TestGetTrip_404(t *testing.T) {
	svc := &mockTripServicer{
		get: func(context.Context, domain.Actor, uuid.UUID) (domain.Trip, error) {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", domain.ErrNotFound)
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodGet, "/trips/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.CodeNotFound, decodeError(t, rec).Code)
}

func TestGetTrip_422_InvalidID(t *testing.T) {
	svc := &mockTripServicer{}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodGet, "/trips/not-a-uuid", nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid format for parameter id: must be a UUID", decodeError(t, rec).Message)
}

// ---- PUT /trips/{id} -------------------------------------------------------

func TestUpdateTrip_200(t *testing.T) {
	fixture := tripFixture()
	fixture.Version = 4
	var gotVersion int64
	svc := &mockTripServicer{
		update: func(_ context.Context, _ domain.Actor, id uuid.UUID, v int64, _ service.TripInput, _ service.Overrides) (domain.Trip, error) {
			assert.Equal(t, fixture.ID, id)
			gotVersion = v
			return fixture, nil
		},
	}
	body := tripBody()
	body["version"] = 3

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPut, "/trips/"+fixture.ID.String(), body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), gotVersion)
}

func TestUpdateTrip_422_MissingVersion(t *testing.T) {
	svc := &mockTripServicer{}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPut, "/trips/"+uuid.NewString(), tripBody())

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "version is required", decodeError(t, rec).Message)
}

func TestUpdateTrip_409_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code domain.ErrorCode
	}{
		{name: "stale version", err: domain.ErrVersionConflict, code: domain.CodeVersionConflict},
		{name: "view only", err: domain.ErrViewOnlyStatus, code: domain.CodeViewOnlyStatus},
		{name: "paid bookings", err: domain.ErrHasPaidBookings, code: domain.CodeHasPaidBookings},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockTripServicer{
				update: func(context.Context, domain.Actor, uuid.UUID, int64, service.TripInput, service.Overrides) (domain.Trip, error) {
					return domain.Trip{}, fmt.Errorf("service.TripService.Update: %w", tc.err)
				},
			}
			body := tripBody()
			body["version"] = 1

			rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPut, "/trips/"+uuid.NewString(), body)

			require.Equal(t, http.StatusConflict, rec.Code)
			got := decodeError(t, rec)
			assert.Equal(t, tc.code, got.Code)
			assert.False(t, got.Overridable)
		})
	}
}

// ---- POST /trips/conflicts -------------------------------------------------

func TestDetectConflicts_200(t *testing.T) {
	driver := uuid.New()
	var got domain.ConflictCandidate
	svc := &mockTripServicer{
		detectConflicts: func(_ context.Context, _ domain.Actor, c domain.ConflictCandidate) ([]domain.Conflict, error) {
			got = c
			return []domain.Conflict{}, nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodPost, "/trips/conflicts", map[string]any{
		"departure_time": "2030-06-01T08:00:00Z",
		"driver_id":      driver,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conflicts":[]}`, rec.Body.String())
	assert.Equal(t, testAdmin.CompanyID, got.CompanyID, "candidate is scoped to the caller's company")
	require.NotNil(t, got.DriverID)
	assert.Equal(t, driver, *got.DriverID)
}

// ---- GET /trips/{id}/audit -------------------------------------------------

func TestListTripAudit_200_Paging(t *testing.T) {
	tripID := uuid.New()
	var got domain.PageParams
	svc := &mockTripServicer{
		auditTrail: func(_ context.Context, _ domain.Actor, id uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error) {
			assert.Equal(t, tripID, id)
			got = p
			return domain.Page[domain.AuditEntry]{
				Items: []domain.AuditEntry{{ID: uuid.New(), ActorID: testAdmin.ID, Action: domain.AuditTripCreated, TripID: &tripID}},
				Page:  p.Page,
				Limit: p.Limit,
				Total: 3,
			}, nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodGet, "/trips/"+tripID.String()+"/audit?page=2&limit=1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PageParams{Page: 2, Limit: 1}, got)
	var resp domain.Page[domain.AuditEntry]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(3), resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, domain.AuditTripCreated, resp.Items[0].Action)
}

func TestListTripAudit_DefaultsAndCap(t *testing.T) {
	var got domain.PageParams
	svc := &mockTripServicer{
		auditTrail: func(_ context.Context, _ domain.Actor, _ uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error) {
			got = p
			return domain.Page[domain.AuditEntry]{Items: []domain.AuditEntry{}}, nil
		},
	}
	h := newHTTPHandler(handler.Services{Trips: svc})

	rec := do(t, h, http.MethodGet, "/trips/"+uuid.NewString()+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PageParams{Page: 1, Limit: domain.DefaultPageLimit}, got)

	rec = do(t, h, http.MethodGet, "/trips/"+uuid.NewString()+"/audit?limit=5000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MaxPageLimit, got.Limit)
}

func TestListTripAudit_422_BadPage(t *testing.T) {
	svc := &mockTripServicer{}

	rec := do(t, newHTTPHandler(handler.Services{Trips: svc}), http.MethodGet, "/trips/"+uuid.NewString()+"/audit?page=two", nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid format for parameter page", decodeError(t, rec).Message)
}
