package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/handler"
	"github.com/pkordes/busline/internal/middleware"
	"github.com/pkordes/busline/internal/service"
)

// ---- mock services ---------------------------------------------------------

// mockTripServicer is a test double for handler.TripServicer.
// Set only the method fields your test needs.
type mockTripServicer struct {
	create          func(ctx context.Context, a domain.Actor, in service.TripInput, ov service.Overrides) (domain.Trip, error)
	update          func(ctx context.Context, a domain.Actor, id uuid.UUID, v int64, in service.TripInput, ov service.Overrides) (domain.Trip, error)
	get             func(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Trip, error)
	detectConflicts func(ctx context.Context, a domain.Actor, c domain.ConflictCandidate) ([]domain.Conflict, error)
	auditTrail      func(ctx context.Context, a domain.Actor, id uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error)
}

func (m *mockTripServicer) Create(ctx context.Context, a domain.Actor, in service.TripInput, ov service.Overrides) (domain.Trip, error) {
	return m.create(ctx, a, in, ov)
}
func (m *mockTripServicer) Update(ctx context.Context, a domain.Actor, id uuid.UUID, v int64, in service.TripInput, ov service.Overrides) (domain.Trip, error) {
	return m.update(ctx, a, id, v, in, ov)
}
func (m *mockTripServicer) Get(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Trip, error) {
	return m.get(ctx, a, id)
}
func (m *mockTripServicer) DetectConflicts(ctx context.Context, a domain.Actor, c domain.ConflictCandidate) ([]domain.Conflict, error) {
	return m.detectConflicts(ctx, a, c)
}
func (m *mockTripServicer) AuditTrail(ctx context.Context, a domain.Actor, id uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error) {
	return m.auditTrail(ctx, a, id, p)
}

type mockTransitionServicer struct {
	propose    func(ctx context.Context, a domain.Actor, req service.TransitionRequest) (domain.Trip, error)
	nextStates func(ctx context.Context, a domain.Actor, id uuid.UUID) (service.NextStates, error)
}

func (m *mockTransitionServicer) ProposeTransition(ctx context.Context, a domain.Actor, req service.TransitionRequest) (domain.Trip, error) {
	return m.propose(ctx, a, req)
}
func (m *mockTransitionServicer) NextStates(ctx context.Context, a domain.Actor, id uuid.UUID) (service.NextStates, error) {
	return m.nextStates(ctx, a, id)
}

type mockBulkServicer struct {
	apply func(ctx context.Context, a domain.Actor, req domain.BulkRequest) (domain.BulkResult, error)
}

func (m *mockBulkServicer) ApplyBulk(ctx context.Context, a domain.Actor, req domain.BulkRequest) (domain.BulkResult, error) {
	return m.apply(ctx, a, req)
}

type mockManifestServicer struct {
	requestManual   func(ctx context.Context, a domain.Actor, id uuid.UUID) error
	capacityChanged func(ctx context.Context, a domain.Actor, id uuid.UUID) (bool, error)
}

func (m *mockManifestServicer) RequestManual(ctx context.Context, a domain.Actor, id uuid.UUID) error {
	return m.requestManual(ctx, a, id)
}
func (m *mockManifestServicer) CapacityChanged(ctx context.Context, a domain.Actor, id uuid.UUID) (bool, error) {
	return m.capacityChanged(ctx, a, id)
}

// compile-time checks: the mocks must satisfy the handler interfaces.
var (
	_ handler.TripServicer       = (*mockTripServicer)(nil)
	_ handler.TransitionServicer = (*mockTransitionServicer)(nil)
	_ handler.BulkServicer       = (*mockBulkServicer)(nil)
	_ handler.ManifestServicer   = (*mockManifestServicer)(nil)
)

// ---- helpers ---------------------------------------------------------------

var testSecret = []byte("handler-test-secret")

var testAdmin = domain.Actor{ID: uuid.New(), CompanyID: uuid.New(), Role: domain.RoleCompanyAdmin}

// newHTTPHandler wires a Server with the given mocks into the router, the
// same way the serve command does.
func newHTTPHandler(svc handler.Services) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := handler.NewServer(svc, []byte("openapi: 3.0.3\n"), log)
	return handler.NewRouter(srv, handler.RouterOptions{
		Logger:       log,
		CORSOrigins:  []string{"http://localhost:5173"},
		MaxBodyBytes: 1 << 20,
		Authenticate: middleware.NewAuthenticator(testSecret),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("busline_up 1\n"))
		}),
	})
}

// do sends a request as testAdmin. Pass a nil body for requests without one.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, h, &testAdmin, method, path, body)
}

// doAs sends a request authenticated as a, or anonymously when a is nil.
func doAs(t *testing.T, h http.Handler, a *domain.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if a != nil {
		token, err := middleware.IssueToken(testSecret, *a, time.Hour, time.Now())
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var body struct {
		Error handler.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func tripFixture() domain.Trip {
	return domain.Trip{
		ID:             uuid.New(),
		CompanyID:      testAdmin.CompanyID,
		Version:        1,
		Status:         domain.StatusScheduled,
		Origin:         "Manila",
		Destination:    "Baguio",
		DepartureTime:  time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC),
		Price:          650,
		TotalSlots:     45,
		AvailableSlots: 45,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}
