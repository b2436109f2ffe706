// Package handler implements the HTTP handlers for the Busline API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, trip.go, transition.go, etc.) but share the same Server
// struct so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/service"
)

// TripServicer defines the scheduling operations the trip handlers depend on.
// Defining the interface here, in the consumer package, lets handler tests
// inject a mock without touching the database or service layer.
type TripServicer interface {
	Create(ctx context.Context, actor domain.Actor, in service.TripInput, ov service.Overrides) (domain.Trip, error)
	Update(ctx context.Context, actor domain.Actor, id uuid.UUID, expectedVersion int64, in service.TripInput, ov service.Overrides) (domain.Trip, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Trip, error)
	DetectConflicts(ctx context.Context, actor domain.Actor, c domain.ConflictCandidate) ([]domain.Conflict, error)
	AuditTrail(ctx context.Context, actor domain.Actor, tripID uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error)
}

// TransitionServicer is the trip state machine.
type TransitionServicer interface {
	ProposeTransition(ctx context.Context, actor domain.Actor, req service.TransitionRequest) (domain.Trip, error)
	NextStates(ctx context.Context, actor domain.Actor, tripID uuid.UUID) (service.NextStates, error)
}

// BulkServicer applies administrative actions to many trips.
type BulkServicer interface {
	ApplyBulk(ctx context.Context, actor domain.Actor, req domain.BulkRequest) (domain.BulkResult, error)
}

// ManifestServicer requests passenger manifests.
type ManifestServicer interface {
	RequestManual(ctx context.Context, actor domain.Actor, tripID uuid.UUID) error
	CapacityChanged(ctx context.Context, actor domain.Actor, tripID uuid.UUID) (bool, error)
}

// Services groups the dependencies of Server.
type Services struct {
	Trips       TripServicer
	Transitions TransitionServicer
	Bulk        BulkServicer
	Manifests   ManifestServicer
}

// Server holds every handler dependency.
type Server struct {
	trips       TripServicer
	transitions TransitionServicer
	bulk        BulkServicer
	manifests   ManifestServicer
	openAPI     []byte
	log         *slog.Logger
}

// NewServer constructs the Server. openAPI is served verbatim at /openapi.yaml.
func NewServer(svc Services, openAPI []byte, log *slog.Logger) *Server {
	return &Server{
		trips:       svc.Trips,
		transitions: svc.Transitions,
		bulk:        svc.Bulk,
		manifests:   svc.Manifests,
		openAPI:     openAPI,
		log:         log,
	}
}
