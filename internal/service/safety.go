package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkordes/busline/internal/clock"
	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/repo"
)

// InspectionFreshness is how recent a passing pre-trip inspection must be for
// a high-risk vehicle to depart.
const InspectionFreshness = 24 * time.Hour

// SafetyDecision is the outcome of evaluating the departure gate.
type SafetyDecision struct {
	Blocked          bool
	Reason           string
	RequiresOverride bool
}

// SafetyGate blocks departures of high-risk vehicles that lack a recent
// passing pre-trip inspection. It never retries or waits for an inspection.
type SafetyGate struct {
	inspections repo.InspectionRepo
	clock       clock.Clock
}

// NewSafetyGate binds a gate to inspections, which may be transaction-bound.
func NewSafetyGate(inspections repo.InspectionRepo, clk clock.Clock) *SafetyGate {
	return &SafetyGate{inspections: inspections, clock: clk}
}

// Evaluate decides whether vehicle may enter proposed. Only DEPARTED with a
// risk score of at least domain.HighRiskScore is ever gated.
func (g *SafetyGate) Evaluate(ctx context.Context, vehicle domain.Vehicle, proposed domain.TripStatus) (SafetyDecision, error) {
	if proposed != domain.StatusDeparted || !vehicle.HighRisk() {
		return SafetyDecision{}, nil
	}

	since := g.clock.Now().Add(-InspectionFreshness)
	ok, err := g.inspections.HasPassingPreTrip(ctx, vehicle.ID, since)
	if err != nil {
		return SafetyDecision{}, fmt.Errorf("service.SafetyGate.Evaluate: %w", err)
	}
	if ok {
		return SafetyDecision{}, nil
	}
	reason := fmt.Sprintf("vehicle %s has maintenance risk score %d and no passing pre-trip inspection in the last 24h",
		vehicle.PlateNumber, *vehicle.MaintenanceRiskScore)
	return SafetyDecision{Blocked: true, Reason: reason, RequiresOverride: true}, nil
}

// Block converts a blocking decision into the error returned to the caller.
func (d SafetyDecision) Block(vehicle domain.Vehicle) *domain.SafetyGateError {
	score := 0
	if vehicle.MaintenanceRiskScore != nil {
		score = *vehicle.MaintenanceRiskScore
	}
	return &domain.SafetyGateError{VehicleID: vehicle.ID, RiskScore: score, Reason: d.Reason}
}
