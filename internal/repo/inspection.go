package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InspectionRepo answers questions about recorded vehicle inspections.
// Inspections are written by the maintenance subsystem, never by the trip engine.
type InspectionRepo interface {
	// HasPassingPreTrip reports whether the vehicle has a PRE_TRIP inspection
	// with result PASS or PASS_WITH_DEFECTS created at or after since.
	HasPassingPreTrip(ctx context.Context, vehicleID uuid.UUID, since time.Time) (bool, error)
}

type pgInspectionRepo struct {
	db db
}

// NewInspectionRepo constructs an InspectionRepo backed by the provided db connection.
func NewInspectionRepo(db db) InspectionRepo {
	return &pgInspectionRepo{db: db}
}

func (r *pgInspectionRepo) HasPassingPreTrip(ctx context.Context, vehicleID uuid.UUID, since time.Time) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM inspections
			WHERE vehicle_id = @vehicle_id
			  AND type = 'PRE_TRIP'
			  AND result IN ('PASS', 'PASS_WITH_DEFECTS')
			  AND created_at >= @since
		)`

	var ok bool
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"vehicle_id": vehicleID, "since": since}).Scan(&ok); err != nil {
		return false, fmt.Errorf("repo.InspectionRepo.HasPassingPreTrip: %w", err)
	}
	return ok, nil
}
