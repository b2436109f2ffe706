package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/busline/internal/domain"
)

// VehicleRepo defines the persistence operations the trip engine needs on vehicles.
type VehicleRepo interface {
	// GetByID retrieves a vehicle. Returns domain.ErrNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Vehicle, error)

	// Release returns a RESERVED vehicle to ACTIVE after its trip ends.
	// MAINTENANCE and INACTIVE were set independently of the trip and are
	// left alone. Returns whether the row changed.
	Release(ctx context.Context, id uuid.UUID) (bool, error)
}

type pgVehicleRepo struct {
	db db
}

// NewVehicleRepo constructs a VehicleRepo backed by the provided db connection.
func NewVehicleRepo(db db) VehicleRepo {
	return &pgVehicleRepo{db: db}
}

func (r *pgVehicleRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Vehicle, error) {
	const q = `
		SELECT id, company_id, plate_number, status, maintenance_risk_score, updated_at
		FROM vehicles
		WHERE id = @id`

	var (
		v            domain.Vehicle
		vid, company pgtype.UUID
		status       string
		risk         pgtype.Int4
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).
		Scan(&vid, &company, &v.PlateNumber, &status, &risk, &v.UpdatedAt)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("repo.VehicleRepo.GetByID: %w", notFound(err))
	}

	v.ID = uuid.UUID(vid.Bytes)
	v.CompanyID = uuid.UUID(company.Bytes)
	v.Status = domain.VehicleStatus(status)
	if risk.Valid {
		score := int(risk.Int32)
		v.MaintenanceRiskScore = &score
	}
	return v, nil
}

func (r *pgVehicleRepo) Release(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
		UPDATE vehicles
		SET status = 'ACTIVE', updated_at = now()
		WHERE id = @id AND status = 'RESERVED'`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return false, fmt.Errorf("repo.VehicleRepo.Release: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
