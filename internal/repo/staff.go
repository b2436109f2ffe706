package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/busline/internal/domain"
)

// StaffRepo defines the persistence operations on staff members. Status
// writes are reserved for the side-effect dispatcher.
type StaffRepo interface {
	// GetByID retrieves a staff member. Returns domain.ErrNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Staff, error)

	// MarkOnTrip sets ON_TRIP unless the member is ON_LEAVE.
	// Returns whether the row changed.
	MarkOnTrip(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkAvailable sets AVAILABLE for a member currently ON_TRIP.
	// Returns whether the row changed.
	MarkAvailable(ctx context.Context, id uuid.UUID) (bool, error)

	// ListAdminIDs returns the ids of the company's ADMIN staff, the
	// recipients of company-wide notifications.
	ListAdminIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
}

type pgStaffRepo struct {
	db db
}

// NewStaffRepo constructs a StaffRepo backed by the provided db connection.
func NewStaffRepo(db db) StaffRepo {
	return &pgStaffRepo{db: db}
}

func (r *pgStaffRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Staff, error) {
	const q = `
		SELECT id, company_id, name, role, status, updated_at
		FROM staff
		WHERE id = @id`

	var (
		s            domain.Staff
		sid, company pgtype.UUID
		role, status string
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).
		Scan(&sid, &company, &s.Name, &role, &status, &s.UpdatedAt)
	if err != nil {
		return domain.Staff{}, fmt.Errorf("repo.StaffRepo.GetByID: %w", notFound(err))
	}

	s.ID = uuid.UUID(sid.Bytes)
	s.CompanyID = uuid.UUID(company.Bytes)
	s.Role = domain.StaffRole(role)
	s.Status = domain.StaffStatus(status)
	return s, nil
}

func (r *pgStaffRepo) MarkOnTrip(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
		UPDATE staff
		SET status = 'ON_TRIP', updated_at = now()
		WHERE id = @id AND status = 'AVAILABLE'`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return false, fmt.Errorf("repo.StaffRepo.MarkOnTrip: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgStaffRepo) MarkAvailable(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
		UPDATE staff
		SET status = 'AVAILABLE', updated_at = now()
		WHERE id = @id AND status = 'ON_TRIP'`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return false, fmt.Errorf("repo.StaffRepo.MarkAvailable: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgStaffRepo) ListAdminIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
		SELECT id FROM staff
		WHERE company_id = @company_id AND role = 'ADMIN'
		ORDER BY id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"company_id": companyID})
	if err != nil {
		return nil, fmt.Errorf("repo.StaffRepo.ListAdminIDs: %w", err)
	}
	ids, err := collect(rows, func(s scanner) (uuid.UUID, error) {
		var id pgtype.UUID
		if err := s.Scan(&id); err != nil {
			return uuid.Nil, err
		}
		return uuid.UUID(id.Bytes), nil
	})
	if err != nil {
		return nil, fmt.Errorf("repo.StaffRepo.ListAdminIDs: %w", err)
	}
	return ids, nil
}
