package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/busline/internal/domain"
)

// AuditRepo is the append-only audit log.
type AuditRepo interface {
	// Append stores entry and returns it with its id and timestamp populated.
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)

	// ListByTrip returns one page of a trip's entries recorded for companyID,
	// oldest first. Entries survive the trip's deletion.
	ListByTrip(ctx context.Context, companyID, tripID uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error)
}

type pgAuditRepo struct {
	db db
}

// NewAuditRepo constructs an AuditRepo backed by the provided db connection.
func NewAuditRepo(db db) AuditRepo {
	return &pgAuditRepo{db: db}
}

const auditColumns = `id, actor_id, action, details, trip_id, company_id, created_at`

func (r *pgAuditRepo) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	const q = `
		INSERT INTO audit_logs (actor_id, action, details, trip_id, company_id)
		VALUES (@actor_id, @action, @details, @trip_id, @company_id)
		RETURNING ` + auditColumns

	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("repo.AuditRepo.Append: marshal details: %w", err)
	}

	got, err := scanAudit(r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"actor_id":   entry.ActorID,
		"action":     string(entry.Action),
		"details":    raw,
		"trip_id":    entry.TripID,
		"company_id": entry.CompanyID,
	}))
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("repo.AuditRepo.Append: %w", err)
	}
	return got, nil
}

func (r *pgAuditRepo) ListByTrip(ctx context.Context, companyID, tripID uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error) {
	const countQ = `SELECT count(*) FROM audit_logs WHERE company_id = @company_id AND trip_id = @trip_id`
	const q = `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE company_id = @company_id AND trip_id = @trip_id
		ORDER BY created_at, id
		LIMIT @limit OFFSET @offset`

	page := domain.Page[domain.AuditEntry]{Page: p.Page, Limit: p.Limit}

	if err := r.db.QueryRow(ctx, countQ, pgx.NamedArgs{"company_id": companyID, "trip_id": tripID}).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("repo.AuditRepo.ListByTrip: count: %w", err)
	}

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{
		"company_id": companyID,
		"trip_id":    tripID,
		"limit":      p.Limit,
		"offset":     p.Offset(),
	})
	if err != nil {
		return page, fmt.Errorf("repo.AuditRepo.ListByTrip: %w", err)
	}
	page.Items, err = collect(rows, scanAudit)
	if err != nil {
		return page, fmt.Errorf("repo.AuditRepo.ListByTrip: %w", err)
	}
	return page, nil
}

func scanAudit(s scanner) (domain.AuditEntry, error) {
	var (
		e                 domain.AuditEntry
		id, actor         pgtype.UUID
		action            string
		details           []byte
		tripID, companyID pgtype.UUID
	)
	if err := s.Scan(&id, &actor, &action, &details, &tripID, &companyID, &e.CreatedAt); err != nil {
		return domain.AuditEntry{}, notFound(err)
	}

	e.ID = uuid.UUID(id.Bytes)
	e.ActorID = uuid.UUID(actor.Bytes)
	e.Action = domain.AuditAction(action)
	if err := json.Unmarshal(details, &e.Details); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("decode details: %w", err)
	}
	e.TripID = uuidPtr(tripID)
	e.CompanyID = uuidPtr(companyID)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
