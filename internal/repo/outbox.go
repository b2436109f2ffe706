package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pkordes/busline/internal/domain"
)

// OutboxRepo records requests for the external manifest generator and
// notification service. Those services poll the pending rows; delivery is
// outside this module.
type OutboxRepo interface {
	EnqueueManifest(ctx context.Context, tripID uuid.UUID, trigger domain.ManifestTrigger) error
	EnqueueNotification(ctx context.Context, recipients []uuid.UUID, kind domain.NotificationKind, payload map[string]any) error
}

type pgOutboxRepo struct {
	db db
}

// NewOutboxRepo constructs an OutboxRepo backed by the provided db connection.
func NewOutboxRepo(db db) OutboxRepo {
	return &pgOutboxRepo{db: db}
}

func (r *pgOutboxRepo) EnqueueManifest(ctx context.Context, tripID uuid.UUID, trigger domain.ManifestTrigger) error {
	const q = `INSERT INTO manifest_requests (trip_id, trigger) VALUES (@trip_id, @trigger)`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"trip_id": tripID, "trigger": string(trigger)}); err != nil {
		return fmt.Errorf("repo.OutboxRepo.EnqueueManifest: %w", err)
	}
	return nil
}

func (r *pgOutboxRepo) EnqueueNotification(ctx context.Context, recipients []uuid.UUID, kind domain.NotificationKind, payload map[string]any) error {
	const q = `
		INSERT INTO notification_requests (recipient_ids, kind, payload)
		VALUES (@recipient_ids, @kind, @payload)`

	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("repo.OutboxRepo.EnqueueNotification: marshal payload: %w", err)
	}

	_, err = r.db.Exec(ctx, q, pgx.NamedArgs{
		"recipient_ids": recipients,
		"kind":          string(kind),
		"payload":       raw,
	})
	if err != nil {
		return fmt.Errorf("repo.OutboxRepo.EnqueueNotification: %w", err)
	}
	return nil
}
