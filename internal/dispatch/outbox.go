package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/repo"
)

// OutboxManifests records manifest requests in the Postgres outbox table the
// manifest generator polls.
type OutboxManifests struct {
	Outbox repo.OutboxRepo
}

func (o OutboxManifests) RequestManifest(ctx context.Context, tripID uuid.UUID, trigger domain.ManifestTrigger) error {
	return o.Outbox.EnqueueManifest(ctx, tripID, trigger)
}

// OutboxNotifier records notification requests in the Postgres outbox table.
type OutboxNotifier struct {
	Outbox repo.OutboxRepo
}

func (o OutboxNotifier) Notify(ctx context.Context, recipients []uuid.UUID, kind domain.NotificationKind, payload map[string]any) error {
	return o.Outbox.EnqueueNotification(ctx, recipients, kind, payload)
}
