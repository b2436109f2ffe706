package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/clock"
	"github.com/pkordes/busline/internal/dispatch"
	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/metrics"
	"github.com/pkordes/busline/internal/repo"
)

// BulkMutator applies one administrative action to many trips of a company.
type BulkMutator struct {
	store      Store
	dispatcher Dispatcher
	clock      clock.Clock
	metrics    *metrics.Metrics
	log        *slog.Logger
	timeout    time.Duration
}

// NewBulkMutator constructs a BulkMutator whose transactions are bounded by
// BulkTxTimeout.
func NewBulkMutator(store Store, d Dispatcher, clk clock.Clock, m *metrics.Metrics, log *slog.Logger) *BulkMutator {
	return &BulkMutator{store: store, dispatcher: d, clock: clk, metrics: m, log: log, timeout: BulkTxTimeout}
}

// ApplyBulk runs req for actor.
//
// The whole call fails only for an invalid request (domain.ErrValidation), an
// actor who is not a company admin or ids of another company
// (domain.ErrAuthorization), or an unexpected storage error. Everything else
// is reported per item in the result.
//
// UPDATE_PRICE and DELETE run every item in one transaction: each item is
// re-read and written with a compare-and-swap on its version. If the
// transaction times out it is rolled back in full and every item reports
// TIMEOUT. HALT and RESUME are a single set-oriented update; ids it did not
// match are counted as skipped.
func (b *BulkMutator) ApplyBulk(ctx context.Context, actor domain.Actor, req domain.BulkRequest) (domain.BulkResult, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.BulkResult{}, fmt.Errorf("service.BulkMutator.ApplyBulk: %w", err)
	}
	ids, err := validateBulk(req)
	if err != nil {
		return domain.BulkResult{}, err
	}

	foreign, err := b.store.Repos().Trips.ForeignIDs(ctx, actor.CompanyID, ids)
	if err != nil {
		return domain.BulkResult{}, fmt.Errorf("service.BulkMutator.ApplyBulk: %w", err)
	}
	if len(foreign) > 0 {
		return domain.BulkResult{}, fmt.Errorf("%w: %d trip(s) belong to another company", domain.ErrAuthorization, len(foreign))
	}

	var result domain.BulkResult
	switch req.Action {
	case domain.BulkHalt, domain.BulkResume:
		result, err = b.setHalted(ctx, actor, req.Action, ids)
	default:
		result, err = b.perItem(ctx, req, ids)
	}
	if err != nil {
		return domain.BulkResult{}, fmt.Errorf("service.BulkMutator.ApplyBulk: %w", err)
	}

	b.record(ctx, actor, req, ids, result)
	return result, nil
}

// validateBulk checks the request shape and returns the ids with duplicates
// collapsed, in first-seen order.
func validateBulk(req domain.BulkRequest) ([]uuid.UUID, error) {
	if !req.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown bulk action %q", domain.ErrValidation, req.Action)
	}
	if req.Action == domain.BulkUpdatePrice && req.Price == nil {
		return nil, fmt.Errorf("%w: price is required for %s", domain.ErrValidation, req.Action)
	}

	seen := make(map[uuid.UUID]bool, len(req.TripIDs))
	ids := make([]uuid.UUID, 0, len(req.TripIDs))
	for _, id := range req.TripIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	switch {
	case len(ids) == 0:
		return nil, fmt.Errorf("%w: at least one trip id is required", domain.ErrValidation)
	case len(ids) > domain.MaxBulkTrips:
		return nil, fmt.Errorf("%w: at most %d trips per bulk call, got %d", domain.ErrValidation, domain.MaxBulkTrips, len(ids))
	}
	return ids, nil
}

func (b *BulkMutator) setHalted(ctx context.Context, actor domain.Actor, action domain.BulkAction, ids []uuid.UUID) (domain.BulkResult, error) {
	result := domain.BulkResult{Action: action, Requested: len(ids), Items: []domain.ItemError{}}
	halted := action == domain.BulkHalt

	var changed []domain.Trip
	err := b.store.WithinTx(ctx, b.timeout, func(r repo.Repos) error {
		var err error
		changed, err = r.Trips.SetBookingHalted(ctx, actor.CompanyID, ids, halted, b.clock.Now())
		return err
	})
	if errors.Is(err, domain.ErrTimeout) {
		return timedOut(action, ids), nil
	}
	if err != nil {
		return domain.BulkResult{}, err
	}

	result.Succeeded = len(changed)
	result.Skipped = len(ids) - len(changed)

	kind := domain.NotifyBookingResumed
	if halted {
		kind = domain.NotifyBookingHalted
	}
	for _, t := range changed {
		b.dispatcher.Publish(dispatch.Notify(t, kind, t.AssignedIDs(), map[string]any{
			"route":          t.Route(),
			"departure_time": t.DepartureTime,
		}))
	}
	return result, nil
}

func (b *BulkMutator) perItem(ctx context.Context, req domain.BulkRequest, ids []uuid.UUID) (domain.BulkResult, error) {
	var result domain.BulkResult
	err := b.store.WithinTx(ctx, b.timeout, func(r repo.Repos) error {
		// Rebuilt on every attempt so a rolled-back run leaves nothing behind.
		result = domain.BulkResult{Action: req.Action, Requested: len(ids), Items: []domain.ItemError{}}
		for _, id := range ids {
			var err error
			if req.Action == domain.BulkUpdatePrice {
				err = b.updatePrice(ctx, r, id, *req.Price)
			} else {
				err = b.delete(ctx, r, id)
			}
			switch {
			case err == nil:
				result.Succeeded++
			case itemFailure(err):
				result.Fail(id, err)
			default:
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrTimeout) {
		return timedOut(req.Action, ids), nil
	}
	if err != nil {
		return domain.BulkResult{}, err
	}
	return result, nil
}

func (b *BulkMutator) updatePrice(ctx context.Context, r repo.Repos, id uuid.UUID, price float64) error {
	if price < domain.MinPrice || price > domain.MaxPrice {
		return fmt.Errorf("%w: price must be between %d and %d", domain.ErrValidation, domain.MinPrice, domain.MaxPrice)
	}
	trip, err := r.Trips.GetByID(ctx, id)
	if err != nil {
		return err
	}
	// Stored status only. An overdue SCHEDULED trip may still be repriced.
	if trip.ViewOnly() {
		return fmt.Errorf("%w: trip is %s", domain.ErrViewOnlyStatus, trip.Status)
	}
	if err := refusePaid(ctx, r, id); err != nil {
		return err
	}
	return r.Trips.UpdatePrice(ctx, id, trip.Version, price)
}

func (b *BulkMutator) delete(ctx context.Context, r repo.Repos, id uuid.UUID) error {
	trip, err := r.Trips.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if st := trip.EffectiveStatus(b.clock.Now()); st.ViewOnly() {
		return fmt.Errorf("%w: trip is %s", domain.ErrViewOnlyStatus, st)
	}
	if err := refusePaid(ctx, r, id); err != nil {
		return err
	}
	return r.Trips.Delete(ctx, id, trip.Version)
}

func refusePaid(ctx context.Context, r repo.Repos, id uuid.UUID) error {
	paid, err := r.Trips.HasPaidBookings(ctx, id)
	if err != nil {
		return err
	}
	if paid {
		return domain.ErrHasPaidBookings
	}
	return nil
}

// timedOut reports every item of a rolled-back batch as TIMEOUT.
func timedOut(action domain.BulkAction, ids []uuid.UUID) domain.BulkResult {
	result := domain.BulkResult{Action: action, Requested: len(ids), TimedOut: true, Items: []domain.ItemError{}}
	for _, id := range ids {
		result.Fail(id, domain.ErrTimeout)
	}
	return result
}

// record writes the batch audit entry outside the transaction and counts item
// outcomes. An audit failure is logged and counted, never returned.
func (b *BulkMutator) record(ctx context.Context, actor domain.Actor, req domain.BulkRequest, ids []uuid.UUID, result domain.BulkResult) {
	action := string(req.Action)
	b.metrics.BulkItems.WithLabelValues(action, "succeeded").Add(float64(result.Succeeded))
	b.metrics.BulkItems.WithLabelValues(action, "failed").Add(float64(result.Failed))
	b.metrics.BulkItems.WithLabelValues(action, "skipped").Add(float64(result.Skipped))

	details := map[string]any{
		"trip_ids":  ids,
		"requested": result.Requested,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"timed_out": result.TimedOut,
	}
	if req.Price != nil {
		details["price"] = *req.Price
	}
	companyID := actor.CompanyID
	entry := domain.AuditEntry{
		ActorID:   actor.ID,
		Action:    domain.BulkAuditAction(req.Action),
		Details:   details,
		CompanyID: &companyID,
	}
	if _, err := b.store.Repos().Audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		b.metrics.AuditFailures.Inc()
		b.log.ErrorContext(ctx, "bulk audit entry not written",
			"action", req.Action,
			"actor_id", actor.ID,
			"error", err,
		)
	}
}
