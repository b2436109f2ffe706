package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/metrics"
)

// StaffStore is the staff status surface the dispatcher writes.
type StaffStore interface {
	MarkOnTrip(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAvailable(ctx context.Context, id uuid.UUID) (bool, error)
	ListAdminIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
}

// DepartedCounter counts a staff member's trips currently on the road.
type DepartedCounter interface {
	CountDepartedByStaff(ctx context.Context, staffID uuid.UUID) (int, error)
}

// ManifestRequester asks the external generator for a passenger manifest.
type ManifestRequester interface {
	RequestManifest(ctx context.Context, tripID uuid.UUID, trigger domain.ManifestTrigger) error
}

// Notifier hands a notification to the external delivery service.
type Notifier interface {
	Notify(ctx context.Context, recipients []uuid.UUID, kind domain.NotificationKind, payload map[string]any) error
}

// Config sizes the queue and worker pool and bounds retries.
type Config struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64
	BaseDelay  time.Duration
}

// Dispatcher is a bounded in-process queue drained by a fixed worker pool.
type Dispatcher struct {
	cfg       Config
	queue     chan Task
	staff     StaffStore
	trips     DepartedCounter
	manifests ManifestRequester
	notifier  Notifier
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New constructs a Dispatcher. Nothing runs until Run is called; tasks
// published before that wait in the queue.
func New(cfg Config, staff StaffStore, trips DepartedCounter, manifests ManifestRequester, notifier Notifier, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	return &Dispatcher{
		cfg:       cfg,
		queue:     make(chan Task, cfg.QueueSize),
		staff:     staff,
		trips:     trips,
		manifests: manifests,
		notifier:  notifier,
		metrics:   m,
		log:       log,
	}
}

// Publish enqueues t without blocking. It reports false when the queue is
// full and the task was dropped.
func (d *Dispatcher) Publish(t Task) bool {
	select {
	case d.queue <- t:
		return true
	default:
		d.metrics.DispatchDropped.WithLabelValues(string(t.Kind)).Inc()
		d.log.Error("dispatch: queue full, task dropped",
			"kind", t.Kind,
			"trip_id", t.TripID,
		)
		return false
	}
}

// Run drains the queue with cfg.Workers workers until ctx is cancelled.
// Tasks still queued at that point are abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range d.cfg.Workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case t := <-d.queue:
					d.handle(ctx, t)
				}
			}
		})
	}
	err := g.Wait()
	if n := len(d.queue); n > 0 {
		d.log.Warn("dispatch: stopped with pending tasks", "pending", n)
	}
	return err
}

// handle runs t with exponential backoff. Failures end here.
func (d *Dispatcher) handle(ctx context.Context, t Task) {
	attempts := 0
	backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.BaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := d.exec(ctx, t); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.metrics.DispatchFailures.WithLabelValues(string(t.Kind)).Inc()
		d.log.Error("dispatch: side effect failed",
			"kind", t.Kind,
			"trip_id", t.TripID,
			"trip_status", t.Status,
			"attempts", attempts,
			"error", err,
		)
	}
}

func (d *Dispatcher) exec(ctx context.Context, t Task) error {
	switch t.Kind {
	case KindStaffSync:
		return d.syncStaff(ctx, t)
	case KindManifest:
		return d.manifests.RequestManifest(ctx, t.TripID, t.Trigger)
	case KindNotify:
		return d.notify(ctx, t)
	default:
		return fmt.Errorf("dispatch: unknown task kind %q", t.Kind)
	}
}

// syncStaff derives each assigned staff member's status from a fresh count
// of their DEPARTED trips rather than from the task's status, so tasks for
// the same trip may run in any order. ON_LEAVE is never overwritten.
func (d *Dispatcher) syncStaff(ctx context.Context, t Task) error {
	var errs []error
	for _, id := range t.StaffIDs {
		n, err := d.trips.CountDepartedByStaff(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			_, err = d.staff.MarkOnTrip(ctx, id)
		} else {
			_, err = d.staff.MarkAvailable(ctx, id)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) notify(ctx context.Context, t Task) error {
	admins, err := d.staff.ListAdminIDs(ctx, t.CompanyID)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(t.Recipients)+len(admins))
	var recipients []uuid.UUID
	for _, id := range append(append([]uuid.UUID{}, t.Recipients...), admins...) {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return nil
	}

	payload := map[string]any{"trip_id": t.TripID.String()}
	for k, v := range t.Payload {
		payload[k] = v
	}
	return d.notifier.Notify(ctx, recipients, t.Notification, payload)
}
