package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/clock"
	"github.com/pkordes/busline/internal/dispatch"
	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/metrics"
	"github.com/pkordes/busline/internal/repo"
	"github.com/pkordes/busline/internal/service"
)

// fakeStore is an in-memory service.Store. Writes apply immediately under one
// mutex, which gives compare-and-swap the same winner/loser outcome as row
// locks in Postgres. A WithinTx that fails undoes its writes from a journal.
type fakeStore struct {
	mu          sync.Mutex
	trips       map[uuid.UUID]domain.Trip
	vehicles    map[uuid.UUID]domain.Vehicle
	staff       map[uuid.UUID]domain.Staff
	inspections []domain.Inspection
	paid        map[uuid.UUID]bool
	audit       []domain.AuditEntry

	// afterTripGet runs after every trip read, outside the lock.
	afterTripGet func(ctx context.Context, id uuid.UUID) error
	// auditErr fails every audit append when set.
	auditErr error
}

var _ service.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		trips:    map[uuid.UUID]domain.Trip{},
		vehicles: map[uuid.UUID]domain.Vehicle{},
		staff:    map[uuid.UUID]domain.Staff{},
		paid:     map[uuid.UUID]bool{},
	}
}

func (s *fakeStore) Repos() repo.Repos {
	return s.bind(nil)
}

func (s *fakeStore) WithinTx(ctx context.Context, timeout time.Duration, fn func(repo.Repos) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	j := &journal{}
	err := fn(s.bind(j))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		j.undo(s)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("fake tx: %w: %w", domain.ErrTimeout, err)
		}
		return err
	}
	return nil
}

func (s *fakeStore) bind(j *journal) repo.Repos {
	return repo.Repos{
		Trips:       &fakeTrips{s: s, j: j},
		Vehicles:    &fakeVehicles{s: s, j: j},
		Staff:       &fakeStaff{s: s},
		Inspections: &fakeInspections{s: s},
		Audit:       &fakeAudit{s: s, j: j},
		Outbox:      &fakeOutbox{},
	}
}

// journal collects undo steps; they run with the store lock held.
type journal struct {
	steps []func()
}

func (j *journal) record(step func()) {
	if j != nil {
		j.steps = append(j.steps, step)
	}
}

func (j *journal) undo(s *fakeStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(j.steps) - 1; i >= 0; i-- {
		j.steps[i]()
	}
}

// ---- seeding and inspection helpers -----------------------------------------

func (s *fakeStore) putTrip(t domain.Trip) domain.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.Status == "" {
		t.Status = domain.StatusScheduled
	}
	s.trips[t.ID] = t
	return t
}

func (s *fakeStore) trip(id uuid.UUID) (domain.Trip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	return t, ok
}

func (s *fakeStore) putVehicle(v domain.Vehicle) domain.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = domain.VehicleActive
	}
	if v.PlateNumber == "" {
		v.PlateNumber = "BUS-" + v.ID.String()[:4]
	}
	s.vehicles[v.ID] = v
	return v
}

func (s *fakeStore) vehicle(id uuid.UUID) domain.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vehicles[id]
}

func (s *fakeStore) putStaff(companyID uuid.UUID, role domain.StaffRole) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.staff[id] = domain.Staff{ID: id, CompanyID: companyID, Name: string(role), Role: role, Status: domain.StaffAvailable}
	return id
}

func (s *fakeStore) addInspection(in domain.Inspection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspections = append(s.inspections, in)
}

func (s *fakeStore) markPaid(tripID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid[tripID] = true
}

func (s *fakeStore) auditActions() []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, e.Action)
	}
	return out
}

func (s *fakeStore) auditEntries(action domain.AuditAction) []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.audit {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// ---- repo fakes ------------------------------------------------------------

type fakeTrips struct {
	s *fakeStore
	j *journal
}

// put stores t and journals the previous value. Caller holds the lock.
func (f *fakeTrips) put(t domain.Trip) {
	old, existed := f.s.trips[t.ID]
	f.j.record(func() {
		if existed {
			f.s.trips[t.ID] = old
		} else {
			delete(f.s.trips, t.ID)
		}
	})
	f.s.trips[t.ID] = t
}

func (f *fakeTrips) Create(_ context.Context, t domain.Trip) (domain.Trip, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t.ID = uuid.New()
	t.Version = 1
	t.Status = domain.StatusScheduled
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	f.put(t)
	return t, nil
}

func (f *fakeTrips) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	f.s.mu.Lock()
	t, ok := f.s.trips[id]
	hook := f.s.afterTripGet
	f.s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, id); err != nil {
			return domain.Trip{}, err
		}
	}
	if !ok {
		return domain.Trip{}, fmt.Errorf("fakeTrips.GetByID: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (f *fakeTrips) cas(id uuid.UUID, version int64, mutate func(*domain.Trip)) (domain.Trip, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.trips[id]
	if !ok || t.Version != version {
		return domain.Trip{}, fmt.Errorf("fakeTrips: %w", domain.ErrVersionConflict)
	}
	mutate(&t)
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	f.put(t)
	return t, nil
}

func (f *fakeTrips) UpdateDetails(_ context.Context, next domain.Trip, v int64) (domain.Trip, error) {
	return f.cas(next.ID, v, func(t *domain.Trip) {
		status, halted := t.Status, t.BookingHalted
		*t = next
		t.Status, t.BookingHalted = status, halted
		t.Version = v
	})
}

func (f *fakeTrips) UpdateStatus(_ context.Context, next domain.Trip, v int64) (domain.Trip, error) {
	return f.cas(next.ID, v, func(t *domain.Trip) {
		t.Status = next.Status
		t.ActualDepartureTime = next.ActualDepartureTime
		t.ActualArrivalTime = next.ActualArrivalTime
		t.DelayReason = next.DelayReason
		t.DelayedAt = next.DelayedAt
		t.BookingHalted = next.BookingHalted
	})
}

func (f *fakeTrips) UpdatePrice(_ context.Context, id uuid.UUID, v int64, price float64) error {
	_, err := f.cas(id, v, func(t *domain.Trip) { t.Price = price })
	return err
}

func (f *fakeTrips) Delete(_ context.Context, id uuid.UUID, v int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.trips[id]
	if !ok || t.Version != v {
		return fmt.Errorf("fakeTrips.Delete: %w", domain.ErrVersionConflict)
	}
	f.j.record(func() { f.s.trips[id] = t })
	delete(f.s.trips, id)
	return nil
}

func (f *fakeTrips) SetBookingHalted(_ context.Context, companyID uuid.UUID, ids []uuid.UUID, halted bool, now time.Time) ([]domain.Trip, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	changed := []domain.Trip{}
	for _, id := range ids {
		t, ok := f.s.trips[id]
		if !ok || t.CompanyID != companyID || t.ViewOnly() || t.DepartureTime.Before(now) {
			continue
		}
		t.BookingHalted = halted
		t.Version++
		f.put(t)
		changed = append(changed, t)
	}
	return changed, nil
}

func (f *fakeTrips) FindByResource(_ context.Context, companyID uuid.UUID, ref domain.ResourceRef, from, to time.Time, exclude *uuid.UUID) ([]domain.Trip, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.Trip
	for _, t := range f.s.trips {
		if t.CompanyID != companyID || (exclude != nil && t.ID == *exclude) {
			continue
		}
		if t.DepartureTime.Before(from) || t.DepartureTime.After(to) {
			continue
		}
		for _, r := range domain.CandidateFor(t).Resources() {
			if r == ref {
				out = append(out, t)
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.Trip) int { return a.DepartureTime.Compare(b.DepartureTime) })
	return out, nil
}

func (f *fakeTrips) ForeignIDs(_ context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []uuid.UUID{}
	for _, id := range ids {
		if t, ok := f.s.trips[id]; ok && t.CompanyID != companyID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeTrips) CountDepartedByStaff(_ context.Context, staffID uuid.UUID) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	n := 0
	for _, t := range f.s.trips {
		if t.Status == domain.StatusDeparted && slices.Contains(t.StaffIDs(), staffID) {
			n++
		}
	}
	return n, nil
}

func (f *fakeTrips) HasPaidBookings(_ context.Context, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.paid[id], nil
}

type fakeVehicles struct {
	s *fakeStore
	j *journal
}

func (f *fakeVehicles) GetByID(_ context.Context, id uuid.UUID) (domain.Vehicle, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	v, ok := f.s.vehicles[id]
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("fakeVehicles.GetByID: %w", domain.ErrNotFound)
	}
	return v, nil
}

func (f *fakeVehicles) Release(_ context.Context, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	v, ok := f.s.vehicles[id]
	if !ok || v.Status != domain.VehicleReserved {
		return false, nil
	}
	f.j.record(func() { f.s.vehicles[id] = v })
	released := v
	released.Status = domain.VehicleActive
	f.s.vehicles[id] = released
	return true, nil
}

type fakeStaff struct{ s *fakeStore }

func (f *fakeStaff) GetByID(_ context.Context, id uuid.UUID) (domain.Staff, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	st, ok := f.s.staff[id]
	if !ok {
		return domain.Staff{}, fmt.Errorf("fakeStaff.GetByID: %w", domain.ErrNotFound)
	}
	return st, nil
}

func (f *fakeStaff) MarkOnTrip(context.Context, uuid.UUID) (bool, error)    { return false, nil }
func (f *fakeStaff) MarkAvailable(context.Context, uuid.UUID) (bool, error) { return false, nil }
func (f *fakeStaff) ListAdminIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeInspections struct{ s *fakeStore }

func (f *fakeInspections) HasPassingPreTrip(_ context.Context, vehicleID uuid.UUID, since time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, in := range f.s.inspections {
		if in.VehicleID == vehicleID && in.Type == domain.InspectionPreTrip && in.Result.Passing() && !in.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type fakeAudit struct {
	s *fakeStore
	j *journal
}

func (f *fakeAudit) Append(_ context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.auditErr != nil {
		return domain.AuditEntry{}, f.s.auditErr
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	n := len(f.s.audit)
	f.j.record(func() { f.s.audit = f.s.audit[:n] })
	f.s.audit = append(f.s.audit, e)
	return e, nil
}

func (f *fakeAudit) ListByTrip(_ context.Context, companyID, tripID uuid.UUID, p domain.PageParams) (domain.Page[domain.AuditEntry], error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	page := domain.Page[domain.AuditEntry]{Page: p.Page, Limit: p.Limit, Items: []domain.AuditEntry{}}
	for _, e := range f.s.audit {
		if e.TripID != nil && *e.TripID == tripID && e.CompanyID != nil && *e.CompanyID == companyID {
			page.Total++
			if int(page.Total) > p.Offset() && len(page.Items) < p.Limit {
				page.Items = append(page.Items, e)
			}
		}
	}
	return page, nil
}

type fakeOutbox struct{}

func (fakeOutbox) EnqueueManifest(context.Context, uuid.UUID, domain.ManifestTrigger) error {
	return nil
}

func (fakeOutbox) EnqueueNotification(context.Context, []uuid.UUID, domain.NotificationKind, map[string]any) error {
	return nil
}

// ---- dispatcher ------------------------------------------------------------

// recordingDispatcher remembers published tasks.
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []dispatch.Task
}

func (d *recordingDispatcher) Publish(t dispatch.Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, t)
	return true
}

func (d *recordingDispatcher) kinds() []dispatch.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []dispatch.Kind{}
	for _, t := range d.tasks {
		out = append(out, t.Kind)
	}
	return out
}

func (d *recordingDispatcher) all() []dispatch.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatch.Task(nil), d.tasks...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- harness ---------------------------------------------------------------

// now is the fake clock's start; trips built by scheduledTrip depart two
// hours later.
var now = time.Date(2030, 6, 1, 6, 0, 0, 0, time.UTC)

type harness struct {
	store   *fakeStore
	disp    *recordingDispatcher
	clock   *clock.Fake
	metrics *metrics.Metrics
	company uuid.UUID
	admin   domain.Actor
}

func newHarness() *harness {
	company := uuid.New()
	return &harness{
		store:   newFakeStore(),
		disp:    &recordingDispatcher{},
		clock:   clock.NewFake(now),
		metrics: metrics.New(),
		company: company,
		admin:   domain.Actor{ID: uuid.New(), CompanyID: company, Role: domain.RoleCompanyAdmin},
	}
}

func (h *harness) transitions() *service.TransitionService {
	return service.NewTransitionService(h.store, h.disp, h.clock, h.metrics, discardLogger())
}

func (h *harness) bulk() *service.BulkMutator {
	return service.NewBulkMutator(h.store, h.disp, h.clock, h.metrics, discardLogger())
}

func (h *harness) trips() *service.TripService {
	return service.NewTripService(h.store, h.disp, h.metrics, discardLogger())
}

func (h *harness) manifests() *service.ManifestService {
	return service.NewManifestService(h.store, h.disp, discardLogger())
}

// staffActor returns a plain staff member of the harness company.
func (h *harness) staffActor() domain.Actor {
	return domain.Actor{ID: uuid.New(), CompanyID: h.company, Role: domain.RoleStaff, StaffRole: domain.StaffConductor}
}

// scheduledTrip stores a SCHEDULED Manila to Baguio trip of the harness
// company departing at now+2h.
func (h *harness) scheduledTrip(mutate ...func(*domain.Trip)) domain.Trip {
	t := domain.Trip{
		CompanyID:      h.company,
		Status:         domain.StatusScheduled,
		Origin:         "Manila",
		Destination:    "Baguio",
		DepartureTime:  now.Add(2 * time.Hour),
		Price:          650,
		TotalSlots:     45,
		AvailableSlots: 45,
	}
	for _, m := range mutate {
		m(&t)
	}
	return h.store.putTrip(t)
}

func ptr[T any](v T) *T { return &v }
