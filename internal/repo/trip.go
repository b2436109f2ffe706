package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/busline/internal/domain"
)

// TripRepo defines the persistence operations for Trips.
//
// Every method that changes a single trip is a compare-and-swap keyed on
// (id, version): it succeeds only if the stored version still equals
// expectedVersion, bumps the version, and otherwise returns
// domain.ErrVersionConflict. No row lock outlives the statement.
type TripRepo interface {
	// Create inserts a new trip in SCHEDULED at version 1 and returns the
	// persisted record.
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip. Returns domain.ErrNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// UpdateDetails overwrites the schedulable fields (route, departure,
	// assignments, price, slots) of a trip.
	UpdateDetails(ctx context.Context, trip domain.Trip, expectedVersion int64) (domain.Trip, error)

	// UpdateStatus writes the status and the lifecycle fields a transition
	// touches (actual times, delay metadata, booking_halted).
	UpdateStatus(ctx context.Context, trip domain.Trip, expectedVersion int64) (domain.Trip, error)

	// UpdatePrice changes only the price.
	UpdatePrice(ctx context.Context, id uuid.UUID, expectedVersion int64, price float64) error

	// Delete removes the trip.
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error

	// SetBookingHalted flips booking_halted on every trip in ids that belongs
	// to companyID, is not view-only, and has not yet departed as of now.
	// It returns the trips it changed.
	SetBookingHalted(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID, halted bool, now time.Time) ([]domain.Trip, error)

	// FindByResource returns the company's trips that reference ref and depart
	// within [from, to] inclusive, excluding the trip with id exclude when set.
	FindByResource(ctx context.Context, companyID uuid.UUID, ref domain.ResourceRef, from, to time.Time, exclude *uuid.UUID) ([]domain.Trip, error)

	// ForeignIDs returns the ids in ids that exist but belong to a company
	// other than companyID. Ids that do not exist are not reported.
	ForeignIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)

	// CountDepartedByStaff counts DEPARTED trips that have staffID as driver
	// or conductor.
	CountDepartedByStaff(ctx context.Context, staffID uuid.UUID) (int, error)

	// HasPaidBookings reports whether any PAID booking is attached to the trip.
	HasPaidBookings(ctx context.Context, id uuid.UUID) (bool, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `
	id, company_id, version, status, origin, destination,
	departure_time, actual_departure_time, actual_arrival_time,
	delay_reason, delayed_at,
	driver_id, conductor_id, manual_ticketer_id, vehicle_id,
	booking_halted, price, total_slots, available_slots,
	created_at, updated_at`

// resourceColumns maps a resource kind to its trips column. Only values from
// this map are interpolated into SQL.
var resourceColumns = map[domain.ResourceKind]string{
	domain.ResourceDriver:         "driver_id",
	domain.ResourceConductor:      "conductor_id",
	domain.ResourceVehicle:        "vehicle_id",
	domain.ResourceManualTicketer: "manual_ticketer_id",
}

// Create inserts a new trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	q := `
		INSERT INTO trips (
			company_id, origin, destination, departure_time,
			driver_id, conductor_id, manual_ticketer_id, vehicle_id,
			booking_halted, price, total_slots, available_slots)
		VALUES (
			@company_id, @origin, @destination, @departure_time,
			@driver_id, @conductor_id, @manual_ticketer_id, @vehicle_id,
			@booking_halted, @price, @total_slots, @available_slots)
		RETURNING` + tripColumns

	args := detailArgs(trip)
	args["company_id"] = trip.CompanyID
	args["booking_halted"] = trip.BookingHalted

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT` + tripColumns + ` FROM trips WHERE id = @id`

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

// UpdateDetails overwrites the schedulable fields of a trip.
func (r *pgTripRepo) UpdateDetails(ctx context.Context, trip domain.Trip, expectedVersion int64) (domain.Trip, error) {
	q := `
		UPDATE trips
		SET origin             = @origin,
		    destination        = @destination,
		    departure_time     = @departure_time,
		    driver_id          = @driver_id,
		    conductor_id       = @conductor_id,
		    manual_ticketer_id = @manual_ticketer_id,
		    vehicle_id         = @vehicle_id,
		    price              = @price,
		    total_slots        = @total_slots,
		    available_slots    = @available_slots,
		    version            = version + 1,
		    updated_at         = now()
		WHERE id = @id AND version = @version
		RETURNING` + tripColumns

	args := detailArgs(trip)
	args["id"] = trip.ID
	args["version"] = expectedVersion

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.UpdateDetails: %w", casError(err))
	}
	return result, nil
}

// UpdateStatus writes the lifecycle fields a status transition touches.
func (r *pgTripRepo) UpdateStatus(ctx context.Context, trip domain.Trip, expectedVersion int64) (domain.Trip, error) {
	q := `
		UPDATE trips
		SET status                = @status,
		    actual_departure_time = @actual_departure_time,
		    actual_arrival_time   = @actual_arrival_time,
		    delay_reason          = @delay_reason,
		    delayed_at            = @delayed_at,
		    booking_halted        = @booking_halted,
		    version               = version + 1,
		    updated_at            = now()
		WHERE id = @id AND version = @version
		RETURNING` + tripColumns

	var delayReason *string
	if trip.DelayReason != nil {
		s := string(*trip.DelayReason)
		delayReason = &s
	}
	args := pgx.NamedArgs{
		"id":                    trip.ID,
		"version":               expectedVersion,
		"status":                string(trip.Status),
		"actual_departure_time": trip.ActualDepartureTime,
		"actual_arrival_time":   trip.ActualArrivalTime,
		"delay_reason":          delayReason,
		"delayed_at":            trip.DelayedAt,
		"booking_halted":        trip.BookingHalted,
	}

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.UpdateStatus: %w", casError(err))
	}
	return result, nil
}

// UpdatePrice changes the price of a single trip.
func (r *pgTripRepo) UpdatePrice(ctx context.Context, id uuid.UUID, expectedVersion int64, price float64) error {
	const q = `
		UPDATE trips
		SET price      = @price,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = @id AND version = @version`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "version": expectedVersion, "price": price})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.UpdatePrice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TripRepo.UpdatePrice: %w", domain.ErrVersionConflict)
	}
	return nil
}

// Delete removes a trip if its version is unchanged.
func (r *pgTripRepo) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	const q = `DELETE FROM trips WHERE id = @id AND version = @version`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "version": expectedVersion})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TripRepo.Delete: %w", domain.ErrVersionConflict)
	}
	return nil
}

// SetBookingHalted is a single set-oriented update without a version check.
// Every changed row still has its version bumped.
func (r *pgTripRepo) SetBookingHalted(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID, halted bool, now time.Time) ([]domain.Trip, error) {
	q := `
		UPDATE trips
		SET booking_halted = @halted,
		    version        = version + 1,
		    updated_at     = now()
		WHERE company_id = @company_id
		  AND id = ANY(@ids::uuid[])
		  AND status NOT IN ('DEPARTED', 'COMPLETED', 'CANCELLED')
		  AND departure_time >= @now
		RETURNING` + tripColumns

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{
		"company_id": companyID,
		"ids":        ids,
		"halted":     halted,
		"now":        now,
	})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.SetBookingHalted: %w", err)
	}
	changed, err := collect(rows, scanTrip)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.SetBookingHalted: %w", err)
	}
	return changed, nil
}

// FindByResource returns overlapping trips for one resource, earliest first.
func (r *pgTripRepo) FindByResource(ctx context.Context, companyID uuid.UUID, ref domain.ResourceRef, from, to time.Time, exclude *uuid.UUID) ([]domain.Trip, error) {
	col, ok := resourceColumns[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("repo.TripRepo.FindByResource: %w: unknown resource kind %q", domain.ErrValidation, ref.Kind)
	}

	q := `SELECT` + tripColumns + `
		FROM trips
		WHERE company_id = @company_id
		  AND ` + col + ` = @resource_id
		  AND departure_time BETWEEN @from AND @to
		  AND (@exclude::uuid IS NULL OR id <> @exclude::uuid)
		ORDER BY departure_time`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{
		"company_id":  companyID,
		"resource_id": ref.ID,
		"from":        from,
		"to":          to,
		"exclude":     exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.FindByResource: %w", err)
	}
	trips, err := collect(rows, scanTrip)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.FindByResource: %w", err)
	}
	return trips, nil
}

// ForeignIDs returns ids owned by another company.
func (r *pgTripRepo) ForeignIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	const q = `
		SELECT id FROM trips
		WHERE id = ANY(@ids::uuid[]) AND company_id <> @company_id
		ORDER BY id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"ids": ids, "company_id": companyID})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ForeignIDs: %w", err)
	}
	foreign, err := collect(rows, func(s scanner) (uuid.UUID, error) {
		var id pgtype.UUID
		if err := s.Scan(&id); err != nil {
			return uuid.Nil, err
		}
		return uuid.UUID(id.Bytes), nil
	})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ForeignIDs: %w", err)
	}
	return foreign, nil
}

// CountDepartedByStaff counts the staff member's trips currently on the road.
func (r *pgTripRepo) CountDepartedByStaff(ctx context.Context, staffID uuid.UUID) (int, error) {
	const q = `
		SELECT count(*) FROM trips
		WHERE status = 'DEPARTED'
		  AND (driver_id = @staff_id OR conductor_id = @staff_id)`

	var n int
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"staff_id": staffID}).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.TripRepo.CountDepartedByStaff: %w", err)
	}
	return n, nil
}

// HasPaidBookings reports whether revenue is attached to the trip.
func (r *pgTripRepo) HasPaidBookings(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM bookings WHERE trip_id = @id AND status = 'PAID')`

	var paid bool
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).Scan(&paid); err != nil {
		return false, fmt.Errorf("repo.TripRepo.HasPaidBookings: %w", err)
	}
	return paid, nil
}

// detailArgs returns the named args shared by Create and UpdateDetails.
func detailArgs(t domain.Trip) pgx.NamedArgs {
	return pgx.NamedArgs{
		"origin":             t.Origin,
		"destination":        t.Destination,
		"departure_time":     t.DepartureTime,
		"driver_id":          t.DriverID, // nil becomes NULL
		"conductor_id":       t.ConductorID,
		"manual_ticketer_id": t.ManualTicketerID,
		"vehicle_id":         t.VehicleID,
		"price":              t.Price,
		"total_slots":        t.TotalSlots,
		"available_slots":    t.AvailableSlots,
	}
}

// casError turns the "no row returned" outcome of a versioned UPDATE ...
// RETURNING into a version conflict. Callers have already read the trip, so
// a missing row means someone else changed or removed it.
func casError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrVersionConflict
	}
	return err
}

// scanTrip maps a single database row into a domain.Trip.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t                                domain.Trip
		id, companyID                    pgtype.UUID
		status                           string
		actualDeparture, actualArrival   pgtype.Timestamptz
		delayReason                      pgtype.Text
		delayedAt                        pgtype.Timestamptz
		driver, conductor, ticketer, veh pgtype.UUID
	)

	err := s.Scan(
		&id, &companyID, &t.Version, &status, &t.Origin, &t.Destination,
		&t.DepartureTime, &actualDeparture, &actualArrival,
		&delayReason, &delayedAt,
		&driver, &conductor, &ticketer, &veh,
		&t.BookingHalted, &t.Price, &t.TotalSlots, &t.AvailableSlots,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.Trip{}, notFound(err)
	}

	t.ID = uuid.UUID(id.Bytes)
	t.CompanyID = uuid.UUID(companyID.Bytes)
	t.Status = domain.TripStatus(status)
	t.DepartureTime = t.DepartureTime.UTC()
	t.ActualDepartureTime = timePtr(actualDeparture)
	t.ActualArrivalTime = timePtr(actualArrival)
	if delayReason.Valid {
		r := domain.DelayReason(delayReason.String)
		t.DelayReason = &r
	}
	t.DelayedAt = timePtr(delayedAt)
	t.DriverID = uuidPtr(driver)
	t.ConductorID = uuidPtr(conductor)
	t.ManualTicketerID = uuidPtr(ticketer)
	t.VehicleID = uuidPtr(veh)

	return t, nil
}
