package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Execer is the write side of pgx.Tx and *pgxpool.Pool that fixtures need.
type Execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertVehicle seeds a vehicle and returns its id. A negative risk stores NULL.
func InsertVehicle(t *testing.T, db Execer, companyID uuid.UUID, status string, risk int) uuid.UUID {
	t.Helper()

	var score *int
	if risk >= 0 {
		score = &risk
	}
	var id uuid.UUID
	err := db.QueryRow(context.Background(), `
		INSERT INTO vehicles (company_id, plate_number, status, maintenance_risk_score)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, companyID, "BUS-"+uuid.NewString()[:8], status, score).Scan(&id)
	if err != nil {
		t.Fatalf("testutil.InsertVehicle: %v", err)
	}
	return id
}

// InsertStaff seeds a staff member and returns its id.
func InsertStaff(t *testing.T, db Execer, companyID uuid.UUID, role, status string) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(context.Background(), `
		INSERT INTO staff (company_id, name, role, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, companyID, role+" "+uuid.NewString()[:4], role, status).Scan(&id)
	if err != nil {
		t.Fatalf("testutil.InsertStaff: %v", err)
	}
	return id
}

// InsertInspection seeds an inspection record created at the given time.
func InsertInspection(t *testing.T, db Execer, vehicleID uuid.UUID, typ, result string, at time.Time) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(context.Background(), `
		INSERT INTO inspections (vehicle_id, type, result, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, vehicleID, typ, result, at).Scan(&id)
	if err != nil {
		t.Fatalf("testutil.InsertInspection: %v", err)
	}
	return id
}

// InsertBooking seeds a booking on a trip.
func InsertBooking(t *testing.T, db Execer, tripID uuid.UUID, status string) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(context.Background(), `
		INSERT INTO bookings (trip_id, status) VALUES ($1, $2) RETURNING id`, tripID, status).Scan(&id)
	if err != nil {
		t.Fatalf("testutil.InsertBooking: %v", err)
	}
	return id
}
