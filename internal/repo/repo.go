// Package repo contains all database access logic for the Busline trip engine.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here: only SQL, type mapping and the
// compare-and-swap primitives the services build on.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/busline/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Repos accept it so the same code runs against the pool, inside a bounded
// service transaction, or inside a test transaction that is rolled back.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txBeginner is a db that can open a transaction. *pgxpool.Pool opens a real
// transaction; pgx.Tx opens a savepoint.
type txBeginner interface {
	db
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repos groups every repository bound to the same connection or transaction.
type Repos struct {
	Trips       TripRepo
	Vehicles    VehicleRepo
	Staff       StaffRepo
	Inspections InspectionRepo
	Audit       AuditRepo
	Outbox      OutboxRepo
}

// New binds all repositories to db.
func New(db db) Repos {
	return Repos{
		Trips:       NewTripRepo(db),
		Vehicles:    NewVehicleRepo(db),
		Staff:       NewStaffRepo(db),
		Inspections: NewInspectionRepo(db),
		Audit:       NewAuditRepo(db),
		Outbox:      NewOutboxRepo(db),
	}
}

// TxRunner runs a unit of work inside one database transaction.
//
// WithinTx commits when fn returns nil and rolls back otherwise. A positive
// timeout bounds the whole transaction; when it expires every write made so
// far is rolled back and the returned error wraps domain.ErrTimeout.
type TxRunner interface {
	WithinTx(ctx context.Context, timeout time.Duration, fn func(Repos) error) error
}

// Store is the Postgres TxRunner. Repos returns repositories that run outside
// any transaction, for plain reads and for writes that must not share a
// transaction's fate, such as bulk audit entries.
type Store struct {
	repos Repos
	db    txBeginner
}

// NewStore constructs a Store. In production pass *pgxpool.Pool; in tests pass
// a pgx.Tx so each WithinTx becomes a savepoint of the test transaction.
func NewStore(db txBeginner) *Store {
	return &Store{repos: New(db), db: db}
}

// Repos returns the repositories bound to the pool itself.
func (s *Store) Repos() Repos {
	return s.repos
}

// WithinTx implements TxRunner.
func (s *Store) WithinTx(ctx context.Context, timeout time.Duration, fn func(Repos) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return txError(ctx, "begin", err)
	}
	defer func() {
		if err != nil {
			// ctx may already be past its deadline; rollback must still reach the server.
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(New(tx)); err != nil {
		return txError(ctx, "", err)
	}
	// An expired deadline must never reach Commit: the rollback above has to run.
	if err = ctx.Err(); err != nil {
		return txError(ctx, "commit", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return txError(ctx, "commit", err)
	}
	return nil
}

// txError wraps err with domain.ErrTimeout when the transaction's deadline
// was the cause, so callers can tell a rolled-back timeout from other failures.
func txError(ctx context.Context, stage string, err error) error {
	prefix := "repo.Store.WithinTx"
	if stage != "" {
		prefix += ": " + stage
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, domain.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%s: %w: %w", prefix, domain.ErrTimeout, err)
	}
	if stage == "" {
		return err
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scan helpers to
// be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// collect drains rows with scan, closing rows when done.
func collect[T any](rows pgx.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// notFound maps pgx.ErrNoRows to domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
