// Package testutil holds the Postgres helpers shared by integration tests.
// Every helper that needs a database reads TEST_DATABASE_URL and skips the
// calling test when it is unset, so `go test ./...` passes on a laptop with
// no Postgres running.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/pkordes/busline/migrations"
)

// DSNEnv names the variable integration tests read their connection string from.
const DSNEnv = "TEST_DATABASE_URL"

// NewTx begins a transaction on a fresh pool and rolls it back when the test
// finishes. Repos accept a pgx.Tx wherever they accept a pool, so each test
// sees only its own rows and never needs cleanup SQL.
func NewTx(t *testing.T) pgx.Tx {
	t.Helper()

	tx, err := NewPool(t).Begin(context.Background())
	if err != nil {
		t.Fatalf("testutil.NewTx: begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

// NewPool connects a pgxpool to the test database and closes it on cleanup.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), dsn(t))
	if err != nil {
		t.Fatalf("testutil.NewPool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("testutil.NewPool: ping: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// NewSQLDB connects a database/sql handle through the pgx driver, the form
// goose needs.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := openSQL(dsn(t))
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Migrate applies every pending migration to the database at url. It is meant
// for TestMain, where there is no *testing.T to skip; pass the value of
// DSNEnv after checking it is set.
func Migrate(ctx context.Context, url string) error {
	db, err := openSQL(url)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("testutil.Migrate: up: %w", err)
	}
	return nil
}

// NewMigrator builds a goose provider over the embedded migrations.
func NewMigrator(db *sql.DB) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("testutil.NewMigrator: %w", err)
	}
	return provider, nil
}

func openSQL(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func dsn(t *testing.T) string {
	t.Helper()
	url := os.Getenv(DSNEnv)
	if url == "" {
		t.Skip(DSNEnv + " not set; skipping integration test")
	}
	return url
}
