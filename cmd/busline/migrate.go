package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/pkordes/busline/internal/config"
	"github.com/pkordes/busline/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply, roll back or inspect database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(cmd.Context(), func(p *goose.Provider) error {
			results, err := p.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations, schema is up to date")
				return nil
			}
			printResults(cmd.OutOrStdout(), results...)
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recently applied migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(cmd.Context(), func(p *goose.Provider) error {
			result, err := p.Down(cmd.Context())
			if errors.Is(err, goose.ErrNoNextVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "no applied migrations to roll back")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			printResults(cmd.OutOrStdout(), result)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List every migration and whether it is applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(cmd.Context(), func(p *goose.Provider) error {
			statuses, err := p.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate status: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				applied := "-"
				if s.State == goose.StateApplied {
					applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%05d  %-8s  %-19s  %s\n", s.Source.Version, s.State, applied, s.Source.Path)
			}
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

// withProvider opens a database/sql handle through the pgx driver and builds a
// goose provider over the embedded migrations.
func withProvider(ctx context.Context, fn func(*goose.Provider) error) error {
	dsn, err := config.LoadDatabaseURL(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	return fn(provider)
}

func printResults(w io.Writer, results ...*goose.MigrationResult) {
	for _, r := range results {
		fmt.Fprintf(w, "%-4s %05d  %s  (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
}
