// Package main is the busline command: the API server and its operational
// subcommands. Its responsibility is wiring dependencies together; no
// business logic belongs here.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// configFile is set by the --config flag.
var configFile string

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "busline",
	Short: "Busline trip scheduling engine",
	Long: `Busline schedules bus trips for an operator: it detects resource
conflicts, gates departures on vehicle inspections, runs the trip state
machine and applies bulk administrative changes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is normal outside local development.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not load .env", "error", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file; environment variables take precedence")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

// newLogger builds the JSON logger at the configured level. log/slog's JSON
// handler writes machine-readable output suitable for log aggregators.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
