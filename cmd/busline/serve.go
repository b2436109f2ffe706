package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pkordes/busline/api"
	"github.com/pkordes/busline/internal/clock"
	"github.com/pkordes/busline/internal/config"
	"github.com/pkordes/busline/internal/dispatch"
	"github.com/pkordes/busline/internal/handler"
	"github.com/pkordes/busline/internal/manifest"
	"github.com/pkordes/busline/internal/metrics"
	"github.com/pkordes/busline/internal/middleware"
	"github.com/pkordes/busline/internal/repo"
	"github.com/pkordes/busline/internal/service"
)

// shutdownGrace is how long in-flight requests get to finish after a signal.
const shutdownGrace = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the side-effect workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		logger := newLogger(cfg.LogLevel)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// --- Database ---------------------------------------------------------
	// pgxpool.New does not open connections immediately; Ping does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	store := repo.NewStore(pool)
	m := metrics.New()
	clk := clock.Real()

	// --- Side effects -----------------------------------------------------
	manifests, err := manifestRequester(ctx, cfg.Manifest, store, clk)
	if err != nil {
		return err
	}
	repos := store.Repos()
	dispatcher := dispatch.New(dispatch.Config{
		Workers:    cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
		MaxRetries: cfg.Dispatch.MaxRetries,
	}, repos.Staff, repos.Trips, manifests, dispatch.OutboxNotifier{Outbox: repos.Outbox}, m, logger)

	// --- HTTP -------------------------------------------------------------
	srv := handler.NewServer(handler.Services{
		Trips:       service.NewTripService(store, dispatcher, m, logger),
		Transitions: service.NewTransitionService(store, dispatcher, clk, m, logger),
		Bulk:        service.NewBulkMutator(store, dispatcher, clk, m, logger),
		Manifests:   service.NewManifestService(store, dispatcher, logger),
	}, api.OpenAPI, logger)

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.NewRouter(srv, handler.RouterOptions{
			Logger:       logger,
			CORSOrigins:  cfg.CORSOrigins,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Authenticate: middleware.NewAuthenticator([]byte(cfg.JWTSecret)),
			Metrics:      m.Handler(),
		}),
		// Explicit timeouts prevent slowloris and resource exhaustion attacks.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// manifestRequester picks where manifest requests go: the Postgres outbox
// the generator polls, or request objects in an S3 bucket.
func manifestRequester(ctx context.Context, cfg config.ManifestConfig, store *repo.Store, clk clock.Clock) (dispatch.ManifestRequester, error) {
	if cfg.Driver != config.ManifestDriverS3 {
		return dispatch.OutboxManifests{Outbox: store.Repos().Outbox}, nil
	}
	r, err := manifest.NewS3Requester(ctx, manifest.Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
		Prefix:    cfg.Prefix,
	}, clk)
	if err != nil {
		return nil, fmt.Errorf("manifest requester: %w", err)
	}
	return r, nil
}
