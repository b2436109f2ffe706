package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pkordes/busline/internal/middleware"
)

// RouterOptions configures the middleware stack of NewRouter.
type RouterOptions struct {
	Logger       *slog.Logger
	CORSOrigins  []string
	MaxBodyBytes int64
	// Authenticate guards every /trips route.
	Authenticate func(http.Handler) http.Handler
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the full HTTP handler.
//
// Middleware is applied in order: RequestID, RealIP, SlogLogger, Recoverer,
// CORS, MaxBodySize. RequestID generates a trace ID per request, SlogLogger
// writes one structured line per request and Recoverer turns panics into 500.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(opts.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(opts.CORSOrigins))
	if opts.MaxBodyBytes > 0 {
		r.Use(middleware.NewMaxBodySizeHandler(opts.MaxBodyBytes))
	}

	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/trips", func(r chi.Router) {
		r.Use(opts.Authenticate)

		r.Post("/", s.CreateTrip)
		r.Post("/conflicts", s.DetectConflicts)
		r.Post("/bulk", s.ApplyBulk)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetTrip)
			r.Put("/", s.UpdateTrip)
			r.Get("/transitions", s.ListTransitions)
			r.Post("/transitions", s.ProposeTransition)
			r.Post("/manifest", s.RequestManifest)
			r.Post("/capacity", s.CapacityChanged)
			r.Get("/audit", s.ListTripAudit)
		})
	})
	return r
}
