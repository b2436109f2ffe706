package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewSlogLogger returns a middleware that logs each request as a structured
// line via the provided slog.Logger: method, path, status, duration, the
// request ID set by chi's RequestID middleware and, once authenticated, the
// actor. Server errors are logged at error level.
//
// Wire it after chimiddleware.RequestID so the request ID is available.
func NewSlogLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// The authenticator runs further down the chain; it reports the
			// actor back through this slot.
			slot := &actorSlot{}
			r = r.WithContext(withActorSlot(r.Context(), slot))

			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			}
			if slot.set {
				attrs = append(attrs, "actor_id", slot.actor.ID, "company_id", slot.actor.CompanyID)
			}
			log.Log(r.Context(), level, "request", attrs...)
		})
	}
}
