// Package shield provides the HTTP middleware shared by the helpers service:
// request tracing and logging, security headers, body limits, basic auth and
// per-client rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
//	r.With(shield.NewRateLimiter(2, 4).Middleware).Get("/goto", h)
package shield

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the middleware applied to every route.
// Order: TraceID → RequestLog → Recoverer → SecurityHeaders. The recoverer
// sits inside RequestLog so a recovered panic is logged as a 500 with its
// trace id.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		TraceIDWith(logger),
		RequestLog,
		middleware.Recoverer,
		SecurityHeaders(DefaultHeaders()),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
