package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterOptions carries the optional parts of the API router.
type RouterOptions struct {
	RateLimit RateLimitConfig
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
}

// NewRouter creates a chi router with all registrar routes. It is meant to
// be mounted under /api.
func NewRouter(svc Registry, opts RouterOptions) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Get("/check/{label}", h.Check)
	r.Get("/lookup/{label}/{tag}", h.Lookup)
	r.Get("/search", h.Search)

	// Mutations share one rate limiter.
	r.Group(func(r chi.Router) {
		r.Use(RateLimit(opts.RateLimit))
		r.Post("/register", h.Register)
		r.Put("/update", h.Update)
		r.Delete("/delete", h.Delete)
	})

	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}

// MountHealth adds the liveness and readiness checks to r. ready is called
// on every readiness check.
func MountHealth(r chi.Router, ready func(ctx context.Context) error) {
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	})
}
