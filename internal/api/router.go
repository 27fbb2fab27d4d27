// Package api wires the HTTP surface of the mapping service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/crosswalk-io/crosswalk/internal/api/middleware"
	"github.com/crosswalk-io/crosswalk/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler        http.HandlerFunc
	CreateMappingHandler http.HandlerFunc
	StatusHandler        http.HandlerFunc
	RedriveHandler       http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/mappings", orNotImplemented(deps.CreateMappingHandler))
		r.Get("/api/v1/mappings/{mappingID}", orNotImplemented(deps.StatusHandler))

		r.Post("/api/v1/admin/redrive", orNotImplemented(deps.RedriveHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", "")
	}
}
