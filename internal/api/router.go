package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/kiranshivaraju/trialscope/internal/api/middleware"
	"github.com/kiranshivaraju/trialscope/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler     http.HandlerFunc
	SubmitHandler     http.HandlerFunc
	StatusHandler     http.HandlerFunc
	ReportHandler     http.HandlerFunc
	TrialsXLSXHandler http.HandlerFunc
	DownloadHandler   http.HandlerFunc
	HistoryHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Health is exempt from rate limiting so probes never get throttled.
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/research", orNotImplemented(deps.SubmitHandler))
		r.Get("/api/v1/research/{jobID}", orNotImplemented(deps.StatusHandler))
		r.Get("/api/v1/research/{jobID}/report", orNotImplemented(deps.ReportHandler))
		r.Get("/api/v1/research/{jobID}/trials.xlsx", orNotImplemented(deps.TrialsXLSXHandler))
		r.Get("/api/v1/research/{jobID}/download/{type}", orNotImplemented(deps.DownloadHandler))

		r.Get("/api/v1/jobs", orNotImplemented(deps.HistoryHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
