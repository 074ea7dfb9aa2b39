package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(srv *Server) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(RecovererMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Key management routes
	r.Post("/api/generate-key", srv.handleGenerateKey)
	r.Post("/api/keys/verify", srv.handleVerifyKey)
	r.Post("/api/keys/revoke", srv.handleRevokeKey)

	// Legacy synchronous build, no key required
	r.Post("/api/build-apk", srv.handleBuildSync)

	// Keyed build API
	r.Group(func(r chi.Router) {
		r.Use(srv.requireAPIKey)
		r.Post("/api/v1/build-apk", srv.handleBuildAsync)
		r.Get("/api/v1/status/{jobID}", srv.handleJobStatus)
		r.Get("/api/v1/download/{jobID}", srv.handleJobDownload)
	})

	r.Get("/healthz", srv.handleHealth)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
