package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health and identity (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/info", s.handleInfo)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/config", s.handleConfig)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/queue", s.handleQueue)
			r.Get("/audit", s.handleListAudit)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Put("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/send", s.handleSend)
					r.Post("/send", s.handleSend)
					r.Post("/setup", s.handleSetup)
				})
			})

			r.Route("/timers", func(r chi.Router) {
				r.Get("/", s.handleListTimers)
				r.Post("/", s.handleCreateTimer)
				r.Post("/test", s.handleTestTimer)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTimer)
					r.Delete("/", s.handleDeleteTimer)
					r.Post("/fire", s.handleFireTimer)
				})
			})

			r.Get(s.wsPath(), s.handleWebSocket)
		})
	})

	return r
}

// wsPath is the WebSocket route under /api/v1.
func (s *Server) wsPath() string {
	path := strings.TrimSpace(s.wsCfg.Path)
	if path == "" {
		return "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
