package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is used when the WebSocket config leaves the path empty.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/device", s.handleDevice)
		r.Get("/symbols", s.handleSymbols)

		r.Route("/attributes", func(r chi.Router) {
			r.Get("/", s.handleListAttributes)
			r.Get("/{name}", s.handleReadAttribute)
		})
		r.Get("/values", s.handleLastValues)

		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.handleGetState)
			r.Get("/history", s.handleStateHistory)
		})

		r.Post("/cycle", s.handleCycle)
		r.Post("/evaluate", s.handleEvaluate)

		r.Route("/inputs", func(r chi.Router) {
			r.Get("/", s.handleListInputs)
			r.Put("/{name}", s.handleSetInput)
		})

		r.Route("/properties", func(r chi.Router) {
			r.Get("/", s.handleGetProperties)
			r.Put("/", s.handleSaveProperties)
			r.Delete("/", s.handleClearProperties)
		})
		r.Post("/reload", s.handleReload)
		r.Get("/reloads", s.handleReloadHistory)
	})

	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"device":  s.device.Name(),
		"version": s.version,
	})
}
