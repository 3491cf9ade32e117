package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lcdcanvas/internal/panel"
)

// healthCheckTimeout bounds each dependency check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.observe, s.cors)

	// Browser preview of the virtual screen
	r.Handle("/preview/*", http.StripPrefix("/preview", panel.Handler()))
	r.Handle("/preview", http.RedirectHandler("/preview/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// The WebSocket authenticates with a ticket, not a bearer token.
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken, limitBody(maxRequestBodySize))

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/screens", func(r chi.Router) {
				r.Get("/", s.handleListScreens)
				r.Post("/rescan", s.handleRescanScreens)
				r.Get("/active", s.handleGetActiveScreen)
				r.Put("/active", s.handleSelectScreen)
				r.Get("/{id}/settings", s.handleGetScreenSettings)
				r.Put("/{id}/settings", s.handlePutScreenSettings)
			})

			r.Get("/monitor/settings", s.handleGetMonitorSettings)
			r.Put("/monitor/settings", s.handlePutMonitorSettings)

			r.Route("/display", func(r chi.Router) {
				r.Get("/", s.handleGetDisplay)
				r.Post("/", s.handleToggleDisplay)
				r.Put("/brightness", s.handleSetBrightness)
				r.Put("/rotation", s.handleSetRotation)
			})

			r.Get("/preview.png", s.handlePreview)
			r.Get("/renderer", s.handleRenderer)
			r.Get("/events", s.handleListEvents)
		})

		// Frames are larger than control bodies and get their own cap.
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken, limitBody(s.cfg.MaxFrameBytes))
			r.Put("/frame", s.handlePutFrame)
		})
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports "ok" when every dependency check passes and
// "degraded" otherwise. It always answers 200 so that a broken optional
// dependency does not get the process restarted.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
		"display": s.monitor.DisplayState(),
	})
}
