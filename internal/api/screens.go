package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lcdcanvas/internal/screen"
)

type selectScreenRequest struct {
	ID screen.Identity `json:"id"`
}

func (s *Server) handleListScreens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"screens": s.monitor.Screens(),
	})
}

func (s *Server) handleRescanScreens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"screens": s.monitor.LoadScreens(),
	})
}

func (s *Server) handleGetActiveScreen(w http.ResponseWriter, _ *http.Request) {
	session := s.monitor.DisplayState()
	if session.Active == nil {
		writeNotFound(w, "no active screen")
		return
	}
	writeJSON(w, http.StatusOK, session.Active)
}

// handleSelectScreen selects a screen by id. An empty id clears the
// selection.
func (s *Server) handleSelectScreen(w http.ResponseWriter, r *http.Request) {
	var req selectScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	active, err := s.monitor.SelectScreen(r.Context(), req.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  active,
		"session": s.monitor.DisplayState(),
	})
}

func (s *Server) handleGetScreenSettings(w http.ResponseWriter, r *http.Request) {
	id := screen.Identity(chi.URLParam(r, "id"))
	v, err := s.monitor.ScreenSettings(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handlePutScreenSettings decodes the body over the stored settings, so
// fields the client leaves out keep their current values.
func (s *Server) handlePutScreenSettings(w http.ResponseWriter, r *http.Request) {
	id := screen.Identity(chi.URLParam(r, "id"))
	v, err := s.monitor.ScreenSettings(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := v.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.monitor.SetScreenSettings(r.Context(), id, v); err != nil {
		writeDomainError(w, err)
		return
	}

	saved, err := s.monitor.ScreenSettings(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetMonitorSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.monitor.MonitorSettings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handlePutMonitorSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "body too large")
			return
		}
		writeBadRequest(w, "expected a JSON object of strings")
		return
	}
	if err := s.monitor.SetMonitorSettings(r.Context(), values); err != nil {
		writeDomainError(w, err)
		return
	}

	merged, err := s.monitor.MonitorSettings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}
