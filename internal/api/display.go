package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/lcdcanvas/internal/render"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

type toggleRequest struct {
	On *bool `json:"on"`
}

type brightnessRequest struct {
	Value *int `json:"value"`
}

type rotationRequest struct {
	Degrees *int `json:"degrees"`
}

func (s *Server) handleGetDisplay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.DisplayState())
}

func (s *Server) handleToggleDisplay(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		writeBadRequest(w, `expected {"on": true|false}`)
		return
	}
	if err := s.monitor.ToggleDisplay(r.Context(), *req.On); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.DisplayState())
}

func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	var req brightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeBadRequest(w, `expected {"value": 0..100}`)
		return
	}
	if err := s.monitor.SetBrightness(r.Context(), *req.Value); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.DisplayState())
}

func (s *Server) handleSetRotation(w http.ResponseWriter, r *http.Request) {
	var req rotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Degrees == nil {
		writeBadRequest(w, `expected {"degrees": 0|90|180|270}`)
		return
	}
	if err := s.monitor.SetRotation(r.Context(), *req.Degrees); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.DisplayState())
}

// handlePutFrame decodes an uploaded image and hands it to the frame sink.
func (s *Server) handlePutFrame(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "frame upload disabled")
		return
	}

	img, err := render.Decode(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "frame too large")
			return
		}
		if errors.Is(err, render.ErrEmptyImage) {
			writeDomainError(w, err)
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	s.frames.Put(img)
	b := img.Bounds()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"width":  b.Dx(),
		"height": b.Dy(),
	})
}

// handlePreview returns the last image the virtual screen showed as PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	if s.preview == nil {
		writeNotFound(w, "preview not available")
		return
	}
	img := s.preview.Snapshot()
	if img == nil {
		writeNotFound(w, "nothing shown yet")
		return
	}

	var buf bytes.Buffer
	if err := render.Encode(&buf, img); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(buf.Bytes())
}

func (s *Server) handleRenderer(w http.ResponseWriter, _ *http.Request) {
	if s.renderer == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.renderer.Stats())
}

// handleListEvents returns stored events, newest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), screen.Identity(r.URL.Query().Get("screen")), limit)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}
