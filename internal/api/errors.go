package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/lcdcanvas/internal/device"
	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/render"
	"github.com/nerrad567/lcdcanvas/internal/settings"
)

// Error is the body of every non-2xx JSON response.
//
//	{"status": 409, "code": "conflict", "message": "display: no active device"}
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeTooLarge     = "payload_too_large"
	ErrCodeUnavailable  = "unavailable"
)

// domainStatus maps sentinel errors from the monitor stack to responses.
// The first match wins; anything unlisted is a 500.
var domainStatus = []struct {
	err    error
	status int
	code   string
}{
	{device.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound},
	{settings.ErrInvalidSettings, http.StatusBadRequest, ErrCodeValidation},
	{display.ErrInvalidRotation, http.StatusBadRequest, ErrCodeValidation},
	{render.ErrEmptyImage, http.StatusBadRequest, ErrCodeValidation},
	{display.ErrNoActiveDevice, http.StatusConflict, ErrCodeConflict},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainStatus {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	writeInternalError(w, err.Error())
}
