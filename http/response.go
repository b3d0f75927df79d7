package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mcrawfurd/slipway"
	"github.com/mcrawfurd/slipway/apikeys"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes the appropriate error response based on error type.
// Signature failures map to a generic denial: which part failed (expiry
// vs mismatch) stays in the logs.
func HandleError(w http.ResponseWriter, err error) {
	slog.Error("request error", "error", err)

	switch {
	case slipway.IsDenied(err):
		WriteError(w, http.StatusForbidden, "access_denied", "Access denied")
	case errors.Is(err, apikeys.ErrUnknownKey), errors.Is(err, slipway.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid API key")
	case errors.Is(err, slipway.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Not found")
	case errors.Is(err, slipway.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict", "Conflict")
	case errors.Is(err, slipway.ErrInvalidArgument):
		WriteError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, slipway.ErrBackendUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "backend_unavailable", "Storage backend unavailable")
	case errors.Is(err, slipway.ErrInconsistent):
		WriteError(w, http.StatusBadGateway, "inconsistent", "Object metadata inconsistent with backend")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
