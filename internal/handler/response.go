package handler

// RESPONSE HELPERS:
// Every JSON response goes through writeJSON and every failure through
// writeError (JSON) or the page renderer (HTML). Both use errorStatus so the
// two surfaces always agree on the status code.
//
// CONSISTENT ERROR FORMAT:
//   {"error": "upstream_timeout", "message": "openai did not respond in time"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/codegen-playground/internal/apperror"
)

// ErrorResponse is the error body returned by all /api endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status, a machine-readable type
// and a message that is safe to show to users.
//
// errors.Is walks the whole chain, including the errors.Join used by the
// upstream and persistence constructors, so a wrapped
// fmt.Errorf("generating: %w", apperror.UpstreamTimeout(...)) still maps to 504.
func errorStatus(err error) (int, string, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never expose internal details: raw messages can carry paths or SQL.
		return http.StatusInternalServerError, "internal_error", "An internal error occurred"
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error", appErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found", appErr.Message
	case errors.Is(err, apperror.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "upstream_timeout", appErr.Message
	case errors.Is(err, apperror.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "upstream_unavailable", appErr.Message
	case errors.Is(err, apperror.ErrSandboxUnavailable):
		return http.StatusServiceUnavailable, "sandbox_unavailable", appErr.Message
	case errors.Is(err, apperror.ErrPersistence):
		return http.StatusInternalServerError, "persistence_failure", appErr.Message
	case errors.Is(err, apperror.ErrInvalidPurpose):
		return http.StatusInternalServerError, "invalid_purpose", appErr.Message
	default:
		return http.StatusInternalServerError, "internal_error", appErr.Message
	}
}

// writeError sends err as an ErrorResponse.
func writeError(w http.ResponseWriter, err error) {
	status, kind, msg := errorStatus(err)
	writeJSON(w, status, ErrorResponse{Error: kind, Message: msg})
}
