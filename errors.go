package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/example/myflix/internal/guard"
	"github.com/example/myflix/internal/store"
	"github.com/example/myflix/internal/token"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

// writeUnauthorized is the only response an authentication failure ever
// produces, whatever its kind.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="myflix"`)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
}

// storeFailure maps store errors to responses. Unknown errors are logged and
// reported as 500 without detail.
func (a *App) storeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, store.ErrDuplicateUsername):
		writeError(w, http.StatusBadRequest, "DUPLICATE_USERNAME", "Username is already taken")
	case errors.Is(err, store.ErrUnavailable):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("store unavailable")
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("store failure")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// deny is the guard.DenyFunc for every protected route. The auth failure kind
// goes to logs and metrics only.
func (a *App) deny(w http.ResponseWriter, r *http.Request, err error) {
	var ae *token.AuthError
	switch {
	case errors.As(err, &ae):
		a.Metrics.authFailures.WithLabelValues(ae.Kind.String()).Inc()
		zerolog.Ctx(r.Context()).Info().Str("auth_failure", ae.Kind.String()).Err(ae.Err).Msg("request not authenticated")
		writeUnauthorized(w)
	case errors.Is(err, guard.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You may only modify your own account")
	default:
		a.storeFailure(w, r, err)
	}
}
