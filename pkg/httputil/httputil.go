// Package httputil centralizes JSON response writing and domain error
// translation so every handler emits the same envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a coded error into an HTTP response. Internal errors
// omit the description so raw causes never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := ledgererrors.CodeOf(err)

	body := map[string]any{"error": string(code)}
	if code != ledgererrors.CodeInternal {
		var e *ledgererrors.Error
		if errors.As(err, &e) {
			body["error_description"] = e.Message
		}
	}
	if deltas, ok := ledgererrors.DeltasOf(err); ok {
		body["deltas"] = deltas
	}
	WriteJSON(w, ToHTTPStatus(code), body)
}

// ToHTTPStatus maps domain error codes to HTTP statuses.
func ToHTTPStatus(code ledgererrors.Code) int {
	switch code {
	case ledgererrors.CodeBadRequest:
		return http.StatusBadRequest
	case ledgererrors.CodeAuthorizationFailed:
		return http.StatusForbidden
	case ledgererrors.CodeNotFound, ledgererrors.CodeRegisterUnavailable:
		return http.StatusNotFound
	case ledgererrors.CodeRegisterLocked, ledgererrors.CodeRegisterAlreadyConsumed:
		return http.StatusConflict
	case ledgererrors.CodePreconditionInvalidated:
		return http.StatusPreconditionFailed
	case ledgererrors.CodeConservationViolation, ledgererrors.CodeEpochTooRecent:
		return http.StatusUnprocessableEntity
	case ledgererrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads the request body into dst, reporting a bad-request envelope on
// malformed input.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var dst T
	if err := json.NewDecoder(r.Body).Decode(&dst); err != nil {
		if logger != nil {
			logger.InfoContext(r.Context(), "malformed request body", "error", err)
		}
		WriteError(w, ledgererrors.Wrap(err, ledgererrors.CodeBadRequest, "malformed request body"))
		var zero T
		return zero, false
	}
	return dst, true
}
