package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/logging"
)

// errorBody is the problem-details payload returned for every failed
// request.
type errorBody struct {
	StatusCode int               `json:"statusCode"`
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps the payload in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

// writeError translates a service error into the wire taxonomy. Anything
// outside the taxonomy is logged with context and surfaced as an opaque 500:
// internal error text never reaches the caller.
func writeError(ctx context.Context, log logging.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, errorBody{
			StatusCode: http.StatusUnauthorized,
			Error:      "Unauthorized",
			Message:    "authentication required",
		})
	case errors.Is(err, common.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{
			StatusCode: http.StatusForbidden,
			Error:      "Forbidden",
			Message:    "access denied",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			StatusCode: http.StatusNotFound,
			Error:      "Not Found",
			Message:    "resource not found",
		})
	case errors.Is(err, common.ErrInvalidInput):
		body := errorBody{
			StatusCode: http.StatusBadRequest,
			Error:      "Bad Request",
			Message:    err.Error(),
		}
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			body.Message = "validation failed"
			body.Details = ve.Fields
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, common.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{
			StatusCode: http.StatusConflict,
			Error:      "Conflict",
			Message:    err.Error(),
		})
	case errors.Is(err, common.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			StatusCode: http.StatusServiceUnavailable,
			Error:      "Service Unavailable",
			Message:    "dependency unavailable",
		})
	default:
		log.Error(ctx, "unhandled request error", "error", err, "requestId", requestIDFrom(ctx))
		writeJSON(w, http.StatusInternalServerError, errorBody{
			StatusCode: http.StatusInternalServerError,
			Error:      "Internal Server Error",
			Message:    "internal error",
		})
	}
}
