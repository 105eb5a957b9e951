package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/jeton/internal/catalog"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/processor"
	"github.com/alecgard/jeton/internal/user"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Required *int64 `json:"required,omitempty"`
	Current  *int64 `json:"current,omitempty"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeServiceError maps an error from the core packages to its HTTP
// status. Unrecognized errors are logged and reported as internal errors
// without leaking their text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *ledger.InsufficientPointsError
	var procErr *processor.ProcessingError

	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, errorEnvelope{
			Error: errorDetail{
				Code:     "insufficient_points",
				Message:  insufficient.Error(),
				Required: &insufficient.Required,
				Current:  &insufficient.Current,
			},
		})
	case errors.Is(err, catalog.ErrUnknownFunction):
		writeError(w, http.StatusNotFound, "unknown_function", err.Error())
	case errors.Is(err, processor.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.As(err, &procErr):
		writeError(w, http.StatusBadGateway, "processing_failed", "the AI provider failed to process the request")
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidType), errors.Is(err, user.ErrInvalid):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, user.ErrDuplicate):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}
