package httputil

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/madddiyarn/regulus/internal/errors"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string   `json:"error"`
	Hints []string `json:"hints"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusOf maps an error onto an HTTP status via the error sentinels. A
// cancelled or timed-out operation is reported as unavailable.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an ErrorBody. Internal errors are logged with
// their detail and reported to the caller generically.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusOf(err)
	body := ErrorBody{Error: err.Error(), Hints: errors.GetAllHints(err)}
	if body.Hints == nil {
		body.Hints = []string{}
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "component", "api", "path", r.URL.Path, "error", err)
		body = ErrorBody{Error: "internal error", Hints: []string{}}
	}
	WriteJSON(w, status, body)
}

// DecodeJSON reads one JSON object from the request body into dst. Unknown
// fields, trailing data and oversized bodies are invalid arguments.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.WithHint(
			errors.Mark(errors.Wrap(err, "decode request body"), errors.ErrInvalidArgument),
			"send a single JSON object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.InvalidArgumentf("request body has trailing data")
	}
	return nil
}
