package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"faims3/conductor/pkg/notebook"
	"faims3/conductor/pkg/telemetry/logging"
)

// ErrorResponse is the body of every error answered before streaming.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	// Drop headers set for a stream that never started.
	w.Header().Del("Content-Disposition")
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		RequestID: logging.GetRequestID(r.Context()),
	})
}

// statusFor maps an error raised before any output to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case notebook.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// trackingWriter records whether a stream has started, so errors can still
// be answered cleanly before the first byte.
type trackingWriter struct {
	http.ResponseWriter
	n int64
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	n, err := tw.ResponseWriter.Write(b)
	tw.n += int64(n)
	return n, err
}

func (tw *trackingWriter) started() bool {
	return tw.n > 0
}
