package handler

// RESPONSE HELPERS:
// Every JSON response goes through writeJSON so headers and status are always
// set before the body. Error bodies share one shape:
//   {"error": "unavailable", "message": "database ping failed"}

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the error format returned by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "unavailable")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be written before the body; once Encode writes,
// later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}
