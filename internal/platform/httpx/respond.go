// Package httpx provides JSON response utilities and the single boundary
// that maps domain errors to HTTP responses.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIError is the wire shape for every error response. Field-level
// validation failures are reported in FieldErrors as field -> message.
type APIError struct {
	Timestamp   time.Time         `json:"timestamp"`
	Status      int               `json:"status"`
	Error       string            `json:"error"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Path        string            `json:"path"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
