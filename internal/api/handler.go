// Package api provides HTTP handlers for the trainer API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxRequestBodySize bounds JSON request bodies (1MB).
const maxRequestBodySize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into dst and validates struct tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
