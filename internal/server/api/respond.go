// Package api provides the HTTP handlers of the paperbeat control surface:
// calibration, settings and note history.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// queryLimit parses the limit query parameter. Missing means def; values are
// clamped to [1, max].
func queryLimit(r *http.Request, def, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}
