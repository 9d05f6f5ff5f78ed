package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Encoding errors are logged since the status line has already been written.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// RespondErrorWithCode sends a JSON error with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, message string, code string, statusCode int) {
	RespondJSON(w, ErrorResponse{Error: message, Code: code}, statusCode)
}

// RespondUnauthenticated sends a 401 carrying the path the client should
// return to after logging in.
func RespondUnauthenticated(w http.ResponseWriter, message, code, redirectTo string) {
	RespondJSON(w, ErrorResponse{Error: message, Code: code, RedirectTo: redirectTo}, http.StatusUnauthorized)
}
