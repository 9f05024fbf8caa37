package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError sends the same {"error","kind"} body the API handlers use.
// Every rejection raised here is a caller error.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}{msg, "validation"})
}
