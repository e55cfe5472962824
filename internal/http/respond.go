package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// Every payload goes out in a uniform envelope: {"data": ...} on success,
// {"error": "..."} on failure.

const maxBodyBytes = 1 << 20

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"data": v}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// decodeJSON reads a request body into dst, rejecting unknown payloads larger
// than maxBodyBytes.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer io.Copy(io.Discard, body)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return err
	}
	return nil
}

var errMethodNotAllowed = errors.New("method not allowed")

// requireMethod enforces the allowed method for a handler and writes the 405
// itself so handlers can simply return.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed.Error())
		return false
	}
	return true
}
