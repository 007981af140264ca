package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ErrorBody is the error shape of the Flux API.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// WriteDetail writes {"detail": detail} with code.
func WriteDetail(w http.ResponseWriter, code int, detail string) {
	WriteJSON(w, code, ErrorBody{Detail: detail})
}

// DecodeJSON reads a JSON request body of at most 1 MiB into v.
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
