package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/flux/pkg/idx"
)

// Transport logs every outgoing request and stamps it with an X-Request-ID
// so client and API logs can be correlated.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = idx.New().String()
		// RoundTrippers must not mutate the caller's request.
		r = r.Clone(r.Context())
		r.Header.Set("X-Request-ID", reqID)
	}

	logger := t.Logger
	if logger == nil {
		logger = FromContext(r.Context())
	}
	logger = logger.With(
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
	)

	resp, err := t.Base.RoundTrip(r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("api_request failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("api_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
