package slogx_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/flux/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestTransportStampsRequestID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := &http.Client{Transport: slogx.NewTransport(nil, logger)}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/verify", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.NotEmpty(t, seen)
	require.Empty(t, req.Header.Get("X-Request-ID"), "caller request must not be mutated")
	require.Contains(t, buf.String(), "api_request")
	require.Contains(t, buf.String(), "path=/auth/verify")
	require.Contains(t, buf.String(), "status=204")
}

func TestTransportKeepsCallerRequestID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))
	defer srv.Close()

	client := &http.Client{Transport: slogx.NewTransport(nil, slogx.Discard())}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "fixed-id")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, "fixed-id", seen)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, slogx.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, slogx.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, slogx.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, slogx.ParseLevel("nonsense"))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHTTPMiddlewareSharesRequestID(t *testing.T) {
	var serverLog, clientLog lockedBuffer
	server := slog.New(slog.NewTextHandler(&serverLog, nil))

	loggers := make(chan *slog.Logger, 1)
	h := slogx.HTTPMiddleware(server)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggers <- slogx.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	srv := httptest.NewServer(h)
	defer srv.Close()

	client := &http.Client{Transport: slogx.NewTransport(nil,
		slog.New(slog.NewTextHandler(&clientLog, &slog.HandlerOptions{Level: slog.LevelDebug})))}
	resp, err := client.Get(srv.URL + "/opportunities/")
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.NotSame(t, server, <-loggers)
	require.Contains(t, serverLog.String(), "http_request")
	require.Contains(t, serverLog.String(), "status=418")

	id := func(s string) string {
		_, after, ok := strings.Cut(s, "req_id=")
		require.True(t, ok, s)
		v, _, _ := strings.Cut(after, " ")
		return v
	}
	require.Equal(t, id(clientLog.String()), id(serverLog.String()))
}
