package fluxsdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/flux/pkg/slogx"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 30 * time.Second

// TokenSource yields the bearer token for the next request. An empty token
// means the request is sent without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns itself.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client talks to the Flux API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Tokens supplies the bearer token. May be nil.
	Tokens TokenSource

	// OnUnauthorized is called before a 401 is returned from an
	// authenticated call.
	OnUnauthorized func(ctx context.Context)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.Tokens = ts }
}

func WithUnauthorizedHandler(fn func(ctx context.Context)) Option {
	return func(c *Client) { c.OnUnauthorized = fn }
}

// WithLogger logs every request through slogx.Transport.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.HTTPClient.Transport = slogx.NewTransport(c.HTTPClient.Transport, logger)
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
