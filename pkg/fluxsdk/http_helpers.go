package fluxsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// request describes one API call.
type request struct {
	method string
	path   string
	in     any
	out    any

	// token overrides the token source when set.
	token string

	// anonymous calls send no bearer token and skip the unauthorized hook.
	anonymous bool

	// silent401 skips the unauthorized hook but still sends the token.
	silent401 bool
}

func (c *Client) do(ctx context.Context, r request) error {
	var body io.Reader
	if r.in != nil {
		b, err := json.Marshal(r.in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !r.anonymous {
		token := r.token
		if token == "" && c.Tokens != nil {
			if token, err = c.Tokens.Token(ctx); err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	err = decodeJSON(resp, r.out)
	if errors.Is(err, ErrUnauthorized) && !r.anonymous && !r.silent401 && c.OnUnauthorized != nil {
		c.OnUnauthorized(ctx)
	}
	return err
}

// decodeJSON decodes a 2xx body into target, or returns the typed API error.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrTransport, err)
	}

	if err := parseErrorResponse(resp, bodyBytes); err != nil {
		return err
	}

	if target == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
