package fluxsdk

import (
	"context"
	"errors"
	"net/http"
)

// GoogleAuth exchanges a Google identity token for a Flux session.
// No bearer token is sent.
func (c *Client) GoogleAuth(ctx context.Context, credential string) (*AuthResponse, error) {
	if credential == "" {
		return nil, errors.New("fluxsdk: google credential is required")
	}

	var out AuthResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/google",
		in:        GoogleAuthRequest{Token: credential},
		out:       &out,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyToken asks the API whether token is still valid. A 401 is returned
// as an error without invoking the unauthorized handler; callers verifying a
// stored session deal with rejection themselves.
func (c *Client) VerifyToken(ctx context.Context, token string) (*VerifyResponse, error) {
	var out VerifyResponse
	err := c.do(ctx, request{
		method:    http.MethodGet,
		path:      "/auth/verify",
		out:       &out,
		token:     token,
		silent401: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
