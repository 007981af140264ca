// Package jwtx reads (and, for test doubles, mints) the session tokens issued
// by the Flux API.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Claims are the session-token claims the Flux API puts in its JWTs. The
// subject is the user id.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// NewClaims builds claims valid from now for ttl.
func NewClaims(userID, email, name, role string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Name:  name,
		Role:  role,
	}
}

// Decode parses token WITHOUT verifying its signature. The client cannot
// verify tokens (it holds no key); this is only used to skip a network round
// trip when the token has plainly expired. The API stays the authority.
func Decode(token string) (Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Claims{}, ErrMalformed
	}
	return c, nil
}

// ValidateExpiryWithLeeway checks exp and nbf against now, allowing leeway for
// clock skew.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
