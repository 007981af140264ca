package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/pkg/httpx"
	"github.com/aussiebroadwan/flux/pkg/jwtx"
)

var signer = jwtx.HS256Signer{Key: []byte("httpx-test")}

func token(t *testing.T, sub, role string, ttl time.Duration) string {
	t.Helper()
	tok, err := signer.Sign(jwtx.NewClaims(sub, sub+"@example.com", sub, role, ttl, time.Now()))
	require.NoError(t, err)
	return tok
}

func whoami(w http.ResponseWriter, r *http.Request) {
	c, _ := httpx.ClaimsFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"user_id": httpx.UserIDFromContext(r.Context()),
		"email":   c.Email,
	})
}

func serve(h http.Handler, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthnMiddleware(t *testing.T) {
	h := httpx.Chain(http.HandlerFunc(whoami), httpx.AuthnMiddleware(signer, nil))

	t.Run("missing token", func(t *testing.T) {
		rec := serve(h, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
		require.JSONEq(t, `{"detail":"Not authenticated"}`, rec.Body.String())
	})

	t.Run("bad signature", func(t *testing.T) {
		other, err := jwtx.HS256Signer{Key: []byte("other")}.Sign(jwtx.NewClaims("u1", "", "", "", time.Hour, time.Now()))
		require.NoError(t, err)
		rec := serve(h, other)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		rec := serve(h, token(t, "u1", "presales_admin", -time.Minute))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid", func(t *testing.T) {
		rec := serve(h, token(t, "u1", "presales_admin", time.Hour))
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"user_id":"u1","email":"u1@example.com"}`, rec.Body.String())
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})
}

func TestRoleResolverOverridesClaim(t *testing.T) {
	resolve := func(_ context.Context, c jwtx.Claims) (string, bool) {
		if c.Subject == "gone" {
			return "", false
		}
		return "presales_viewer", true
	}
	h := httpx.Chain(http.HandlerFunc(whoami),
		httpx.AuthnMiddleware(signer, resolve),
		httpx.RequireAnyRole("presales_admin"),
	)

	rec := serve(h, token(t, "u1", "presales_admin", time.Hour))
	require.Equal(t, http.StatusForbidden, rec.Code, "the stored role wins over the token")
	require.JSONEq(t, `{"detail":"Insufficient permissions"}`, rec.Body.String())

	rec = serve(h, token(t, "gone", "presales_admin", time.Hour))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))

	serve(h, "")
	require.Equal(t, []string{"a", "b", "handler"}, order)
}
