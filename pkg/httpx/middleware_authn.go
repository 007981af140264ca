package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/flux/pkg/jwtx"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

// TokenVerifier checks a bearer token's signature and returns its claims.
type TokenVerifier interface {
	Verify(token string) (jwtx.Claims, error)
}

// RoleResolver maps a verified subject to its current role. A false return
// rejects the token.
type RoleResolver func(ctx context.Context, claims jwtx.Claims) (role string, ok bool)

// AuthnMiddleware requires a valid bearer token. When resolve is nil the
// role claim in the token is trusted.
func AuthnMiddleware(v TokenVerifier, resolve RoleResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token", "Not authenticated")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				writeBearerError(w, "token verification failed", "Invalid or expired token")
				log.Warn("jwt verify failed", "err", err)
				return
			}

			if err := claims.ValidateExpiryWithLeeway(time.Now(), 0); err != nil {
				writeBearerError(w, "token expired", "Invalid or expired token")
				return
			}

			role := claims.Role
			if resolve != nil {
				var ok bool
				if role, ok = resolve(ctx, claims); !ok {
					writeBearerError(w, "unknown subject", "User not found")
					return
				}
			}

			// Inject into context for downstream handlers.
			ctx = contextWithAuth(ctx, claims, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAuth(ctx context.Context, c jwtx.Claims, role string) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyRole, role)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750 challenge plus the detail body the Flux API sends.
func writeBearerError(w http.ResponseWriter, desc, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteDetail(w, http.StatusUnauthorized, detail)
}
