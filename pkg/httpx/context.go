package httpx

import (
	"context"

	"github.com/aussiebroadwan/flux/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyRole   ctxKey = "role"
	CtxKeyClaims ctxKey = "claims"
)

// UserIDFromContext returns the authenticated subject, or "".
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyUserID).(string)
	return v
}

// ClaimsFromContext returns the verified token claims.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

func roleFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyRole).(string)
	return v
}
