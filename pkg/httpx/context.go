package httpx

import (
	"context"

	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
)

type ctxKey string

const (
	ctxKeySubject ctxKey = "subject"
	ctxKeyClaims  ctxKey = "claims"
)

// WithSubject attaches the authenticated caller to ctx.
func WithSubject(ctx context.Context, sub policy.Subject) context.Context {
	return context.WithValue(ctx, ctxKeySubject, sub)
}

// SubjectFromContext returns the caller attached by ResourceGuard or
// ClientAuthentication. Requests that passed neither are anonymous.
func SubjectFromContext(ctx context.Context) policy.Subject {
	if sub, ok := ctx.Value(ctxKeySubject).(policy.Subject); ok {
		return sub
	}
	return policy.Anonymous()
}

// ClaimsFromContext returns the verified token claims, if any.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}

func withClaims(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClaims, c)
	return WithSubject(ctx, policy.SubjectFromClaims(c))
}
