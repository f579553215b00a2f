package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// RequirePolicy admits the request only when the caller in the context
// satisfies p. Anonymous callers are challenged with 401, authenticated
// ones get 403.
func RequirePolicy(p *policy.Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := SubjectFromContext(r.Context())
			if p.Allow(sub) {
				next.ServeHTTP(w, r)
				return
			}

			slogx.FromContext(r.Context()).Info("access denied", "policy", p.String(), "anonymous", sub.Anonymous)

			if sub.Anonymous {
				writeBearerError(w, "", "")
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
			WriteError(w, http.StatusForbidden, "access_denied", "access is denied")
		})
	}
}
