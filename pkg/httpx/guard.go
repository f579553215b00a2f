package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// ResourceGuard requires a valid bearer token. The verified claims and the
// caller's authorities and scopes are attached to the request context.
func ResourceGuard(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "", "")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("bearer token rejected", "err", err)
				writeBearerError(w, "invalid_token", "token verification failed")
				return
			}

			ctx := withClaims(r.Context(), claims)
			ctx = slogx.WithClient(ctx, claims.ClientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeBearerError follows RFC 6750 section 3. A request without any
// credentials gets a bare challenge and no error code.
func writeBearerError(w http.ResponseWriter, code, desc string) {
	challenge := `Bearer realm="tokensmith"`
	if code != "" {
		challenge += `, error="` + code + `", error_description="` + desc + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)

	if code == "" {
		code, desc = "unauthorized", "full authentication is required to access this resource"
	}
	WriteError(w, http.StatusUnauthorized, code, desc)
}
