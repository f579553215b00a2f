package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// ClientAuthenticator checks client credentials and returns the caller.
type ClientAuthenticator interface {
	AuthenticateClient(ctx context.Context, clientID, secret string) (policy.Subject, error)
}

// ClientAuthentication authenticates callers presenting HTTP Basic client
// credentials. Requests without credentials continue as anonymous so that
// the route's policy decides; wrong credentials are rejected outright.
func ClientAuthentication(auth ClientAuthenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, secret, ok := r.BasicAuth()
			if !ok {
				next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), policy.Anonymous())))
				return
			}

			sub, err := auth.AuthenticateClient(r.Context(), id, secret)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("client authentication failed", "client_id", id, "err", err)
				WriteBasicChallenge(w)
				WriteError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
				return
			}

			ctx := WithSubject(r.Context(), sub)
			ctx = slogx.WithClient(ctx, sub.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientCredentials reads client_id and client_secret from HTTP Basic or,
// failing that, from the form body (RFC 6749 section 2.3.1).
func ClientCredentials(r *http.Request) (id, secret string, ok bool) {
	if id, secret, ok = r.BasicAuth(); ok {
		return id, secret, true
	}
	id = r.PostFormValue("client_id")
	secret = r.PostFormValue("client_secret")
	return id, secret, id != ""
}

// WriteBasicChallenge sets the Basic challenge used for client auth.
func WriteBasicChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="oauth2/client"`)
}
