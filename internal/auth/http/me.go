package http

import (
	"net/http"

	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
)

// MeHandler godoc
//
//	@Summary		Current caller
//	@Description	Sample protected resource. Reports the client behind the bearer token as a resource server would see it.
//	@Tags			Resource
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.CallerResponse	"client_id, authorities, scopes, expires_at"
//	@Failure		401	{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/api/me [get].
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		if !ok {
			authsdk.NewOAuth2Error(http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "missing access token").WriteError(w)
			return
		}

		resp := authsdk.CallerResponse{
			ClientID:    claims.ClientID,
			Authorities: nonNil(claims.Authorities),
			Scopes:      nonNil(claims.Scopes),
		}
		if claims.ExpiresAt != nil {
			resp.ExpiresAt = claims.ExpiresAt.Unix()
		}
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}
