package http

import (
	"net/http"

	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
)

// TokenKeyHandler serves GET /oauth/token_key. It must run behind
// httpx.ClientAuthentication so the caller is known.
//
//	@Summary		Token verification key
//	@Description	Returns the PEM encoded public key of the active signing key. Open to anonymous callers and trusted clients; other authenticated clients are refused.
//	@Tags			OAuth2
//	@Produce		json
//	@Security		BasicAuth
//	@Success		200	{object}	authsdk.TokenKeyResponse	"alg, value"
//	@Failure		401	{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		403	{object}	authsdk.ErrorResponse		"error, error_description"
//	@Router			/oauth/token_key [get].
func TokenKeyHandler(auth *service.AuthorizationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := auth.TokenKey(r.Context(), httpx.SubjectFromContext(r.Context()))
		if err != nil {
			writeServiceError(w, r, "token key", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenKeyResponse{Alg: key.Alg, Value: key.Value})
	}
}
