package http

import (
	"net/http"

	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
)

// CheckTokenHandler serves /oauth/check_token, the decoding endpoint
// resource servers call with their own client credentials. Unlike
// introspection it reports a bad token as 400 invalid_token.
type CheckTokenHandler struct {
	Auth *service.AuthorizationService
}

// ServeHTTP godoc
//
//	@Summary		Check token
//	@Description	Decodes and verifies an access token for a trusted client.
//	@Tags			OAuth2
//	@Produce		json
//	@Security		BasicAuth
//	@Param			token	query		string						true	"The access token"
//	@Success		200		{object}	authsdk.CheckTokenResponse	"decoded claims"
//	@Failure		400		{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		401		{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		403		{object}	authsdk.ErrorResponse		"error, error_description"
//	@Router			/oauth/check_token [get]
//	@Router			/oauth/check_token [post].
func (h *CheckTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireForm(w, r) {
		return
	}

	caller, ok := requireClient(w, r)
	if !ok {
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		authsdk.ErrInvalidRequest.WithDescription("token is required").WriteError(w)
		return
	}

	claims, err := h.Auth.Introspect(r.Context(), caller, token)
	if err != nil {
		writeServiceError(w, r, "check token", err)
		return
	}

	resp := authsdk.CheckTokenResponse{
		Active:      true,
		ClientID:    claims.ClientID,
		Subject:     claims.Subject,
		Scope:       claims.Scopes,
		Authorities: claims.Authorities,
		Issuer:      claims.Issuer,
		JTI:         claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Unix()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
