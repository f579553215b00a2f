package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// TokenHandler serves POST /oauth/token and POST /v1/oauth2/token.
// Accepts application/x-www-form-urlencoded per RFC 6749.
type TokenHandler struct {
	Auth *service.AuthorizationService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues an access token for the client_credentials grant. Client credentials may be sent with HTTP Basic or as client_id/client_secret form fields.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		BasicAuth
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(client_credentials)
//	@Param			scope			formData	string					false	"Space-delimited list of scopes; empty grants every registered scope"
//	@Param			client_id		formData	string					false	"Client identifier when not using HTTP Basic"
//	@Param			client_secret	formData	string					false	"Client secret when not using HTTP Basic"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, token_type, expires_in, scope, jti"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/oauth/token [post]
//	@Router			/v1/oauth2/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireForm(w, r) {
		return
	}

	grantType := strings.TrimSpace(r.PostForm.Get("grant_type"))
	if grantType == "" {
		authsdk.ErrInvalidRequest.WithDescription("grant_type is required").WriteError(w)
		return
	}

	clientID, secret, ok := httpx.ClientCredentials(r)
	if !ok {
		authsdk.ErrInvalidClient.WithDescription("client credentials are required").WriteError(w)
		return
	}

	ctx := slogx.WithClient(r.Context(), clientID)
	tok, err := h.Auth.RequestToken(ctx, service.TokenRequest{
		ClientID:     clientID,
		ClientSecret: secret,
		GrantType:    grantType,
		Scopes:       httpx.ParseSpaceDelimitedFields(r.PostForm.Get("scope")),
	})
	if err != nil {
		writeServiceError(w, r.WithContext(ctx), "token request", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken: tok.Value,
		TokenType:   tok.TokenType,
		ExpiresIn:   int(tok.ExpiresIn.Seconds()),
		Scope:       strings.Join(tok.Scopes, " "),
		JTI:         tok.JTI,
	})
}
