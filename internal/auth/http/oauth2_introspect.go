package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
)

// IntrospectHandler serves POST /v1/oauth2/introspect following RFC 7662.
// Tokens that fail verification are reported as inactive rather than as
// an error.
type IntrospectHandler struct {
	Auth *service.AuthorizationService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Introspection Endpoint
//	@Description	Introspects an access token (RFC 7662). Only trusted clients may call it.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		BasicAuth
//	@Param			token			formData	string							true	"The token to introspect"
//	@Param			token_type_hint	formData	string							false	"Ignored; only access tokens exist"
//	@Success		200				{object}	authsdk.IntrospectionResponse	"Token introspection result"
//	@Failure		400				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Router			/v1/oauth2/introspect [post].
func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireForm(w, r) {
		return
	}

	caller, ok := requireClient(w, r)
	if !ok {
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		authsdk.ErrInvalidRequest.WithDescription("token is required").WriteError(w)
		return
	}

	claims, err := h.Auth.Introspect(r.Context(), caller, token)
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectionResponse{Active: false})
		return
	case err != nil:
		writeServiceError(w, r, "introspection", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, introspectionResponse(claims))
}

func introspectionResponse(c jwtx.Claims) authsdk.IntrospectionResponse {
	resp := authsdk.IntrospectionResponse{
		Active:      true,
		Scope:       strings.Join(c.Scopes, " "),
		ClientID:    c.ClientID,
		TokenType:   "bearer",
		Sub:         c.Subject,
		Iss:         c.Issuer,
		Jti:         c.ID,
		Authorities: c.Authorities,
	}
	if c.ExpiresAt != nil {
		resp.Exp = c.ExpiresAt.Unix()
	}
	if c.IssuedAt != nil {
		resp.Iat = c.IssuedAt.Unix()
	}
	return resp
}
