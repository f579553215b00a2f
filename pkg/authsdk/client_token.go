package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// GrantTypeClientCredentials is the only grant the server issues tokens for.
const GrantTypeClientCredentials = "client_credentials"

// RequestToken calls POST /oauth/token with HTTP Basic client
// authentication. An empty grantType means client_credentials; an empty
// scopes list asks for every scope the client is registered with.
func (c *SDKClient) RequestToken(
	ctx context.Context,
	creds Credentials,
	grantType string,
	scopes []string,
) (*TokenResponse, error) {
	if grantType == "" {
		grantType = GrantTypeClientCredentials
	}
	data := url.Values{"grant_type": {grantType}}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth/token", strings.NewReader(data.Encode()), func(r *http.Request) {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	})
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokenResp, nil
}

// TokenKey fetches the PEM public key from GET /oauth/token_key. A nil
// creds calls anonymously.
func (c *SDKClient) TokenKey(ctx context.Context, creds *Credentials) (*TokenKeyResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/oauth/token_key", nil, basicAuth(creds))
	if err != nil {
		return nil, err
	}

	var key TokenKeyResponse
	if err := decodeJSON(resp, &key, http.StatusOK); err != nil {
		return nil, err
	}
	return &key, nil
}

// CheckToken decodes token through POST /oauth/check_token. Only trusted
// clients may call it.
func (c *SDKClient) CheckToken(ctx context.Context, creds Credentials, token string) (*CheckTokenResponse, error) {
	resp, err := c.postForm(ctx, "/oauth/check_token", url.Values{"token": {token}}, &creds)
	if err != nil {
		return nil, err
	}

	var out CheckTokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Introspect calls the RFC 7662 endpoint. Invalid tokens come back as
// {"active": false} rather than an error.
func (c *SDKClient) Introspect(ctx context.Context, creds Credentials, token string) (*IntrospectionResponse, error) {
	resp, err := c.postForm(ctx, "/v1/oauth2/introspect", url.Values{"token": {token}}, &creds)
	if err != nil {
		return nil, err
	}

	var out IntrospectionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) postForm(ctx context.Context, path string, data url.Values, creds *Credentials) (*http.Response, error) {
	auth := basicAuth(creds)
	return c.doRequest(ctx, http.MethodPost, path, strings.NewReader(data.Encode()), func(r *http.Request) {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		auth(r)
	})
}

func basicAuth(creds *Credentials) func(*http.Request) {
	return func(r *http.Request) {
		if creds != nil {
			r.SetBasicAuth(creds.ClientID, creds.ClientSecret)
		}
	}
}
