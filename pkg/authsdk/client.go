package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to a tokensmith authorization server. It covers the
// public and client-authenticated endpoints and creates Sessions for the
// bearer protected admin API.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// CheckScopes makes Sessions refuse admin calls locally when the token
	// lacks the scope the server will demand. Tests switch it off to
	// exercise the server side checks.
	CheckScopes bool
}

// NewSDKClient returns a client for baseURL with scope checking enabled.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		CheckScopes: true,
	}
}

// Credentials identify a registered client.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Authenticate runs the client_credentials grant and returns a Session
// that re-authenticates whenever its token is about to expire.
func (c *SDKClient) Authenticate(ctx context.Context, creds Credentials, scopes []string) (*Session, error) {
	s := &Session{client: c, creds: creds, requested: scopes}
	if _, err := s.getValidToken(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
