package authsdk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// expiryBuffer renews tokens slightly before the server would reject them.
const expiryBuffer = 30 * time.Second

// Session holds a client_credentials token for the admin API. The grant
// has no refresh token, so an expiring session simply authenticates again.
type Session struct {
	client    *SDKClient
	creds     Credentials
	requested []string

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
	scopes      map[string]bool
}

// getValidToken returns the current token, re-authenticating if it is
// within expiryBuffer of expiring.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.accessToken != "" && time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have renewed while we waited for the lock.
	if s.accessToken != "" && time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	tokenResp, err := s.client.RequestToken(ctx, s.creds, GrantTypeClientCredentials, s.requested)
	if err != nil {
		return "", fmt.Errorf("authenticate %s: %w", s.creds.ClientID, err)
	}

	s.accessToken = tokenResp.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - expiryBuffer)
	s.scopes = parseScopes(tokenResp.Scope)
	return s.accessToken, nil
}

func parseScopes(scope string) map[string]bool {
	parts := strings.Fields(scope)
	scopes := make(map[string]bool, len(parts))
	for _, p := range parts {
		scopes[p] = true
	}
	return scopes
}

// AccessToken returns the current access token without renewing it.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// HasScope reports whether the session's token was granted scope.
func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scopes[scope]
}

func (s *Session) checkScopes(required ...string) error {
	if !s.client.CheckScopes || len(required) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, scope := range required {
		if !s.scopes[scope] {
			missing = append(missing, scope)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required scope(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
