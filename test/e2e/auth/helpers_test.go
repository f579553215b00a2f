package auth_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tokensmith/internal/auth/app"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

/*
 * Common constants and helper functions for the authorization server
 * end-to-end tests. Each test runs the full application (SQLite store,
 * persistent keys) behind a real HTTP listener and talks to it through
 * the SDK.
 */

const (
	testIssuer    = "tokensmith-e2e"
	trustedID     = "trusted"
	trustedSecret = "e2e-trusted-secret"
)

var trusted = authsdk.Credentials{ClientID: trustedID, ClientSecret: trustedSecret}

type authServer struct {
	baseURL string
	cfg     app.Config
	app     *app.Application
	server  *httptest.Server
}

// setupAuthServer starts the server with relaxed rate limits so tests can
// make many rapid requests.
func setupAuthServer(t *testing.T) *authServer {
	t.Helper()

	t.Setenv("RATELIMIT_STRICT_REQUESTS", "1000")
	t.Setenv("RATELIMIT_STRICT_BURST", "1000")
	t.Setenv("RATELIMIT_MODERATE_REQUESTS", "1000")
	t.Setenv("RATELIMIT_MODERATE_BURST", "1000")

	return startAuthServer(t, e2eConfig(t))
}

// setupAuthServerWithDefaultRateLimits keeps the production limits, for
// testing that rate limiting actually works.
func setupAuthServerWithDefaultRateLimits(t *testing.T) *authServer {
	t.Helper()
	return startAuthServer(t, e2eConfig(t))
}

func e2eConfig(t *testing.T) app.Config {
	t.Helper()
	dir := t.TempDir()

	masterKey := filepath.Join(dir, "master.key")
	require.NoError(t, os.WriteFile(masterKey, []byte("e2e-master-key-material"), 0o600))

	return app.Config{
		Issuer:               testIssuer,
		KeySource:            app.KeySourcePersistent,
		Algorithm:            "EdDSA",
		KeyOverlap:           time.Hour,
		MasterKeyPath:        masterKey,
		TokenValidity:        time.Hour,
		StoreDriver:          app.StoreSQLite,
		DatabaseFile:         filepath.Join(dir, "auth.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		CacheDriver:          "memory",
		CacheTTL:             time.Minute,
		TrustedClientID:      trustedID,
		TrustedClientSecret:  trustedSecret,
		TrustedClientScopes:  []string{"read", "write"},
		IntrospectPolicy:     "hasAuthority('ROLE_TRUSTED_CLIENT')",
		TokenKeyPolicy:       "isAnonymous() or hasAuthority('ROLE_TRUSTED_CLIENT')",
		Env:                  "test",
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func startAuthServer(t *testing.T, cfg app.Config) *authServer {
	t.Helper()

	defaults := [...]httpx.RateLimitConfig{httpx.StrictLimit, httpx.ModerateLimit, httpx.LenientLimit, httpx.PublicLimit}
	httpx.LoadRateLimitsFromEnv()
	t.Cleanup(func() {
		httpx.StrictLimit, httpx.ModerateLimit, httpx.LenientLimit, httpx.PublicLimit =
			defaults[0], defaults[1], defaults[2], defaults[3]
	})

	s := &authServer{cfg: cfg}
	s.start(t)
	return s
}

func (s *authServer) start(t *testing.T) {
	t.Helper()

	a, err := app.New(s.cfg, slogx.Discard())
	require.NoError(t, err)

	s.app = a
	s.server = httptest.NewServer(a.Handler())
	s.baseURL = s.server.URL

	t.Cleanup(s.stop)
}

func (s *authServer) stop() {
	if s.server == nil {
		return
	}
	s.server.Close()
	_ = s.app.Shutdown()
	s.server = nil
}

// restart stops the server and starts a new process over the same
// database, pepper and master key.
func (s *authServer) restart(t *testing.T) {
	t.Helper()
	s.stop()
	s.start(t)
}

func (s *authServer) client() *authsdk.SDKClient {
	return authsdk.NewSDKClient(s.baseURL)
}

// adminSession authenticates as the seeded trusted client.
func adminSession(t *testing.T, client *authsdk.SDKClient, scopes ...string) *authsdk.Session {
	t.Helper()
	session, err := client.Authenticate(t.Context(), trusted, scopes)
	require.NoError(t, err, "trusted client should authenticate")
	return session
}

// createClient registers a plain client through the admin API.
func createClient(t *testing.T, session *authsdk.Session, id string, scopes ...string) authsdk.Credentials {
	t.Helper()
	resp, err := session.CreateClient(t.Context(), authsdk.CreateClientRequest{
		ID:     id,
		Name:   id,
		Scopes: scopes,
	})
	require.NoError(t, err, "client creation should succeed")
	require.Equal(t, id, resp.ClientID)
	require.NotEmpty(t, resp.ClientSecret)
	return authsdk.Credentials{ClientID: resp.ClientID, ClientSecret: resp.ClientSecret}
}

// assertTokenResponse verifies a token response has all required fields.
func assertTokenResponse(t *testing.T, resp *authsdk.TokenResponse) {
	t.Helper()
	require.NotNil(t, resp)
	require.NotEmpty(t, resp.AccessToken, "Access token should not be empty")
	require.Equal(t, "bearer", resp.TokenType, "Token type should be bearer")
	require.Positive(t, resp.ExpiresIn)
	require.NotEmpty(t, resp.JTI)
}

// assertOAuth2Error checks the error came off the wire with the given
// code and status.
func assertOAuth2Error(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var oerr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, status, oerr.StatusCode, oerr.Error())
	require.Equal(t, code, oerr.Code)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}

// assertScopeNotGranted verifies that a token does not contain specific scopes.
func assertScopeNotGranted(t *testing.T, tokenScope string, deniedScopes ...string) {
	t.Helper()
	granted := strings.Fields(tokenScope)
	for _, scope := range deniedScopes {
		require.NotContains(t, granted, scope, "Should not receive %s scope", scope)
	}
}
