package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	authhttp "github.com/aussiebroadwan/tokensmith/internal/auth/http"
	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

const testIssuer = "tokensmith-test"

type testServer struct {
	router  *authhttp.Router
	keys    *jwtx.KeyManager
	store   *memory.Store
	clients *service.ClientService
	metrics *authhttp.Metrics
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

// newTestServer wires the router over an in-memory store with the trusted
// client seeded as trusted/secret and a plain client reader/<generated>.
func newTestServer(t *testing.T) (*testServer, string) {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.AlgorithmES256, 0)
	require.NoError(t, err)

	codec, err := jwtx.NewCodec(km, jwtx.CodecOptions{Issuer: testIssuer})
	require.NoError(t, err)

	hasher, err := cryptox.NewSecretHasherWithParams("test-pepper", cryptox.HashParams{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
	})
	require.NoError(t, err)

	metrics, err := authhttp.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	verifier := metrics.Verifier(codec)

	st := memory.NewStore()
	clients := &service.ClientService{Clients: st.Clients(), Hasher: hasher}
	auth := &service.AuthorizationService{
		Clients:  st.Clients(),
		Secrets:  hasher,
		Tokens:   codec,
		Verifier: verifier,
		Keys:     km,
		Issuer:   testIssuer,
		Observer: metrics,
	}

	ctx := context.Background()
	_, err = clients.SeedClient(ctx, service.NewClient{
		ID:          "trusted",
		Authorities: []string{domain.AuthorityTrustedClient},
		Scopes:      []string{"read", "write"},
	}, "secret")
	require.NoError(t, err)

	_, readerSecret, err := clients.CreateClient(ctx, service.NewClient{
		ID:     "reader",
		Scopes: []string{"read"},
	})
	require.NoError(t, err)

	r := authhttp.NewRouter(km, verifier, "test", st, metrics, slogx.Discard())
	r.AuthorizationService = auth
	r.ClientService = clients
	r.KeyRotationService = &service.KeyRotationService{KeyManager: km}
	r.ApplyRoutes()

	return &testServer{
		router:  r,
		keys:    km,
		store:   st,
		clients: clients,
		metrics: metrics,
	}, readerSecret
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// token runs the client_credentials grant and fails the test on error.
func (s *testServer) token(t *testing.T, id, secret string, scopes ...string) string {
	t.Helper()

	form := url.Values{"grant_type": {"client_credentials"}}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	req := formRequest(http.MethodPost, "/oauth/token", form)
	req.SetBasicAuth(id, secret)

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp authsdk.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) authsdk.ErrorResponse {
	t.Helper()
	var resp authsdk.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}
