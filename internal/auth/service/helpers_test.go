package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "tokensmith-test"
	testValidity = 30 * time.Minute
)

// testClock is a settable clock shared by the service and the codec.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_760_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingObserver keeps every grant outcome.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []GrantOutcome
}

func (o *recordingObserver) ObserveGrant(_ context.Context, out GrantOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

func (o *recordingObserver) last(t *testing.T) GrantOutcome {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.outcomes)
	return o.outcomes[len(o.outcomes)-1]
}

type fixture struct {
	store    *memory.Store
	hasher   *cryptox.SecretHasher
	keys     *jwtx.KeyManager
	codec    *jwtx.Codec
	clock    *testClock
	observer *recordingObserver
	clients  *ClientService
	auth     *AuthorizationService
}

func fastHasher(t *testing.T) *cryptox.SecretHasher {
	t.Helper()
	h, err := cryptox.NewSecretHasherWithParams("test-pepper", cryptox.HashParams{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
	})
	require.NoError(t, err)
	return h
}

// newFixture wires the services over an in-memory store with the trusted
// client seeded as trusted/secret.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.AlgorithmES256, 0)
	require.NoError(t, err)

	clock := newTestClock()
	codec, err := jwtx.NewCodec(km, jwtx.CodecOptions{Issuer: testIssuer, Clock: clock.Now})
	require.NoError(t, err)

	f := &fixture{
		store:    memory.NewStore(),
		hasher:   fastHasher(t),
		keys:     km,
		codec:    codec,
		clock:    clock,
		observer: &recordingObserver{},
	}
	f.clients = &ClientService{Clients: f.store.Clients(), Hasher: f.hasher, Clock: clock.Now}
	f.auth = &AuthorizationService{
		Clients:         f.store.Clients(),
		Secrets:         f.hasher,
		Tokens:          codec,
		Verifier:        codec,
		Keys:            km,
		Issuer:          testIssuer,
		DefaultValidity: testValidity,
		Observer:        f.observer,
		Clock:           clock.Now,
	}

	_, err = f.clients.SeedClient(context.Background(), NewClient{
		ID:          "trusted",
		Name:        "Trusted client",
		Authorities: []string{domain.AuthorityTrustedClient},
		Scopes:      []string{"read", "write"},
	}, "secret")
	require.NoError(t, err)

	return f
}

// addClient registers a client with a known secret.
func (f *fixture) addClient(t *testing.T, c domain.Client, secret string) {
	t.Helper()
	hash, err := f.hasher.Hash(secret)
	require.NoError(t, err)
	c.SecretHash = hash
	c.CreatedAt = f.clock.Now()
	c.UpdatedAt = c.CreatedAt
	require.NoError(t, f.store.Clients().CreateClient(context.Background(), c))
}

func (f *fixture) issue(t *testing.T, id, secret string, scopes ...string) *domain.AccessToken {
	t.Helper()
	tok, err := f.auth.RequestToken(context.Background(), TokenRequest{
		ClientID:     id,
		ClientSecret: secret,
		GrantType:    domain.GrantClientCredentials,
		Scopes:       scopes,
	})
	require.NoError(t, err)
	return tok
}
