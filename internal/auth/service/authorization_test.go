package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/stretchr/testify/require"
)

func TestRequestToken_TrustedClient(t *testing.T) {
	f := newFixture(t)

	tok := f.issue(t, "trusted", "secret", "read", "write")
	require.Equal(t, domain.TokenTypeBearer, tok.TokenType)
	require.Equal(t, testValidity, tok.ExpiresIn)
	require.Equal(t, []string{"read", "write"}, tok.Scopes)
	require.True(t, f.clock.Now().Add(testValidity).Equal(tok.ExpiresAt))
	require.NotEmpty(t, tok.JTI)

	claims, err := f.codec.Verify(tok.Value)
	require.NoError(t, err)
	require.Equal(t, "trusted", claims.Subject)
	require.Equal(t, "trusted", claims.ClientID)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Equal(t, tok.JTI, claims.ID)
	require.Equal(t, []string{domain.AuthorityTrustedClient}, claims.Authorities)
	require.Equal(t, []string{"read", "write"}, claims.Scopes)
	require.Equal(t, testValidity, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	out := f.observer.last(t)
	require.Equal(t, GrantTokenIssued, out.State)
	require.Equal(t, domain.GrantClientCredentials, out.GrantType)
	require.NoError(t, out.Err)
}

func TestRequestToken_Scopes(t *testing.T) {
	f := newFixture(t)

	t.Run("empty request grants every client scope", func(t *testing.T) {
		tok := f.issue(t, "trusted", "secret")
		require.Equal(t, []string{"read", "write"}, tok.Scopes)
	})

	t.Run("duplicates are removed in request order", func(t *testing.T) {
		tok := f.issue(t, "trusted", "secret", "write", "read", "write")
		require.Equal(t, []string{"write", "read"}, tok.Scopes)
	})

	t.Run("subset", func(t *testing.T) {
		tok := f.issue(t, "trusted", "secret", "read")
		require.Equal(t, []string{"read"}, tok.Scopes)
	})
}

func TestRequestToken_ClientValidity(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, domain.Client{
		ID:                  "short",
		Name:                "short lived",
		GrantTypes:          []string{domain.GrantClientCredentials},
		Scopes:              []string{"read"},
		AccessTokenValidity: 5 * time.Minute,
	}, "s3cret")

	tok := f.issue(t, "short", "s3cret")
	require.Equal(t, 5*time.Minute, tok.ExpiresIn)
}

func TestRequestToken_Rejections(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, domain.Client{
		ID:         "web",
		Name:       "web app",
		GrantTypes: []string{"authorization_code"},
		Scopes:     []string{"read"},
	}, "web-secret")
	f.addClient(t, domain.Client{
		ID:         "scopeless",
		Name:       "no scopes",
		GrantTypes: []string{domain.GrantClientCredentials},
	}, "pw")

	tests := []struct {
		name string
		req  TokenRequest
		want error
	}{
		{
			name: "wrong secret",
			req:  TokenRequest{ClientID: "trusted", ClientSecret: "nope", GrantType: domain.GrantClientCredentials},
			want: ErrInvalidClient,
		},
		{
			name: "unknown client",
			req:  TokenRequest{ClientID: "ghost", ClientSecret: "secret", GrantType: domain.GrantClientCredentials},
			want: ErrInvalidClient,
		},
		{
			name: "missing client id",
			req:  TokenRequest{ClientSecret: "secret", GrantType: domain.GrantClientCredentials},
			want: ErrInvalidClient,
		},
		{
			name: "grant not registered for client",
			req:  TokenRequest{ClientID: "trusted", ClientSecret: "secret", GrantType: "authorization_code"},
			want: ErrUnauthorizedGrant,
		},
		{
			name: "grant registered but not served",
			req:  TokenRequest{ClientID: "web", ClientSecret: "web-secret", GrantType: "authorization_code"},
			want: ErrUnsupportedGrantType,
		},
		{
			name: "scope outside registration",
			req:  TokenRequest{ClientID: "trusted", ClientSecret: "secret", GrantType: domain.GrantClientCredentials, Scopes: []string{"read", "admin"}},
			want: ErrInvalidScope,
		},
		{
			name: "client without scopes",
			req:  TokenRequest{ClientID: "scopeless", ClientSecret: "pw", GrantType: domain.GrantClientCredentials},
			want: ErrInvalidScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := f.auth.RequestToken(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			require.Nil(t, tok)

			out := f.observer.last(t)
			require.Equal(t, GrantRejected, out.State)
			require.ErrorIs(t, out.Err, tt.want)
		})
	}
}

func TestVerify_Expiry(t *testing.T) {
	f := newFixture(t)
	tok := f.issue(t, "trusted", "secret")

	f.clock.Advance(testValidity - time.Second)
	_, err := f.codec.Verify(tok.Value)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.codec.Verify(tok.Value)
	require.ErrorIs(t, err, jwtx.ErrExpired)

	f.clock.Advance(time.Hour)
	_, err = f.codec.Verify(tok.Value)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestIntrospect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.issue(t, "trusted", "secret", "read")

	trusted, err := f.auth.AuthenticateClient(ctx, "trusted", "secret")
	require.NoError(t, err)

	t.Run("trusted caller gets claims", func(t *testing.T) {
		claims, err := f.auth.Introspect(ctx, trusted, tok.Value)
		require.NoError(t, err)
		require.Equal(t, "trusted", claims.ClientID)
		require.Equal(t, []string{"read"}, claims.Scopes)
	})

	t.Run("anonymous caller is refused even with a valid token", func(t *testing.T) {
		_, err := f.auth.Introspect(ctx, policy.Anonymous(), tok.Value)
		require.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("untrusted caller is refused", func(t *testing.T) {
		caller := policy.Subject{Name: "other", Authorities: []string{"ROLE_CLIENT"}}
		_, err := f.auth.Introspect(ctx, caller, tok.Value)
		require.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("malformed token", func(t *testing.T) {
		claims, err := f.auth.Introspect(ctx, trusted, "not-a-jwt")
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, jwtx.ErrMalformed)
		require.Empty(t, claims.ClientID)
	})

	t.Run("token signed by a foreign key", func(t *testing.T) {
		other, err := jwtx.NewEphemeralKeyManager(jwtx.AlgorithmES256, 0)
		require.NoError(t, err)
		foreign, err := jwtx.NewCodec(other, jwtx.CodecOptions{Issuer: testIssuer})
		require.NoError(t, err)

		now := f.clock.Now()
		forged, err := foreign.Issue(jwtx.NewClientClaims(testIssuer, "trusted", nil, []string{"read"}, now, time.Hour))
		require.NoError(t, err)

		_, err = f.auth.Introspect(ctx, trusted, forged)
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, jwtx.ErrInvalidSignature)
	})

	t.Run("custom policy", func(t *testing.T) {
		svc := *f.auth
		svc.IntrospectPolicy = policy.MustCompile("hasScope('write')")

		_, err := svc.Introspect(ctx, trusted, tok.Value)
		require.NoError(t, err)

		reader := policy.Subject{Name: "reader", Scopes: []string{"read"}}
		_, err = svc.Introspect(ctx, reader, tok.Value)
		require.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestTokenKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		caller policy.Subject
		want   error
	}{
		{name: "anonymous", caller: policy.Anonymous()},
		{name: "trusted client", caller: policy.Subject{Name: "trusted", Authorities: []string{domain.AuthorityTrustedClient}}},
		{name: "authenticated untrusted client", caller: policy.Subject{Name: "other", Authorities: []string{"ROLE_CLIENT"}}, want: ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := f.auth.TokenKey(ctx, tt.caller)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			require.Equal(t, jwtx.AlgorithmES256, key.Alg)

			pub, err := jwtx.ParsePublicKeyPEM([]byte(key.Value))
			require.NoError(t, err)
			require.True(t, jwtx.SamePublicKey(f.keys.Active().Public(), pub))
		})
	}
}

func TestAuthenticateClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.auth.AuthenticateClient(ctx, "trusted", "secret")
	require.NoError(t, err)
	require.False(t, sub.Anonymous)
	require.Equal(t, "trusted", sub.Name)
	require.True(t, sub.HasAuthority(domain.AuthorityTrustedClient))
	require.True(t, sub.HasScope("write"))

	_, err = f.auth.AuthenticateClient(ctx, "trusted", "wrong")
	require.ErrorIs(t, err, ErrInvalidClient)
}

// failingClients simulates a broken store.
type failingClients struct{}

var errStoreDown = errors.New("store down")

func (failingClients) FindClient(context.Context, string) (domain.Client, error) {
	return domain.Client{}, errStoreDown
}

func TestRequestToken_StoreFailure(t *testing.T) {
	f := newFixture(t)
	svc := *f.auth
	svc.Clients = failingClients{}

	_, err := svc.RequestToken(context.Background(), TokenRequest{
		ClientID:     "trusted",
		ClientSecret: "secret",
		GrantType:    domain.GrantClientCredentials,
	})
	require.ErrorIs(t, err, errStoreDown)
	require.NotErrorIs(t, err, ErrInvalidClient)
}

func TestDedupe(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, dedupe([]string{" a", "b", "", "a"}))
	require.Empty(t, dedupe(nil))
}

func TestGrantState_String(t *testing.T) {
	require.Equal(t, "received", GrantReceived.String())
	require.Equal(t, "token_issued", GrantTokenIssued.String())
	require.Equal(t, "rejected", GrantRejected.String())
	require.Equal(t, "unknown", GrantState(42).String())
}
