package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// Default access policies.
const (
	DefaultIntrospectPolicy = "hasAuthority('ROLE_TRUSTED_CLIENT')"
	DefaultTokenKeyPolicy   = "isAnonymous() or hasAuthority('ROLE_TRUSTED_CLIENT')"
)

// SecretVerifier checks client secrets against stored hashes.
// *cryptox.SecretHasher implements it.
type SecretVerifier interface {
	Verify(secret, encoded string) error

	// VerifyDummy costs as much as Verify and always fails.
	VerifyDummy(secret string) error
}

// PublicKeySource exposes the active verification key.
// *jwtx.KeyManager implements it.
type PublicKeySource interface {
	PublicKeyPEM() (alg, value string, err error)
}

// AuthorizationService authenticates clients, issues access tokens and
// verifies them for trusted callers.
type AuthorizationService struct {
	Clients  store.ClientRepository
	Secrets  SecretVerifier
	Tokens   jwtx.Issuer
	Verifier jwtx.Verifier
	Keys     PublicKeySource

	Issuer          string
	DefaultValidity time.Duration // falls back to jwtx.DefaultAccessTokenTTL

	// IntrospectPolicy and TokenKeyPolicy default to DefaultIntrospectPolicy
	// and DefaultTokenKeyPolicy.
	IntrospectPolicy *policy.Policy
	TokenKeyPolicy   *policy.Policy

	Observer GrantObserver
	Clock    func() time.Time
}

// TokenRequest is a token endpoint request after transport decoding.
type TokenRequest struct {
	ClientID     string
	ClientSecret string
	GrantType    string
	Scopes       []string
}

var (
	defaultIntrospectPolicy = policy.MustCompile(DefaultIntrospectPolicy)
	defaultTokenKeyPolicy   = policy.MustCompile(DefaultTokenKeyPolicy)
)

// RequestToken runs the client_credentials flow:
// received, client authenticated, grant validated, token issued. Any
// failing step rejects the request with one of the token flow errors or a
// wrapped infrastructure error.
func (s *AuthorizationService) RequestToken(ctx context.Context, req TokenRequest) (*domain.AccessToken, error) {
	run := newGrantRun(ctx, s.Observer, req.GrantType, req.ClientID)

	client, err := s.authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, run.reject(err)
	}
	run.advance(GrantClientAuthenticated)

	if !client.AllowsGrant(req.GrantType) {
		return nil, run.reject(ErrUnauthorizedGrant)
	}
	if req.GrantType != domain.GrantClientCredentials {
		return nil, run.reject(ErrUnsupportedGrantType)
	}

	scopes := dedupe(req.Scopes)
	if len(scopes) == 0 {
		scopes = dedupe(client.Scopes)
	} else if bad, ok := client.AllowsScopes(scopes); !ok {
		return nil, run.reject(fmt.Errorf("%w: %s", ErrInvalidScope, bad))
	}
	if len(scopes) == 0 {
		return nil, run.reject(ErrInvalidScope)
	}
	run.advance(GrantValidated)

	now := s.now()
	validity := client.TokenValidity(s.defaultValidity())
	claims := jwtx.NewClientClaims(s.Issuer, client.ID, client.Authorities, scopes, now, validity)

	value, err := s.Tokens.Issue(claims)
	if err != nil {
		return nil, run.reject(fmt.Errorf("issue token: %w", err))
	}
	run.advance(GrantTokenIssued)

	return &domain.AccessToken{
		Value:     value,
		TokenType: domain.TokenTypeBearer,
		ExpiresIn: validity,
		ExpiresAt: claims.ExpiresAt.Time,
		Scopes:    scopes,
		JTI:       claims.ID,
	}, nil
}

// AuthenticateClient checks client credentials and returns the caller
// subject used by policy checks.
func (s *AuthorizationService) AuthenticateClient(ctx context.Context, clientID, secret string) (policy.Subject, error) {
	client, err := s.authenticate(ctx, clientID, secret)
	if err != nil {
		return policy.Subject{}, err
	}
	return policy.Subject{
		Name:        client.ID,
		Authorities: slices.Clone(client.Authorities),
		Scopes:      slices.Clone(client.Scopes),
	}, nil
}

// Introspect verifies token on behalf of a trusted caller. Anonymous
// callers are always refused, whatever the token.
func (s *AuthorizationService) Introspect(ctx context.Context, caller policy.Subject, token string) (jwtx.Claims, error) {
	l := slogx.FromContext(ctx)

	p := s.IntrospectPolicy
	if p == nil {
		p = defaultIntrospectPolicy
	}
	if caller.Anonymous || !p.Allow(caller) {
		l.InfoContext(ctx, "introspection denied", "caller", caller.Name, "anonymous", caller.Anonymous)
		return jwtx.Claims{}, ErrAccessDenied
	}

	claims, err := s.Verifier.Verify(token)
	if err != nil {
		l.DebugContext(ctx, "introspected token rejected", "caller", caller.Name, "reason", err)
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// TokenKey returns the PEM public key of the active signer.
func (s *AuthorizationService) TokenKey(ctx context.Context, caller policy.Subject) (domain.TokenKey, error) {
	p := s.TokenKeyPolicy
	if p == nil {
		p = defaultTokenKeyPolicy
	}
	if !p.Allow(caller) {
		slogx.FromContext(ctx).InfoContext(ctx, "token key denied", "caller", caller.Name)
		return domain.TokenKey{}, ErrAccessDenied
	}

	alg, value, err := s.Keys.PublicKeyPEM()
	if err != nil {
		return domain.TokenKey{}, fmt.Errorf("token key: %w", err)
	}
	return domain.TokenKey{Alg: alg, Value: value}, nil
}

// authenticate looks the client up and verifies its secret. Unknown
// clients and clients without a secret still pay for one hash
// verification.
func (s *AuthorizationService) authenticate(ctx context.Context, clientID, secret string) (domain.Client, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(clientID) == "" {
		_ = s.Secrets.VerifyDummy(secret)
		return domain.Client{}, ErrInvalidClient
	}

	client, err := s.Clients.FindClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.Secrets.VerifyDummy(secret)
			l.InfoContext(ctx, "unknown client", "client_id", clientID)
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, fmt.Errorf("find client: %w", err)
	}

	if client.SecretHash == "" {
		_ = s.Secrets.VerifyDummy(secret)
		l.WarnContext(ctx, "client has no secret", "client_id", clientID)
		return domain.Client{}, ErrInvalidClient
	}
	if err := s.Secrets.Verify(secret, client.SecretHash); err != nil {
		l.InfoContext(ctx, "client secret verification failed", "client_id", clientID)
		return domain.Client{}, ErrInvalidClient
	}
	return client, nil
}

func (s *AuthorizationService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *AuthorizationService) defaultValidity() time.Duration {
	if s.DefaultValidity > 0 {
		return s.DefaultValidity
	}
	return jwtx.DefaultAccessTokenTTL
}

// dedupe drops blanks and repeats, keeping the first occurrence order.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
