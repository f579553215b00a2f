package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Verify returns exactly one of these and never
// partial claims.
var (
	ErrMalformed        = errors.New("jwtx: malformed token")
	ErrInvalidSignature = errors.New("jwtx: invalid signature")
	ErrExpired          = errors.New("jwtx: token expired")
)

// Verifier validates a token and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// Issuer signs claims into a token.
type Issuer interface {
	Issue(claims Claims) (string, error)
}

// Clock is the single wall-clock source used for expiry decisions.
type Clock func() time.Time

// CodecOptions tune verification.
type CodecOptions struct {
	// Issuer, when set, must equal the "iss" claim of verified tokens.
	Issuer string

	// ClockSkew widens the expiry window. Zero means a token is expired
	// at exactly its "exp".
	ClockSkew time.Duration

	// Clock defaults to time.Now.
	Clock Clock
}

// Codec issues tokens with the active key of a KeyManager and verifies
// tokens against any key still inside its overlap period.
type Codec struct {
	signer func() Signer
	keys   KeyLookup
	issuer string
	skew   time.Duration
	now    Clock
	parser *jwt.Parser
}

// NewCodec returns a Codec that can both issue and verify.
func NewCodec(km *KeyManager, opts CodecOptions) (*Codec, error) {
	if km == nil {
		return nil, ErrNoSigner
	}
	c, err := NewVerifier(km, opts)
	if err != nil {
		return nil, err
	}
	c.signer = km.Active
	return c, nil
}

// NewVerifier returns a verify-only Codec, e.g. for a resource server
// holding a KeySet fetched from the JWKS endpoint.
func NewVerifier(keys KeyLookup, opts CodecOptions) (*Codec, error) {
	if keys == nil {
		return nil, errors.New("jwtx: key lookup is required")
	}
	if opts.ClockSkew < 0 {
		return nil, fmt.Errorf("jwtx: negative clock skew %s", opts.ClockSkew)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Codec{
		signer: func() Signer { return nil },
		keys:   keys,
		issuer: opts.Issuer,
		skew:   opts.ClockSkew,
		now:    opts.Clock,
		// Time based claims are checked below with our own clock.
		parser: jwt.NewParser(
			jwt.WithValidMethods(supportedAlgorithms),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue signs claims with the active key.
func (c *Codec) Issue(claims Claims) (string, error) {
	s := c.signer()
	if s == nil {
		return "", ErrNoSigner
	}
	if claims.ExpiresAt == nil {
		return "", errors.New("jwtx: claims without exp")
	}
	if claims.IssuedAt != nil && !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return "", errors.New("jwtx: exp must be after iat")
	}
	return s.Sign(claims)
}

// Verify decodes token, checks its signature and expiry and returns the
// claims. It fails closed with ErrMalformed, ErrInvalidSignature or
// ErrExpired.
func (c *Codec) Verify(token string) (Claims, error) {
	now := c.now()

	var claims Claims
	_, err := c.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}
		pub, alg, err := c.keys.VerificationKey(kid, now)
		if err != nil {
			return nil, err
		}
		if t.Method.Alg() != alg {
			return nil, fmt.Errorf("jwtx: token alg %s does not match key alg %s", t.Method.Alg(), alg)
		}
		return pub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Claims{}, ErrMalformed
		}
		return Claims{}, ErrInvalidSignature
	}

	if err := c.validate(&claims, now); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c *Codec) validate(claims *Claims, now time.Time) error {
	if claims.ExpiresAt == nil {
		return ErrMalformed
	}
	exp := claims.ExpiresAt.Time
	if claims.IssuedAt != nil && !exp.After(claims.IssuedAt.Time) {
		return ErrMalformed
	}

	// A foreign issuer signed with one of our keys is treated like a bad
	// signature rather than leaking which check failed.
	if c.issuer != "" && claims.Issuer != c.issuer {
		return ErrInvalidSignature
	}

	if !now.Before(exp.Add(c.skew)) {
		return ErrExpired
	}
	if claims.NotBefore != nil && now.Add(c.skew).Before(claims.NotBefore.Time) {
		return ErrExpired
	}
	if claims.IssuedAt != nil && now.Add(c.skew).Before(claims.IssuedAt.Time) {
		return ErrExpired
	}
	return nil
}
