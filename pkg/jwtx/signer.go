package jwtx

import (
	"crypto"
	"fmt"

	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Signer is anything that can sign access tokens.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Public() crypto.PublicKey
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	alg    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSigner loads a private key PEM and picks the algorithm from the key
// type: RSA signs RS256, P-256 signs ES256 and Ed25519 signs EdDSA. An
// empty kid is replaced by the key's RFC 7638 thumbprint.
func NewSigner(kid string, privatePEM []byte) (Signer, error) {
	key, err := ParsePrivateKeyPEM(privatePEM)
	if err != nil {
		return nil, err
	}
	return newKeySigner(kid, key)
}

// NewSignerForAlgorithm is NewSigner but fails unless the key signs alg.
func NewSignerForAlgorithm(alg, kid string, privatePEM []byte) (Signer, error) {
	s, err := NewSigner(kid, privatePEM)
	if err != nil {
		return nil, err
	}
	if s.Alg() != alg {
		return nil, fmt.Errorf("jwtx: key signs %s, not %s", s.Alg(), alg)
	}
	return s, nil
}

func newKeySigner(kid string, key crypto.Signer) (*keySigner, error) {
	alg, err := AlgorithmForKey(key.Public())
	if err != nil {
		return nil, err
	}

	if kid == "" {
		if kid, err = Thumbprint(key.Public()); err != nil {
			return nil, err
		}
	}

	jwk, err := NewJWK(kid, alg, key.Public())
	if err != nil {
		return nil, err
	}

	return &keySigner{
		kid:    kid,
		alg:    alg,
		method: jwt.GetSigningMethod(alg),
		key:    key,
		jwk:    jwk,
	}, nil
}

func (s *keySigner) Alg() string              { return s.alg }
func (s *keySigner) KID() string              { return s.kid }
func (s *keySigner) Public() crypto.PublicKey { return s.key.Public() }
func (s *keySigner) PublicJWK() JWK           { return s.jwk }

// Sign serializes claims as a compact JWS with "kid" in the header.
func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// GenerateSigner creates a fresh key pair for alg and returns the signer
// together with the private key PEM so callers can persist it.
func GenerateSigner(alg, kid string, rsaBits int) (Signer, []byte, error) {
	var pemData []byte
	var err error

	switch alg {
	case AlgorithmRS256:
		if rsaBits == 0 {
			rsaBits = 2048
		}
		pemData, err = cryptox.GenerateRSAKey(rsaBits)
	case AlgorithmES256:
		pemData, err = cryptox.GenerateES256Key()
	case AlgorithmEdDSA:
		pemData, err = cryptox.GenerateEd25519Key()
	default:
		return nil, nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, ES256, EdDSA)", alg)
	}
	if err != nil {
		return nil, nil, err
	}

	if kid == "" {
		if kid, err = NewKeyID(); err != nil {
			return nil, nil, err
		}
	}

	signer, err := NewSignerForAlgorithm(alg, kid, pemData)
	if err != nil {
		return nil, nil, err
	}
	return signer, pemData, nil
}

// NewKeyID returns a random key identifier, "tks-{128-bit token}".
func NewKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key id: %w", err)
	}
	return "tks-" + token, nil
}
