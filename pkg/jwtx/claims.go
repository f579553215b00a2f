package jwtx

import (
	"slices"
	"time"

	"github.com/aussiebroadwan/tokensmith/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is used when neither the client nor the server
// configuration provide a validity.
const DefaultAccessTokenTTL = time.Hour

// Claims are the access-token claims issued to clients. The JSON names
// follow the shape resource servers already expect from Spring style
// authorization servers ("scope", "authorities", "client_id").
type Claims struct {
	jwt.RegisteredClaims

	// ClientID of the client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// Scopes granted for this token, e.g. ["read", "write"].
	Scopes []string `json:"scope,omitempty"`

	// Authorities held by the client, e.g. ["ROLE_TRUSTED_CLIENT"].
	Authorities []string `json:"authorities,omitempty"`
}

// NewClientClaims builds the claims for a client_credentials token.
func NewClientClaims(
	issuer, clientID string,
	authorities, scopes []string,
	issuedAt time.Time,
	ttl time.Duration,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        idx.NewAt(issuedAt).String(),
		},
		ClientID:    clientID,
		Scopes:      slices.Clone(scopes),
		Authorities: slices.Clone(authorities),
	}
}

// HasAuthority reports whether the token carries the given authority.
func (c Claims) HasAuthority(authority string) bool {
	return slices.Contains(c.Authorities, authority)
}

// HasScope reports whether the token was granted scope.
func (c Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}
