package domain

import (
	"slices"
	"time"
)

const (
	GrantClientCredentials = "client_credentials"

	// AuthorityTrustedClient marks clients allowed to introspect tokens and
	// administer the server.
	AuthorityTrustedClient = "ROLE_TRUSTED_CLIENT"
)

// Client is a registered OAuth2 client. It is treated as immutable while a
// request is being processed.
type Client struct {
	ID          string
	Name        string
	SecretHash  string // argon2id PHC string
	GrantTypes  []string
	Authorities []string
	Scopes      []string

	// AccessTokenValidity of zero means the server default applies.
	AccessTokenValidity time.Duration

	Protected bool // cannot be deleted through the admin API
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllowsGrant reports whether the client is registered for grant.
func (c Client) AllowsGrant(grant string) bool {
	return slices.Contains(c.GrantTypes, grant)
}

// AllowsScopes reports whether every requested scope is registered for
// the client. The first scope that is not is returned.
func (c Client) AllowsScopes(requested []string) (string, bool) {
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return s, false
		}
	}
	return "", true
}

// TokenValidity returns the client's validity or def when unset.
func (c Client) TokenValidity(def time.Duration) time.Duration {
	if c.AccessTokenValidity > 0 {
		return c.AccessTokenValidity
	}
	return def
}
