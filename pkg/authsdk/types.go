package authsdk

import "github.com/aussiebroadwan/tokensmith/pkg/jwtx"

// ErrorResponse is the OAuth2 error body on the wire.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_client"`
	ErrorDescription string `json:"error_description,omitempty" example:"client authentication failed"`
}

// TokenResponse is the successful token endpoint response (RFC 6749 5.1).
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type" example:"bearer"`
	ExpiresIn   int    `json:"expires_in" example:"3600"`
	Scope       string `json:"scope,omitempty" example:"read write"`
	JTI         string `json:"jti,omitempty"`
}

// TokenKeyResponse carries the PEM encoded public key of the active signer.
type TokenKeyResponse struct {
	Alg   string `json:"alg" example:"RS256"`
	Value string `json:"value"`
}

// CheckTokenResponse is the decoded token returned by /oauth/check_token.
type CheckTokenResponse struct {
	Active      bool     `json:"active"`
	ClientID    string   `json:"client_id"`
	Subject     string   `json:"sub,omitempty"`
	Scope       []string `json:"scope,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	Issuer      string   `json:"iss,omitempty"`
	ExpiresAt   int64    `json:"exp"`
	IssuedAt    int64    `json:"iat,omitempty"`
	JTI         string   `json:"jti,omitempty"`
}

// IntrospectionResponse follows RFC 7662 2.2. Only Active is set for
// tokens that do not verify.
type IntrospectionResponse struct {
	Active      bool     `json:"active"`
	Scope       string   `json:"scope,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
	TokenType   string   `json:"token_type,omitempty"`
	Exp         int64    `json:"exp,omitempty"`
	Iat         int64    `json:"iat,omitempty"`
	Sub         string   `json:"sub,omitempty"`
	Iss         string   `json:"iss,omitempty"`
	Jti         string   `json:"jti,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
}

// CallerResponse is what GET /api/me reports about the bearer.
type CallerResponse struct {
	ClientID    string   `json:"client_id"`
	Authorities []string `json:"authorities"`
	Scopes      []string `json:"scopes"`
	ExpiresAt   int64    `json:"expires_at"`
}

// JWKSResponse is the body of GET /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks are the readiness probes.
type HealthChecks struct {
	Database string `json:"database" example:"ok"`
	Signer   string `json:"signer" example:"ok"`
}

// CreateClientRequest registers a client_credentials client.
type CreateClientRequest struct {
	// ID is optional; one is generated when empty.
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	GrantTypes  []string `json:"grant_types,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	Scopes      []string `json:"scopes"`

	// AccessTokenValiditySeconds of zero uses the server default.
	AccessTokenValiditySeconds int `json:"access_token_validity_seconds,omitempty"`
}

// CreateClientResponse carries the only copy of the plaintext secret.
type CreateClientResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ClientInfo describes a registered client. Secrets are never returned.
type ClientInfo struct {
	ID                         string   `json:"id"`
	Name                       string   `json:"name"`
	GrantTypes                 []string `json:"grant_types"`
	Authorities                []string `json:"authorities"`
	Scopes                     []string `json:"scopes"`
	AccessTokenValiditySeconds int      `json:"access_token_validity_seconds,omitempty"`
	Protected                  bool     `json:"protected"`
	CreatedAt                  string   `json:"created_at"`
}

type ListClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// RotateKeyRequest optionally picks the new key's algorithm.
type RotateKeyRequest struct {
	Algorithm string `json:"algorithm,omitempty" example:"ES256"`
}

// SigningKeyInfo describes one verification key.
type SigningKeyInfo struct {
	Kid       string  `json:"kid"`
	Algorithm string  `json:"algorithm"`
	Active    bool    `json:"active"`
	RetiredAt *string `json:"retired_at,omitempty"` // RFC3339
	ExpiresAt *string `json:"expires_at,omitempty"` // end of the overlap window
}

type RotateKeyResponse struct {
	NewKey     SigningKeyInfo `json:"new_key"`
	RetiredKey SigningKeyInfo `json:"retired_key"`
}
