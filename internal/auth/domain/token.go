package domain

import "time"

const TokenTypeBearer = "bearer"

// AccessToken is the outcome of a successful token request.
type AccessToken struct {
	Value     string
	TokenType string
	ExpiresIn time.Duration
	ExpiresAt time.Time
	Scopes    []string
	JTI       string
}

// TokenKey is the public half of the active signing key, PEM encoded.
type TokenKey struct {
	Alg   string
	Value string
}
