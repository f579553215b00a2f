package domain

import "time"

// SigningKey is a persisted JWT signing key. The private key PEM is
// encrypted with AES-256-GCM before it reaches the store.
type SigningKey struct {
	Kid                 string
	Algorithm           string // RS256, ES256 or EdDSA
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time

	// RetiredAt is set once the key stops signing. ExpiresAt is the end of
	// its overlap window, after which it no longer verifies either.
	RetiredAt *time.Time
	ExpiresAt *time.Time
}

// IsActive reports whether the key may still sign.
func (k SigningKey) IsActive() bool {
	return k.RetiredAt == nil
}

// IsExpired reports whether the overlap window has ended.
func (k SigningKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
