package jwtx

import (
	"crypto"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNoSigner     = errors.New("jwtx: no active signing key")
	ErrActiveKey    = errors.New("jwtx: cannot retire the active signing key")
	ErrKeyRetired   = errors.New("jwtx: key is past its overlap period")
	ErrDuplicateKID = errors.New("jwtx: duplicate kid")
)

// KeyManager owns the single active signing key and the set of public keys
// that may still verify tokens. Keys that are no longer active stay
// verifiable until their overlap deadline, after which Prune drops them.
type KeyManager struct {
	mu     sync.RWMutex
	active Signer
	keys   *KeySet

	// until holds the overlap deadline of every non-active key. A zero
	// time means the key never expires on its own.
	until map[string]time.Time
}

// NewKeyManager wraps an already loaded signer.
func NewKeyManager(active Signer) (*KeyManager, error) {
	if active == nil {
		return nil, ErrNoSigner
	}
	keys := NewKeySet()
	if err := keys.AddSigner(active); err != nil {
		return nil, fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}
	return &KeyManager{
		active: active,
		keys:   keys,
		until:  make(map[string]time.Time),
	}, nil
}

// NewEphemeralKeyManager generates a key that only lives in memory. Every
// outstanding token becomes unverifiable when the process restarts.
func NewEphemeralKeyManager(alg string, rsaBits int) (*KeyManager, error) {
	signer, _, err := GenerateSigner(alg, "", rsaBits)
	if err != nil {
		return nil, err
	}
	return NewKeyManager(signer)
}

// Active returns the signer used for new tokens.
func (km *KeyManager) Active() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.active
}

// Algorithm returns the algorithm of the active key.
func (km *KeyManager) Algorithm() string {
	return km.Active().Alg()
}

// KeySet exposes the verification keys for JWKS publishing.
func (km *KeyManager) KeySet() *KeySet { return km.keys }

// IsReady reports whether a signer is loaded.
func (km *KeyManager) IsReady() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.active != nil && km.keys.IsReady()
}

// Rotate makes next the active signer. The previous key keeps verifying
// until retireUntil.
func (km *KeyManager) Rotate(next Signer, retireUntil time.Time) error {
	if next == nil {
		return ErrNoSigner
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if _, _, err := km.keys.Get(next.KID()); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateKID, next.KID())
	}
	if err := km.keys.AddSigner(next); err != nil {
		return fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}

	prev := km.active
	km.active = next
	if prev != nil {
		km.until[prev.KID()] = retireUntil
	}
	return nil
}

// AddVerificationKey registers a public key that can verify but never sign,
// e.g. the previous key of a static deployment. A zero until keeps it
// until it is removed explicitly.
func (km *KeyManager) AddVerificationKey(kid string, pub crypto.PublicKey, until time.Time) error {
	alg, err := AlgorithmForKey(pub)
	if err != nil {
		return err
	}
	if kid == "" {
		if kid, err = Thumbprint(pub); err != nil {
			return err
		}
	}
	jwk, err := NewJWK(kid, alg, pub)
	if err != nil {
		return err
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if km.active != nil && km.active.KID() == kid {
		return fmt.Errorf("%w: %s", ErrDuplicateKID, kid)
	}
	if err := km.keys.AddJWK(jwk); err != nil {
		return err
	}
	km.until[kid] = until
	return nil
}

// Retire shortens the overlap of a non-active key so that it stops
// verifying at until.
func (km *KeyManager) Retire(kid string, until time.Time) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.active != nil && km.active.KID() == kid {
		return ErrActiveKey
	}
	if _, ok := km.until[kid]; !ok {
		return ErrNoKey
	}
	km.until[kid] = until
	return nil
}

// VerificationKey implements KeyLookup and refuses keys whose overlap
// deadline has passed, even if Prune has not run yet.
func (km *KeyManager) VerificationKey(kid string, at time.Time) (crypto.PublicKey, string, error) {
	km.mu.RLock()
	deadline, retiring := km.until[kid]
	km.mu.RUnlock()

	if retiring && !deadline.IsZero() && !at.Before(deadline) {
		return nil, "", ErrKeyRetired
	}
	return km.keys.Get(kid)
}

// Prune removes every non-active key whose overlap ended before now and
// returns their ids.
func (km *KeyManager) Prune(now time.Time) []string {
	km.mu.Lock()
	defer km.mu.Unlock()

	var removed []string
	for kid, deadline := range km.until {
		if deadline.IsZero() || now.Before(deadline) {
			continue
		}
		km.keys.Remove(kid)
		delete(km.until, kid)
		removed = append(removed, kid)
	}
	sort.Strings(removed)
	return removed
}

// KeyStatus describes one verification key.
type KeyStatus struct {
	Kid       string
	Algorithm string
	Active    bool
	Until     time.Time // zero for the active key or keys without deadline
}

// Keys lists every verification key with its state.
func (km *KeyManager) Keys() []KeyStatus {
	km.mu.RLock()
	defer km.mu.RUnlock()

	jwks := km.keys.PublicJWKS()
	out := make([]KeyStatus, 0, len(jwks.Keys))
	for _, j := range jwks.Keys {
		out = append(out, KeyStatus{
			Kid:       j.Kid,
			Algorithm: j.Alg,
			Active:    km.active != nil && km.active.KID() == j.Kid,
			Until:     km.until[j.Kid],
		})
	}
	return out
}

// PublicKeyPEM returns the algorithm and PEM public key of the active
// signer, which is what /oauth/token_key publishes.
func (km *KeyManager) PublicKeyPEM() (alg, value string, err error) {
	s := km.Active()
	if s == nil {
		return "", "", ErrNoSigner
	}
	value, err = EncodePublicKeyPEM(s.Public())
	if err != nil {
		return "", "", err
	}
	return s.Alg(), value, nil
}
