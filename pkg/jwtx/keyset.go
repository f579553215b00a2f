package jwtx

import (
	"crypto"
	"errors"
	"slices"
	"sync"
	"time"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeyLookup resolves the verification key for a "kid" at a point in time.
type KeyLookup interface {
	VerificationKey(kid string, at time.Time) (pub crypto.PublicKey, alg string, err error)
}

type keyEntry struct {
	jwk JWK
	pub crypto.PublicKey
}

// KeySet holds public verification keys. It is safe for concurrent use;
// the JWKS handler reads it while rotation writes it.
type KeySet struct {
	mu    sync.RWMutex
	keys  map[string]keyEntry
	order []string
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]keyEntry)}
}

// NewKeySetFromJWKS builds a KeySet from a published JWKS, as a resource
// server would after fetching /.well-known/jwks.json.
func NewKeySetFromJWKS(jwks JWKS) (*KeySet, error) {
	ks := NewKeySet()
	for _, j := range jwks.Keys {
		if err := ks.AddJWK(j); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

// AddSigner registers the public half of s.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK parses j and stores it under j.Kid, replacing any previous key
// with the same id.
func (k *KeySet) AddJWK(j JWK) error {
	if j.Kid == "" {
		return errors.New("jwtx: JWK without kid")
	}
	pub, err := j.PublicKey()
	if err != nil {
		return err
	}
	alg, err := AlgorithmForKey(pub)
	if err != nil {
		return err
	}
	if j.Alg == "" {
		j.Alg = alg
	} else if j.Alg != alg {
		return errors.New("jwtx: JWK alg does not match key type")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[j.Kid]; !exists {
		k.order = append(k.order, j.Kid)
	}
	k.keys[j.Kid] = keyEntry{jwk: j, pub: pub}
	return nil
}

// Remove drops kid from the set. It reports whether the key was present.
func (k *KeySet) Remove(kid string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[kid]; !ok {
		return false
	}
	delete(k.keys, kid)
	k.order = slices.DeleteFunc(k.order, func(s string) bool { return s == kid })
	return true
}

// Get returns the public key and algorithm registered for kid.
func (k *KeySet) Get(kid string) (crypto.PublicKey, string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.keys[kid]
	if !ok {
		return nil, "", ErrNoKey
	}
	return e.pub, e.jwk.Alg, nil
}

// VerificationKey implements KeyLookup. A bare KeySet has no notion of
// expiry, so at is ignored.
func (k *KeySet) VerificationKey(kid string, _ time.Time) (crypto.PublicKey, string, error) {
	return k.Get(kid)
}

// PublicJWKS returns a snapshot of the set in insertion order.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := JWKS{Keys: make([]JWK, 0, len(k.order))}
	for _, kid := range k.order {
		out.Keys = append(out.Keys, k.keys[kid].jwk)
	}
	return out
}

// Kids lists the key ids in insertion order.
func (k *KeySet) Kids() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return slices.Clone(k.order)
}

// IsReady returns true once at least one key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}
