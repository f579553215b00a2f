package jwtx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// SigningKeyRecord is a signing key as persisted by a KeyStore. Defined
// here so jwtx does not depend on the store package.
type SigningKeyRecord struct {
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           *time.Time // end of the overlap once retired
}

// KeyStore is the persistence needed by the persistent key manager.
type KeyStore interface {
	ListAllSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// KeySealer encrypts private key material at rest.
type KeySealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// PersistentKeyManagerOptions configures LoadPersistentKeyManager.
type PersistentKeyManagerOptions struct {
	Store  KeyStore
	Sealer KeySealer

	// Algorithm and RSABits are used when no active key exists yet.
	Algorithm string
	RSABits   int

	Now func() time.Time
}

// LoadPersistentKeyManager restores keys from the store. The newest
// non-retired key signs; older non-retired keys and retired keys still
// inside their overlap only verify. When no active key exists one is
// generated, sealed and stored.
func LoadPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil || opts.Sealer == nil {
		return nil, errors.New("jwtx: persistent key manager needs a store and a sealer")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()

	records, err := opts.Store.ListAllSigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load signing keys: %w", err)
	}

	// Newest first so the first non-retired record becomes active.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	var km *KeyManager
	var verifyOnly []SigningKeyRecord

	for _, rec := range records {
		if rec.RetiredAt != nil && rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
			continue
		}
		if km == nil && rec.RetiredAt == nil {
			signer, err := OpenSigningKey(opts.Sealer, rec)
			if err != nil {
				return nil, err
			}
			if km, err = NewKeyManager(signer); err != nil {
				return nil, err
			}
			continue
		}
		verifyOnly = append(verifyOnly, rec)
	}

	if km == nil {
		signer, rec, err := NewSealedSigningKey(opts.Sealer, opts.Algorithm, opts.RSABits, now)
		if err != nil {
			return nil, err
		}
		if err := opts.Store.CreateSigningKey(ctx, rec); err != nil {
			return nil, fmt.Errorf("jwtx: store signing key: %w", err)
		}
		if km, err = NewKeyManager(signer); err != nil {
			return nil, err
		}
	}

	for _, rec := range verifyOnly {
		signer, err := OpenSigningKey(opts.Sealer, rec)
		if err != nil {
			return nil, err
		}
		var until time.Time
		if rec.ExpiresAt != nil {
			until = *rec.ExpiresAt
		}
		if err := km.AddVerificationKey(rec.Kid, signer.Public(), until); err != nil {
			return nil, fmt.Errorf("jwtx: add key %s: %w", rec.Kid, err)
		}
	}

	return km, nil
}

// OpenSigningKey decrypts a stored record into a signer.
func OpenSigningKey(sealer KeySealer, rec SigningKeyRecord) (Signer, error) {
	pemData, err := sealer.Open(rec.PrivateKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("jwtx: decrypt key %s: %w", rec.Kid, err)
	}
	signer, err := NewSignerForAlgorithm(rec.Algorithm, rec.Kid, pemData)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load key %s: %w", rec.Kid, err)
	}
	return signer, nil
}

// NewSealedSigningKey generates a key and the record to persist it.
func NewSealedSigningKey(sealer KeySealer, alg string, rsaBits int, now time.Time) (Signer, SigningKeyRecord, error) {
	signer, pemData, err := GenerateSigner(alg, "", rsaBits)
	if err != nil {
		return nil, SigningKeyRecord{}, err
	}
	sealed, err := sealer.Seal(pemData)
	if err != nil {
		return nil, SigningKeyRecord{}, fmt.Errorf("jwtx: encrypt key: %w", err)
	}
	return signer, SigningKeyRecord{
		Kid:                 signer.KID(),
		Algorithm:           signer.Alg(),
		PrivateKeyEncrypted: sealed,
		CreatedAt:           now,
	}, nil
}
