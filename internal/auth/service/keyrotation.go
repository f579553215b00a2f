package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// DefaultKeyOverlap is how long a retired key keeps verifying tokens.
const DefaultKeyOverlap = 24 * time.Hour

// KeyRotationService rotates and retires signing keys at runtime.
//
// With a Store and Sealer (persistent mode) keys are encrypted into the
// signing_keys table and survive restarts. Without them (ephemeral mode)
// rotation only affects the in-memory KeyManager. Static deployments load
// keys from files and refuse rotation.
type KeyRotationService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store    // nil outside persistent mode
	Sealer     jwtx.KeySealer // nil outside persistent mode
	Static     bool

	Algorithm string // defaults to the active key's algorithm
	RSABits   int
	Overlap   time.Duration // defaults to DefaultKeyOverlap
	Clock     func() time.Time
}

// KeyInfo describes a signing key without its private material.
type KeyInfo struct {
	Kid       string
	Algorithm string
	Active    bool
	CreatedAt time.Time
	RetiredAt *time.Time
	ExpiresAt *time.Time
}

// RotateResult is the outcome of RotateKey.
type RotateResult struct {
	NewKey     KeyInfo
	RetiredKey *KeyInfo
}

// RotateKey generates a key, makes it active and moves the previous active
// key into its overlap window.
func (s *KeyRotationService) RotateKey(ctx context.Context, algorithm string) (*RotateResult, error) {
	if s.Static {
		return nil, ErrRotationDisabled
	}
	if s.KeyManager == nil {
		return nil, errors.New("key rotation: key manager is required")
	}
	l := slogx.FromContext(ctx)

	if algorithm == "" {
		algorithm = s.Algorithm
	}
	if algorithm == "" {
		algorithm = s.KeyManager.Algorithm()
	}

	now := s.now()
	until := now.Add(s.overlap())
	prev := s.KeyManager.Active()

	var next jwtx.Signer
	created := now

	if s.persistent() {
		signer, rec, err := jwtx.NewSealedSigningKey(s.Sealer, algorithm, s.RSABits, now)
		if err != nil {
			return nil, fmt.Errorf("key rotation: generate key: %w", err)
		}

		err = s.Store.WithTx(ctx, func(tx store.Store) error {
			active, err := tx.SigningKeys().ListActiveSigningKeys(ctx)
			if err != nil {
				return fmt.Errorf("list active keys: %w", err)
			}
			for _, k := range active {
				if err := tx.SigningKeys().RetireSigningKey(ctx, k.Kid, now, until); err != nil {
					return fmt.Errorf("retire key %s: %w", k.Kid, err)
				}
			}
			if err := tx.SigningKeys().CreateSigningKey(ctx, store.KeyRecordToDomain(rec)); err != nil {
				return fmt.Errorf("create key: %w", err)
			}
			return nil
		})
		if err != nil {
			l.ErrorContext(ctx, "key rotation failed", "error", err)
			return nil, err
		}
		next, created = signer, rec.CreatedAt
	} else {
		signer, _, err := jwtx.GenerateSigner(algorithm, "", s.RSABits)
		if err != nil {
			return nil, fmt.Errorf("key rotation: generate key: %w", err)
		}
		next = signer
	}

	// Verify-only keys that were never retired get the same deadline as
	// the outgoing active key.
	for _, k := range s.KeyManager.Keys() {
		if !k.Active && k.Until.IsZero() {
			_ = s.KeyManager.Retire(k.Kid, until)
		}
	}
	if err := s.KeyManager.Rotate(next, until); err != nil {
		return nil, fmt.Errorf("key rotation: activate key: %w", err)
	}

	res := &RotateResult{
		NewKey: KeyInfo{
			Kid:       next.KID(),
			Algorithm: next.Alg(),
			Active:    true,
			CreatedAt: created,
		},
	}
	if prev != nil {
		retiredAt, expiresAt := now, until
		res.RetiredKey = &KeyInfo{
			Kid:       prev.KID(),
			Algorithm: prev.Alg(),
			RetiredAt: &retiredAt,
			ExpiresAt: &expiresAt,
		}
	}

	l.InfoContext(ctx, "signing key rotated", "kid", next.KID(), "alg", next.Alg(), "overlap_until", until)
	return res, nil
}

// ListSigningKeys returns every key that can still verify tokens, plus, in
// persistent mode, retired keys not yet deleted by housekeeping.
func (s *KeyRotationService) ListSigningKeys(ctx context.Context) ([]KeyInfo, error) {
	if s.KeyManager == nil {
		return nil, errors.New("key rotation: key manager is required")
	}

	activeKid := ""
	if a := s.KeyManager.Active(); a != nil {
		activeKid = a.KID()
	}

	if s.persistent() {
		keys, err := s.Store.SigningKeys().ListAllSigningKeys(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]KeyInfo, len(keys))
		for i, k := range keys {
			out[i] = KeyInfo{
				Kid:       k.Kid,
				Algorithm: k.Algorithm,
				Active:    k.Kid == activeKid,
				CreatedAt: k.CreatedAt,
				RetiredAt: k.RetiredAt,
				ExpiresAt: k.ExpiresAt,
			}
		}
		return out, nil
	}

	statuses := s.KeyManager.Keys()
	out := make([]KeyInfo, len(statuses))
	for i, st := range statuses {
		out[i] = KeyInfo{Kid: st.Kid, Algorithm: st.Algorithm, Active: st.Active}
		if !st.Until.IsZero() {
			until := st.Until
			out[i].ExpiresAt = &until
		}
	}
	return out, nil
}

// RetireKey ends a non-active key's life after the overlap window. The
// active key can only be replaced through RotateKey.
func (s *KeyRotationService) RetireKey(ctx context.Context, kid string) error {
	if s.KeyManager == nil {
		return errors.New("key rotation: key manager is required")
	}
	if a := s.KeyManager.Active(); a != nil && a.KID() == kid {
		return ErrKeyActive
	}

	now := s.now()
	until := now.Add(s.overlap())

	if s.persistent() {
		if err := s.Store.SigningKeys().RetireSigningKey(ctx, kid, now, until); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrKeyNotFound
			}
			return fmt.Errorf("retire key: %w", err)
		}
	}

	if err := s.KeyManager.Retire(kid, until); err != nil {
		if errors.Is(err, jwtx.ErrActiveKey) {
			return ErrKeyActive
		}
		// A persisted key may already have left the key manager.
		if !s.persistent() {
			return ErrKeyNotFound
		}
	}

	slogx.FromContext(ctx).InfoContext(ctx, "signing key retired", "kid", kid, "overlap_until", until)
	return nil
}

func (s *KeyRotationService) persistent() bool {
	return s.Store != nil && s.Sealer != nil
}

func (s *KeyRotationService) overlap() time.Duration {
	if s.Overlap > 0 {
		return s.Overlap
	}
	return DefaultKeyOverlap
}

func (s *KeyRotationService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
