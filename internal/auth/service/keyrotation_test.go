package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestKeyRotation_Ephemeral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rot := &KeyRotationService{KeyManager: f.keys, Overlap: time.Hour, Clock: f.clock.Now}

	before := f.issue(t, "trusted", "secret")
	oldKid := f.keys.Active().KID()

	res, err := rot.RotateKey(ctx, "")
	require.NoError(t, err)
	require.NotEqual(t, oldKid, res.NewKey.Kid)
	require.Equal(t, jwtx.AlgorithmES256, res.NewKey.Algorithm)
	require.NotNil(t, res.RetiredKey)
	require.Equal(t, oldKid, res.RetiredKey.Kid)
	require.Equal(t, res.NewKey.Kid, f.keys.Active().KID())

	// Tokens signed before the rotation keep verifying during the overlap.
	_, err = f.codec.Verify(before.Value)
	require.NoError(t, err)

	after := f.issue(t, "trusted", "secret")
	claims, err := f.codec.Verify(after.Value)
	require.NoError(t, err)
	require.Equal(t, "trusted", claims.ClientID)

	keys, err := rot.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	require.ErrorIs(t, rot.RetireKey(ctx, res.NewKey.Kid), ErrKeyActive)
	require.ErrorIs(t, rot.RetireKey(ctx, "missing"), ErrKeyNotFound)

	// Once the overlap has passed the old key no longer verifies.
	f.clock.Advance(time.Hour)
	_, err = f.codec.Verify(before.Value)
	require.ErrorIs(t, err, jwtx.ErrInvalidSignature)

	hk := &HousekeepingService{KeyManager: f.keys, Logger: slogx.Discard(), Clock: f.clock.Now}
	hk.Cleanup(ctx)

	keys, err = rot.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.True(t, keys[0].Active)
}

func TestKeyRotation_ChangesAlgorithm(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.AlgorithmES256, 0)
	require.NoError(t, err)

	rot := &KeyRotationService{KeyManager: km}
	res, err := rot.RotateKey(context.Background(), jwtx.AlgorithmEdDSA)
	require.NoError(t, err)
	require.Equal(t, jwtx.AlgorithmEdDSA, res.NewKey.Algorithm)
	require.Equal(t, jwtx.AlgorithmEdDSA, km.Algorithm())
}

func TestKeyRotation_Static(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.AlgorithmES256, 0)
	require.NoError(t, err)

	rot := &KeyRotationService{KeyManager: km, Static: true}
	_, err = rot.RotateKey(context.Background(), "")
	require.ErrorIs(t, err, ErrRotationDisabled)
}

func TestKeyRotation_Persistent(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	st := memory.NewStore()

	sealer, err := cryptox.NewKeyEncryptor([]byte("test master key"))
	require.NoError(t, err)

	load := func() *jwtx.KeyManager {
		km, err := jwtx.LoadPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			Store:     store.NewKeyStoreAdapter(st),
			Sealer:    sealer,
			Algorithm: jwtx.AlgorithmES256,
			Now:       clock.Now,
		})
		require.NoError(t, err)
		return km
	}

	km := load()
	first := km.Active().KID()

	rot := &KeyRotationService{
		KeyManager: km,
		Store:      st,
		Sealer:     sealer,
		Overlap:    time.Hour,
		Clock:      clock.Now,
	}

	res, err := rot.RotateKey(ctx, "")
	require.NoError(t, err)
	require.Equal(t, first, res.RetiredKey.Kid)

	stored, err := st.SigningKeys().ListAllSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	old, err := st.SigningKeys().GetSigningKeyByKid(ctx, first)
	require.NoError(t, err)
	require.False(t, old.IsActive())
	require.NotNil(t, old.ExpiresAt)
	require.True(t, clock.Now().Add(time.Hour).Equal(*old.ExpiresAt))

	listed, err := rot.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, k := range listed {
		require.Equal(t, k.Kid == res.NewKey.Kid, k.Active)
	}

	// A restart picks the rotated key up as active and keeps the old one
	// for verification.
	reloaded := load()
	require.Equal(t, res.NewKey.Kid, reloaded.Active().KID())
	require.Len(t, reloaded.Keys(), 2)

	// Retiring an already retired key is reported as missing.
	require.ErrorIs(t, rot.RetireKey(ctx, first), ErrKeyNotFound)

	clock.Advance(time.Hour)
	hk := NewHousekeepingService(st, km, slogx.Discard(), time.Minute)
	hk.Clock = clock.Now
	hk.Cleanup(ctx)

	stored, err = st.SigningKeys().ListAllSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, res.NewKey.Kid, stored[0].Kid)
	require.Len(t, km.Keys(), 1)
}

func TestHousekeeping_StartStop(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.AlgorithmES256, 0)
	require.NoError(t, err)

	hk := NewHousekeepingService(memory.NewStore(), km, slogx.Discard(), 10*time.Millisecond)
	hk.Start()
	time.Sleep(30 * time.Millisecond)
	hk.Stop()
}
