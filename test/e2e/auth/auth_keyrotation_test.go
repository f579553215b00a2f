package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
)

// TestKeyRotation rotates the signing key and checks the overlap window:
// old tokens keep verifying, both keys are published, and the active key
// cannot be retired.
func TestKeyRotation(t *testing.T) {
	srv := setupAuthServer(t)
	client := srv.client()
	admin := adminSession(t, client)
	oldToken := admin.AccessToken()

	before, err := admin.ListKeys(t.Context())
	require.NoError(t, err)
	require.Len(t, before, 1)
	oldKid := before[0].Kid

	rotated, err := admin.RotateKey(t.Context(), authsdk.RotateKeyRequest{Algorithm: "ES256"})
	require.NoError(t, err)
	require.Equal(t, "ES256", rotated.NewKey.Algorithm)
	require.True(t, rotated.NewKey.Active)
	require.NotEqual(t, oldKid, rotated.NewKey.Kid)
	require.Equal(t, oldKid, rotated.RetiredKey.Kid)
	require.NotNil(t, rotated.RetiredKey.ExpiresAt)

	t.Run("old token still verifies", func(t *testing.T) {
		resp, err := client.CheckToken(t.Context(), trusted, oldToken)
		require.NoError(t, err)
		require.True(t, resp.Active)
	})

	t.Run("new tokens use the new key", func(t *testing.T) {
		verifier, err := client.NewRemoteVerifier(t.Context(), testIssuer, 0)
		require.NoError(t, err)

		tok, err := client.RequestToken(t.Context(), trusted, "", nil)
		require.NoError(t, err)
		_, err = verifier.Verify(tok.AccessToken)
		require.NoError(t, err)

		key, err := client.TokenKey(t.Context(), nil)
		require.NoError(t, err)
		require.Equal(t, "ES256", key.Alg)
	})

	t.Run("jwks publishes both keys", func(t *testing.T) {
		jwks, err := client.GetJWKS(t.Context())
		require.NoError(t, err)

		kids := make([]string, 0, len(jwks.Keys))
		for _, k := range jwks.Keys {
			kids = append(kids, k.Kid)
		}
		require.ElementsMatch(t, []string{oldKid, rotated.NewKey.Kid}, kids)
	})

	t.Run("active key cannot be retired", func(t *testing.T) {
		err := admin.RetireKey(t.Context(), rotated.NewKey.Kid)
		assertOAuth2Error(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("unknown key", func(t *testing.T) {
		err := admin.RetireKey(t.Context(), "does-not-exist")
		assertOAuth2Error(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		_, err := admin.RotateKey(t.Context(), authsdk.RotateKeyRequest{Algorithm: "HS256"})
		assertOAuth2Error(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})
}

// TestKeyRotation_SurvivesRestart verifies rotated keys are persisted:
// after a restart the rotated key still signs and tokens from before the
// restart still verify.
func TestKeyRotation_SurvivesRestart(t *testing.T) {
	srv := setupAuthServer(t)
	admin := adminSession(t, srv.client())
	oldToken := admin.AccessToken()

	rotated, err := admin.RotateKey(t.Context(), authsdk.RotateKeyRequest{})
	require.NoError(t, err)
	require.Equal(t, "EdDSA", rotated.NewKey.Algorithm, "the algorithm defaults to the configured one")

	srv.restart(t)
	client := srv.client()

	keys, err := adminSession(t, client).ListKeys(t.Context())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		require.Equal(t, k.Kid == rotated.NewKey.Kid, k.Active, "kid %s", k.Kid)
	}

	resp, err := client.CheckToken(t.Context(), trusted, oldToken)
	require.NoError(t, err)
	require.True(t, resp.Active)
}
