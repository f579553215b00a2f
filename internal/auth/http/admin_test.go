package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestClients(t *testing.T) {
	ts, readerSecret := newTestServer(t)
	admin := ts.token(t, "trusted", "secret")

	var created authsdk.CreateClientResponse
	t.Run("create", func(t *testing.T) {
		rec := ts.do(bearer(jsonRequest(http.MethodPost, "/v1/clients",
			`{"id":"billing","name":"Billing","scopes":["read"],"access_token_validity_seconds":600}`), admin))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		require.Equal(t, "billing", created.ClientID)
		require.NotEmpty(t, created.ClientSecret)
	})

	t.Run("created client can request tokens", func(t *testing.T) {
		require.NotEmpty(t, ts.token(t, created.ClientID, created.ClientSecret))
	})

	t.Run("duplicate id", func(t *testing.T) {
		rec := ts.do(bearer(jsonRequest(http.MethodPost, "/v1/clients", `{"id":"billing","scopes":["read"]}`), admin))
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing scopes", func(t *testing.T) {
		rec := ts.do(bearer(jsonRequest(http.MethodPost, "/v1/clients", `{"name":"x"}`), admin))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_request", decodeError(t, rec).Error)
	})

	t.Run("list", func(t *testing.T) {
		rec := ts.do(bearer(httptest.NewRequest(http.MethodGet, "/v1/clients", nil), admin))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotContains(t, rec.Body.String(), "secret_hash")

		var resp authsdk.ListClientsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		byID := map[string]authsdk.ClientInfo{}
		for _, c := range resp.Clients {
			byID[c.ID] = c
		}
		require.Len(t, byID, 3)
		require.True(t, byID["trusted"].Protected)
		require.Equal(t, 600, byID["billing"].AccessTokenValiditySeconds)
		require.Equal(t, []string{"client_credentials"}, byID["billing"].GrantTypes)
	})

	t.Run("protected client cannot be deleted", func(t *testing.T) {
		rec := ts.do(bearer(httptest.NewRequest(http.MethodDelete, "/v1/clients/trusted", nil), admin))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := ts.do(bearer(httptest.NewRequest(http.MethodDelete, "/v1/clients/billing", nil), admin))
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(bearer(httptest.NewRequest(http.MethodDelete, "/v1/clients/billing", nil), admin))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("requires the trusted role", func(t *testing.T) {
		reader := ts.token(t, "reader", readerSecret)
		rec := ts.do(bearer(httptest.NewRequest(http.MethodGet, "/v1/clients", nil), reader))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("requires the write scope", func(t *testing.T) {
		readOnly := ts.token(t, "trusted", "secret", "read")
		rec := ts.do(bearer(jsonRequest(http.MethodPost, "/v1/clients", `{"scopes":["read"]}`), readOnly))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/v1/clients", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestKeys(t *testing.T) {
	ts, _ := newTestServer(t)
	admin := ts.token(t, "trusted", "secret")
	oldKid := ts.keys.Active().KID()

	var rotated authsdk.RotateKeyResponse
	t.Run("rotate", func(t *testing.T) {
		rec := ts.do(bearer(jsonRequest(http.MethodPost, "/v1/keys/rotate", `{"algorithm":"EdDSA"}`), admin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))

		require.Equal(t, "EdDSA", rotated.NewKey.Algorithm)
		require.True(t, rotated.NewKey.Active)
		require.Equal(t, oldKid, rotated.RetiredKey.Kid)
		require.NotNil(t, rotated.RetiredKey.ExpiresAt)
		require.Equal(t, rotated.NewKey.Kid, ts.keys.Active().KID())
	})

	t.Run("old tokens verify during overlap", func(t *testing.T) {
		rec := ts.do(bearer(httptest.NewRequest(http.MethodGet, "/api/me", nil), admin))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("jwks publishes both keys", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
		var set authsdk.JWKSResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
		require.Len(t, set.Keys, 2)
	})

	t.Run("list", func(t *testing.T) {
		rec := ts.do(bearer(httptest.NewRequest(http.MethodGet, "/v1/keys", nil), admin))
		require.Equal(t, http.StatusOK, rec.Code)

		var keys []authsdk.SigningKeyInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
		require.Len(t, keys, 2)
	})

	t.Run("active key cannot be retired", func(t *testing.T) {
		rec := ts.do(bearer(httptest.NewRequest(http.MethodPost, "/v1/keys/"+rotated.NewKey.Kid+"/retire", nil), admin))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("retire", func(t *testing.T) {
		rec := ts.do(bearer(httptest.NewRequest(http.MethodPost, "/v1/keys/"+oldKid+"/retire", nil), admin))
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(bearer(httptest.NewRequest(http.MethodPost, "/v1/keys/unknown/retire", nil), admin))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		rec := ts.do(bearer(jsonRequest(http.MethodPost, "/v1/keys/rotate", `{"algorithm":"HS256"}`), admin))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("static keys refuse rotation", func(t *testing.T) {
		ts.router.KeyRotationService.Static = true
		t.Cleanup(func() { ts.router.KeyRotationService.Static = false })

		rec := ts.do(bearer(httptest.NewRequest(http.MethodPost, "/v1/keys/rotate", nil), admin))
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}
