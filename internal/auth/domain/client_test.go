package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestClient_Allows(t *testing.T) {
	c := domain.Client{
		GrantTypes: []string{domain.GrantClientCredentials},
		Scopes:     []string{"read", "write"},
	}

	require.True(t, c.AllowsGrant("client_credentials"))
	require.False(t, c.AllowsGrant("authorization_code"))

	tests := []struct {
		requested []string
		bad       string
		ok        bool
	}{
		{nil, "", true},
		{[]string{"read"}, "", true},
		{[]string{"write", "read"}, "", true},
		{[]string{"read", "admin"}, "admin", false},
		{[]string{""}, "", false},
	}
	for _, tt := range tests {
		bad, ok := c.AllowsScopes(tt.requested)
		require.Equal(t, tt.ok, ok, tt.requested)
		require.Equal(t, tt.bad, bad, tt.requested)
	}
}

func TestClient_TokenValidity(t *testing.T) {
	require.Equal(t, time.Hour, domain.Client{}.TokenValidity(time.Hour))
	require.Equal(t, time.Minute, domain.Client{AccessTokenValidity: time.Minute}.TokenValidity(time.Hour))
}

func TestSigningKey_State(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	until := now.Add(time.Hour)

	k := domain.SigningKey{}
	require.True(t, k.IsActive())
	require.False(t, k.IsExpired(now))

	k.RetiredAt, k.ExpiresAt = &now, &until
	require.False(t, k.IsActive())
	require.False(t, k.IsExpired(now))
	require.True(t, k.IsExpired(until))
}
