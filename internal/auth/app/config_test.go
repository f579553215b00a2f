package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tokensmith/internal/auth/app"
	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// staticKeyFiles writes an ES256 key pair and returns the file paths.
func staticKeyFiles(t *testing.T, dir, prefix string) (string, string) {
	t.Helper()
	priv, err := cryptox.GenerateES256Key()
	require.NoError(t, err)
	pub, err := cryptox.PublicKeyPEM(priv)
	require.NoError(t, err)
	return writeFile(t, dir, prefix+".pem", priv), writeFile(t, dir, prefix+".pub.pem", pub)
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"AUTH_ISSUER", "AUTH_KEY_SOURCE", "AUTH_ALGORITHM", "AUTH_TOKEN_VALIDITY_SECONDS",
		"AUTH_STORE_DRIVER", "AUTH_CACHE_DRIVER", "AUTH_TRUSTED_CLIENT_ID",
		"AUTH_TRUSTED_CLIENT_SECRET", "AUTH_TRUSTED_CLIENT_SCOPES", "ENV", "PORT", "REDIS_PREFIX",
	} {
		t.Setenv(key, "")
	}

	cfg := app.LoadConfig()
	require.Equal(t, "tokensmith", cfg.Issuer)
	require.Equal(t, app.KeySourceStatic, cfg.KeySource)
	require.Equal(t, "RS256", cfg.Algorithm)
	require.Equal(t, time.Hour, cfg.TokenValidity)
	require.Equal(t, app.StoreSQLite, cfg.StoreDriver)
	require.Equal(t, "memory", cfg.CacheDriver)
	require.Equal(t, "trusted", cfg.TrustedClientID)
	require.Equal(t, "secret", cfg.TrustedClientSecret)
	require.Equal(t, []string{"read", "write"}, cfg.TrustedClientScopes)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "tokensmith:", cfg.RedisPrefix)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "https://auth.example.com")
	t.Setenv("AUTH_TOKEN_VALIDITY_SECONDS", "600")
	t.Setenv("AUTH_CLOCK_SKEW", "30")
	t.Setenv("AUTH_KEY_OVERLAP", "2h")
	t.Setenv("AUTH_PREVIOUS_PUBLIC_KEY_FILES", "a.pem, b.pem")
	t.Setenv("AUTH_TRUSTED_CLIENT_SCOPES", "read  admin")
	t.Setenv("ENV", "prod")
	t.Setenv("AUTH_TRUSTED_CLIENT_SECRET", "")
	t.Setenv("PORT", "not-a-number")

	cfg := app.LoadConfig()
	require.Equal(t, "https://auth.example.com", cfg.Issuer)
	require.Equal(t, 10*time.Minute, cfg.TokenValidity)
	require.Equal(t, 30*time.Second, cfg.ClockSkew)
	require.Equal(t, 2*time.Hour, cfg.KeyOverlap)
	require.Equal(t, []string{"a.pem", "b.pem"}, cfg.PreviousPublicKeyFiles)
	require.Equal(t, []string{"read", "admin"}, cfg.TrustedClientScopes)
	require.Empty(t, cfg.TrustedClientSecret, "prod gets no default secret")
	require.Equal(t, 8080, cfg.Port)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", []byte("TOKENSMITH_TEST_VAR=from-file\n"))

	t.Setenv("TOKENSMITH_TEST_VAR", "")
	require.NoError(t, os.Unsetenv("TOKENSMITH_TEST_VAR"))
	require.NoError(t, app.LoadEnvFile(path))
	require.Equal(t, "from-file", os.Getenv("TOKENSMITH_TEST_VAR"))

	require.NoError(t, app.LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	privFile, pubFile := staticKeyFiles(t, dir, "current")
	_, otherPub := staticKeyFiles(t, dir, "other")

	valid := func() app.Config {
		return app.Config{
			Issuer:              "tokensmith",
			KeySource:           app.KeySourceStatic,
			PrivateKeyFile:      privFile,
			PublicKeyFile:       pubFile,
			Algorithm:           "RS256",
			KeyOverlap:          time.Hour,
			TokenValidity:       time.Hour,
			StoreDriver:         app.StoreMemory,
			CacheDriver:         "memory",
			TrustedClientID:     "trusted",
			TrustedClientSecret: "secret",
			TrustedClientScopes: []string{"read"},
			IntrospectPolicy:    "hasAuthority('ROLE_TRUSTED_CLIENT')",
			TokenKeyPolicy:      "permitAll()",
			Env:                 "dev",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*app.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*app.Config) {}},
		{name: "ephemeral needs no key files", mutate: func(c *app.Config) {
			c.KeySource = app.KeySourceEphemeral
			c.PrivateKeyFile, c.PublicKeyFile = "", ""
		}},
		{name: "unknown key source", mutate: func(c *app.Config) { c.KeySource = "hsm" }, wantErr: "AUTH_KEY_SOURCE"},
		{name: "missing private key", mutate: func(c *app.Config) { c.PrivateKeyFile = "" }, wantErr: "AUTH_PRIVATE_KEY"},
		{name: "unreadable private key", mutate: func(c *app.Config) { c.PrivateKeyFile = filepath.Join(dir, "nope.pem") }, wantErr: "private key"},
		{name: "mismatched key pair", mutate: func(c *app.Config) { c.PublicKeyFile = otherPub }, wantErr: "does not match"},
		{name: "unsupported algorithm", mutate: func(c *app.Config) {
			c.KeySource = app.KeySourceEphemeral
			c.Algorithm = "HS256"
		}, wantErr: "AUTH_ALGORITHM"},
		{name: "non-positive validity", mutate: func(c *app.Config) { c.TokenValidity = 0 }, wantErr: "AUTH_TOKEN_VALIDITY_SECONDS"},
		{name: "zero overlap", mutate: func(c *app.Config) { c.KeyOverlap = 0 }, wantErr: "AUTH_KEY_OVERLAP"},
		{name: "negative skew", mutate: func(c *app.Config) { c.ClockSkew = -time.Second }, wantErr: "AUTH_CLOCK_SKEW"},
		{name: "unknown store", mutate: func(c *app.Config) { c.StoreDriver = "postgres" }, wantErr: "AUTH_STORE_DRIVER"},
		{name: "unknown cache", mutate: func(c *app.Config) { c.CacheDriver = "memcached" }, wantErr: "AUTH_CACHE_DRIVER"},
		{name: "redis without address", mutate: func(c *app.Config) { c.CacheDriver = "redis" }, wantErr: "REDIS_ADDR"},
		{name: "default secret in prod", mutate: func(c *app.Config) { c.Env = "prod" }, wantErr: "default in prod"},
		{name: "empty secret", mutate: func(c *app.Config) { c.TrustedClientSecret = "" }, wantErr: "AUTH_TRUSTED_CLIENT_SECRET"},
		{name: "bad policy", mutate: func(c *app.Config) { c.IntrospectPolicy = "hasRole(" }, wantErr: "AUTH_INTROSPECT_POLICY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
