package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/cache"
	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// countingClients records how often the backing store is read.
type countingClients struct {
	store.Clients
	finds int
}

func (c *countingClients) FindClient(ctx context.Context, id string) (domain.Client, error) {
	c.finds++
	return c.Clients.FindClient(ctx, id)
}

// brokenCache fails every operation.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errCacheDown
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return errCacheDown }
func (brokenCache) Delete(context.Context, string) error                     { return errCacheDown }
func (brokenCache) Close() error                                             { return nil }

func seeded(t *testing.T) *countingClients {
	t.Helper()
	s := memory.NewStore()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Clients().CreateClient(context.Background(), domain.Client{
		ID:                  "trusted",
		Name:                "Trusted",
		SecretHash:          "hash",
		GrantTypes:          []string{domain.GrantClientCredentials},
		Authorities:         []string{domain.AuthorityTrustedClient},
		Scopes:              []string{"read", "write"},
		AccessTokenValidity: time.Hour,
		Protected:           true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}))
	return &countingClients{Clients: s.Clients()}
}

func TestCachedClients_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := seeded(t)
	c := store.NewCachedClients(inner, cache.NewMemory(time.Minute), time.Minute, slogx.Discard())

	first, err := c.FindClient(ctx, "trusted")
	require.NoError(t, err)
	second, err := c.FindClient(ctx, "trusted")
	require.NoError(t, err)

	require.Equal(t, 1, inner.finds)
	require.Equal(t, first.Scopes, second.Scopes)
	require.Equal(t, first.Authorities, second.Authorities)
	require.Equal(t, time.Hour, second.AccessTokenValidity)
	require.True(t, second.Protected)
	require.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestCachedClients_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := seeded(t)
	c := store.NewCachedClients(inner, cache.NewMemory(time.Minute), time.Minute, slogx.Discard())

	_, err := c.FindClient(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = c.FindClient(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 2, inner.finds)
}

func TestCachedClients_InvalidateOnWrite(t *testing.T) {
	ctx := context.Background()
	inner := seeded(t)
	c := store.NewCachedClients(inner, cache.NewMemory(time.Minute), time.Minute, slogx.Discard())

	got, err := c.FindClient(ctx, "trusted")
	require.NoError(t, err)

	got.Scopes = []string{"read"}
	require.NoError(t, c.UpsertClient(ctx, got))

	got, err = c.FindClient(ctx, "trusted")
	require.NoError(t, err)
	require.Equal(t, []string{"read"}, got.Scopes)
	require.Equal(t, 2, inner.finds)

	require.NoError(t, c.DeleteClient(ctx, "trusted"))
	_, err = c.FindClient(ctx, "trusted")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCachedClients_FallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	inner := seeded(t)
	c := store.NewCachedClients(inner, brokenCache{}, time.Minute, slogx.Discard())

	got, err := c.FindClient(ctx, "trusted")
	require.NoError(t, err)
	require.Equal(t, "trusted", got.ID)

	require.NoError(t, c.DeleteClient(ctx, "trusted"))
}
