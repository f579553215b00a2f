// Package storetest holds the behaviour every store driver must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1_700_000_000, 0).UTC()

// Run exercises a driver. newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("clients", func(t *testing.T) { testClients(t, newStore(t)) })
	t.Run("signing keys", func(t *testing.T) { testSigningKeys(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTx(t, newStore(t)) })
	t.Run("rollback keeps concurrent writes", func(t *testing.T) { testTxConcurrentWrite(t, newStore(t)) })
}

func client(id string, created time.Time) domain.Client {
	return domain.Client{
		ID:                  id,
		Name:                id + " service",
		SecretHash:          "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		GrantTypes:          []string{domain.GrantClientCredentials},
		Authorities:         []string{"ROLE_CLIENT"},
		Scopes:              []string{"read", "write"},
		AccessTokenValidity: 10 * time.Minute,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
}

func testClients(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Clients()

	_, err := repo.FindClient(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	a := client("alpha", epoch)
	b := client("beta", epoch.Add(time.Minute))
	require.NoError(t, repo.CreateClient(ctx, a))
	require.NoError(t, repo.CreateClient(ctx, b))
	require.ErrorIs(t, repo.CreateClient(ctx, a), store.ErrAlreadyExists)

	got, err := repo.FindClient(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, a.Name, got.Name)
	require.Equal(t, a.SecretHash, got.SecretHash)
	require.Equal(t, a.GrantTypes, got.GrantTypes)
	require.Equal(t, a.Authorities, got.Authorities)
	require.Equal(t, a.Scopes, got.Scopes)
	require.Equal(t, a.AccessTokenValidity, got.AccessTokenValidity)
	require.True(t, a.CreatedAt.Equal(got.CreatedAt))

	list, err := repo.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "beta", list[0].ID, "newest first")

	// Upsert replaces the row but keeps its creation time.
	updated := a
	updated.Scopes = []string{"read"}
	updated.Protected = true
	updated.CreatedAt = epoch.Add(time.Hour)
	updated.UpdatedAt = epoch.Add(time.Hour)
	require.NoError(t, repo.UpsertClient(ctx, updated))

	got, err = repo.FindClient(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, []string{"read"}, got.Scopes)
	require.True(t, got.Protected)
	require.True(t, epoch.Equal(got.CreatedAt))

	require.NoError(t, repo.UpsertClient(ctx, client("gamma", epoch)))
	_, err = repo.FindClient(ctx, "gamma")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteClient(ctx, "beta"))
	require.ErrorIs(t, repo.DeleteClient(ctx, "beta"), store.ErrNotFound)
	_, err = repo.FindClient(ctx, "beta")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func key(kid string, created time.Time) domain.SigningKey {
	return domain.SigningKey{
		Kid:                 kid,
		Algorithm:           "ES256",
		PrivateKeyEncrypted: []byte("sealed-" + kid),
		CreatedAt:           created,
	}
}

func testSigningKeys(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.SigningKeys()

	_, err := repo.GetSigningKeyByKid(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.CreateSigningKey(ctx, key("k1", epoch)))
	require.NoError(t, repo.CreateSigningKey(ctx, key("k2", epoch.Add(time.Second))))
	require.ErrorIs(t, repo.CreateSigningKey(ctx, key("k1", epoch)), store.ErrAlreadyExists)

	got, err := repo.GetSigningKeyByKid(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("sealed-k1"), got.PrivateKeyEncrypted)
	require.Nil(t, got.RetiredAt)
	require.Nil(t, got.ExpiresAt)

	all, err := repo.ListAllSigningKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k2", "k1"}, kids(all))

	retired, until := epoch.Add(time.Minute), epoch.Add(time.Hour)
	require.NoError(t, repo.RetireSigningKey(ctx, "k1", retired, until))
	require.ErrorIs(t, repo.RetireSigningKey(ctx, "k1", retired, until), store.ErrNotFound, "already retired")
	require.ErrorIs(t, repo.RetireSigningKey(ctx, "nope", retired, until), store.ErrNotFound)

	active, err := repo.ListActiveSigningKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k2"}, kids(active))

	got, err = repo.GetSigningKeyByKid(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got.RetiredAt)
	require.True(t, retired.Equal(*got.RetiredAt))
	require.True(t, until.Equal(*got.ExpiresAt))

	n, err := repo.DeleteExpiredSigningKeys(ctx, until.Add(-time.Nanosecond))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = repo.DeleteExpiredSigningKeys(ctx, until)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	all, err = repo.ListAllSigningKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k2"}, kids(all))
}

func testTx(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		require.NoError(t, tx.Clients().CreateClient(ctx, client("rolled-back", epoch)))
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.Clients().FindClient(ctx, "rolled-back")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SigningKeys().CreateSigningKey(ctx, key("tx-key", epoch)); err != nil {
			return err
		}
		return tx.Clients().CreateClient(ctx, client("committed", epoch))
	})
	require.NoError(t, err)

	_, err = s.Clients().FindClient(ctx, "committed")
	require.NoError(t, err)
	_, err = s.SigningKeys().GetSigningKeyByKid(ctx, "tx-key")
	require.NoError(t, err)

	require.NoError(t, s.Ping(ctx))
}

// testTxConcurrentWrite checks that a plain write issued while a
// transaction is open survives that transaction rolling back.
func testTxConcurrentWrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	outsider := make(chan error, 1)

	err := s.WithTx(ctx, func(tx store.Store) error {
		require.NoError(t, tx.Clients().CreateClient(ctx, client("insider", epoch)))
		go func() {
			outsider <- s.Clients().CreateClient(ctx, client("outsider", epoch))
		}()
		// Give the plain write a chance to run while the transaction is open.
		time.Sleep(50 * time.Millisecond)
		return boom
	})
	require.ErrorIs(t, err, boom)

	select {
	case err := <-outsider:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("plain write did not complete after the transaction ended")
	}

	_, err = s.Clients().FindClient(ctx, "outsider")
	require.NoError(t, err)
	_, err = s.Clients().FindClient(ctx, "insider")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func kids(keys []domain.SigningKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Kid
	}
	return out
}
