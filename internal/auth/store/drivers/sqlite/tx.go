package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Clients() store.Clients         { return &clientsRepo{q: t.tx} }
func (t *txStore) SigningKeys() store.SigningKeys { return &signingKeysRepo{q: t.tx} }

// Nested transactions are not supported.
func (t *txStore) WithTx(context.Context, func(store.Store) error) error {
	return sql.ErrTxDone
}

// Migrations must be applied before any transaction starts.
func (t *txStore) ApplyMigrations() error { return nil }

// The connection is held by the transaction, so it is alive by definition.
func (t *txStore) Ping(context.Context) error { return nil }

// The caller's WithTx owns commit and rollback.
func (t *txStore) Close() error { return nil }
