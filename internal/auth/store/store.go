package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the drivers. It
// hands out sub-repositories so a transaction scoped Store exposes exactly
// the same surface.
type Store interface {
	Clients() Clients
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// WithTx runs fn in a transaction. fn receives a Store scoped to the
	// transaction; returning an error rolls it back. Transactions do not
	// nest.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
	Close() error
}

// ClientRepository is the read side the authorization flow depends on.
type ClientRepository interface {
	// FindClient returns ErrNotFound for unknown ids.
	FindClient(ctx context.Context, id string) (domain.Client, error)
}

type Clients interface {
	ClientRepository

	// ListClients returns clients newest first.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient fails with ErrAlreadyExists if the id is taken.
	CreateClient(ctx context.Context, c domain.Client) error

	// UpsertClient creates or replaces the client, keeping CreatedAt of an
	// existing row.
	UpsertClient(ctx context.Context, c domain.Client) error

	// DeleteClient returns ErrNotFound if nothing was deleted.
	DeleteClient(ctx context.Context, id string) error
}

type SigningKeys interface {
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// ListActiveSigningKeys returns the non-retired keys, newest first.
	ListActiveSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// ListAllSigningKeys returns every key, newest first.
	ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// RetireSigningKey stops a key signing and schedules the end of its
	// overlap window. Returns ErrNotFound for unknown or already retired
	// keys.
	RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error

	// DeleteExpiredSigningKeys removes keys whose overlap ended at or
	// before now and reports how many were removed.
	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}
