// Package memory is a map backed store for tests and single process
// deployments that do not need persistence.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
)

type Store struct {
	// txMu is held by writers and by a running transaction, so a
	// transaction never races a plain write. mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	clients map[string]domain.Client
	keys    map[string]domain.SigningKey
}

func NewStore() *Store {
	return &Store{
		clients: make(map[string]domain.Client),
		keys:    make(map[string]domain.SigningKey),
	}
}

func (s *Store) Clients() store.Clients         { return clientsRepo{s} }
func (s *Store) SigningKeys() store.SigningKeys { return signingKeysRepo{s} }

func (s *Store) ApplyMigrations() error     { return nil }
func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// WithTx runs fn against a private copy of the maps and swaps the copy in
// when fn succeeds. Plain writes wait for the transaction; reads see the
// last committed state.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &Store{clients: maps.Clone(s.clients), keys: maps.Clone(s.keys)}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.clients, s.keys = tx.clients, tx.keys
	s.mu.Unlock()
	return nil
}

// lockWrite takes both locks for a plain write and returns the unlock.
func (s *Store) lockWrite() func() {
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

type clientsRepo struct{ s *Store }

func (r clientsRepo) FindClient(ctx context.Context, id string) (domain.Client, error) {
	if err := ctx.Err(); err != nil {
		return domain.Client{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.clients[id]
	if !ok {
		return domain.Client{}, store.ErrNotFound
	}
	return cloneClient(c), nil
}

func (r clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Client, 0, len(r.s.clients))
	for _, c := range r.s.clients {
		out = append(out, cloneClient(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.s.lockWrite()()

	if _, ok := r.s.clients[c.ID]; ok {
		return store.ErrAlreadyExists
	}
	r.s.clients[c.ID] = cloneClient(c)
	return nil
}

func (r clientsRepo) UpsertClient(ctx context.Context, c domain.Client) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.s.lockWrite()()

	if prev, ok := r.s.clients[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	r.s.clients[c.ID] = cloneClient(c)
	return nil
}

func (r clientsRepo) DeleteClient(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.s.lockWrite()()

	if _, ok := r.s.clients[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.clients, id)
	return nil
}

func cloneClient(c domain.Client) domain.Client {
	c.GrantTypes = slices.Clone(c.GrantTypes)
	c.Authorities = slices.Clone(c.Authorities)
	c.Scopes = slices.Clone(c.Scopes)
	return c
}

type signingKeysRepo struct{ s *Store }

func (r signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.s.lockWrite()()

	if _, ok := r.s.keys[key.Kid]; ok {
		return store.ErrAlreadyExists
	}
	r.s.keys[key.Kid] = cloneKey(key)
	return nil
}

func (r signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	if err := ctx.Err(); err != nil {
		return domain.SigningKey{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.keys[kid]
	if !ok {
		return domain.SigningKey{}, store.ErrNotFound
	}
	return cloneKey(k), nil
}

func (r signingKeysRepo) ListActiveSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, domain.SigningKey.IsActive)
}

func (r signingKeysRepo) ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, func(domain.SigningKey) bool { return true })
}

func (r signingKeysRepo) list(ctx context.Context, keep func(domain.SigningKey) bool) ([]domain.SigningKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.SigningKey
	for _, k := range r.s.keys {
		if keep(k) {
			out = append(out, cloneKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.s.lockWrite()()

	k, ok := r.s.keys[kid]
	if !ok || k.RetiredAt != nil {
		return store.ErrNotFound
	}
	k.RetiredAt, k.ExpiresAt = &retiredAt, &expiresAt
	r.s.keys[kid] = k
	return nil
}

func (r signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer r.s.lockWrite()()

	var n int64
	for kid, k := range r.s.keys {
		if k.IsExpired(now) {
			delete(r.s.keys, kid)
			n++
		}
	}
	return n, nil
}

func cloneKey(k domain.SigningKey) domain.SigningKey {
	k.PrivateKeyEncrypted = slices.Clone(k.PrivateKeyEncrypted)
	if k.RetiredAt != nil {
		t := *k.RetiredAt
		k.RetiredAt = &t
	}
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		k.ExpiresAt = &t
	}
	return k
}
