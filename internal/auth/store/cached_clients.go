package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/cache"
	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
)

const clientKeyPrefix = "client:"

// CachedClients is a read-through cache in front of a Clients repository.
// Only FindClient is cached; writes go to the store and drop the entry.
type CachedClients struct {
	Clients
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedClients wraps inner. A nil logger uses slog.Default.
func NewCachedClients(inner Clients, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedClients {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClients{Clients: inner, cache: c, ttl: ttl, logger: logger}
}

// cachedClient is the cache encoding of domain.Client.
type cachedClient struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	SecretHash          string    `json:"secret_hash"`
	GrantTypes          []string  `json:"grant_types"`
	Authorities         []string  `json:"authorities"`
	Scopes              []string  `json:"scopes"`
	AccessTokenValidity int64     `json:"access_token_validity_ns"`
	Protected           bool      `json:"protected"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (c *CachedClients) FindClient(ctx context.Context, id string) (domain.Client, error) {
	key := clientKeyPrefix + id

	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "client cache read failed", "client_id", id, "error", err)
	} else if ok {
		var cc cachedClient
		if err := json.Unmarshal(b, &cc); err == nil {
			return domain.Client{
				ID:                  cc.ID,
				Name:                cc.Name,
				SecretHash:          cc.SecretHash,
				GrantTypes:          cc.GrantTypes,
				Authorities:         cc.Authorities,
				Scopes:              cc.Scopes,
				AccessTokenValidity: time.Duration(cc.AccessTokenValidity),
				Protected:           cc.Protected,
				CreatedAt:           cc.CreatedAt,
				UpdatedAt:           cc.UpdatedAt,
			}, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable client cache entry", "client_id", id)
	}

	client, err := c.Clients.FindClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	b, err = json.Marshal(cachedClient{
		ID:                  client.ID,
		Name:                client.Name,
		SecretHash:          client.SecretHash,
		GrantTypes:          client.GrantTypes,
		Authorities:         client.Authorities,
		Scopes:              client.Scopes,
		AccessTokenValidity: int64(client.AccessTokenValidity),
		Protected:           client.Protected,
		CreatedAt:           client.CreatedAt,
		UpdatedAt:           client.UpdatedAt,
	})
	if err == nil {
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "client cache write failed", "client_id", id, "error", err)
		}
	}
	return client, nil
}

func (c *CachedClients) UpsertClient(ctx context.Context, client domain.Client) error {
	if err := c.Clients.UpsertClient(ctx, client); err != nil {
		return err
	}
	c.invalidate(ctx, client.ID)
	return nil
}

func (c *CachedClients) DeleteClient(ctx context.Context, id string) error {
	if err := c.Clients.DeleteClient(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *CachedClients) invalidate(ctx context.Context, id string) {
	if err := c.cache.Delete(ctx, clientKeyPrefix+id); err != nil {
		c.logger.WarnContext(ctx, "client cache invalidation failed", "client_id", id, "error", err)
	}
}
