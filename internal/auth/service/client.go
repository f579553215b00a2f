package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
	"github.com/aussiebroadwan/tokensmith/pkg/idx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// SecretHasher hashes new client secrets. *cryptox.SecretHasher
// implements it.
type SecretHasher interface {
	Hash(secret string) (string, error)
}

type ClientService struct {
	Clients store.Clients
	Hasher  SecretHasher
	Clock   func() time.Time
}

// NewClient describes a client to register.
type NewClient struct {
	ID                  string // generated when empty
	Name                string
	GrantTypes          []string // defaults to client_credentials
	Authorities         []string
	Scopes              []string
	AccessTokenValidity time.Duration
}

// CreateClient registers a client with a generated secret. The plaintext
// secret is returned once and only its hash is stored.
func (s *ClientService) CreateClient(ctx context.Context, req NewClient) (domain.Client, string, error) {
	l := slogx.FromContext(ctx)

	client, err := s.prepare(req)
	if err != nil {
		return domain.Client{}, "", err
	}

	secret, err := cryptox.GenerateClientSecret()
	if err != nil {
		l.ErrorContext(ctx, "failed to generate client secret", "error", err)
		return domain.Client{}, "", err
	}
	if client.SecretHash, err = s.Hasher.Hash(secret); err != nil {
		l.ErrorContext(ctx, "failed to hash client secret", "error", err)
		return domain.Client{}, "", err
	}

	if err := s.Clients.CreateClient(ctx, client); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Client{}, "", ErrClientExists
		}
		l.ErrorContext(ctx, "failed to create client", "error", err)
		return domain.Client{}, "", err
	}

	l.InfoContext(ctx, "client created", "client_id", client.ID, "name", client.Name)
	return client, secret, nil
}

// ListClients returns all registered clients.
func (s *ClientService) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.Clients.ListClients(ctx)
}

// DeleteClient removes a client. Protected clients are refused.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	l := slogx.FromContext(ctx)

	client, err := s.Clients.FindClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClientNotFound
		}
		return err
	}
	if client.Protected {
		l.WarnContext(ctx, "attempted to delete protected client", "client_id", clientID)
		return ErrClientProtected
	}

	if err := s.Clients.DeleteClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClientNotFound
		}
		l.ErrorContext(ctx, "failed to delete client", "error", err, "client_id", clientID)
		return err
	}

	l.InfoContext(ctx, "client deleted", "client_id", clientID)
	return nil
}

// SeedClient registers or refreshes a protected client from configuration.
// Running it again with the same input leaves the client usable with the
// same secret.
func (s *ClientService) SeedClient(ctx context.Context, req NewClient, secret string) (domain.Client, error) {
	if req.ID == "" {
		return domain.Client{}, fmt.Errorf("%w: seeded client needs an id", ErrInvalidMetadata)
	}
	if secret == "" {
		return domain.Client{}, fmt.Errorf("%w: seeded client needs a secret", ErrInvalidMetadata)
	}

	client, err := s.prepare(req)
	if err != nil {
		return domain.Client{}, err
	}
	client.Protected = true
	if client.SecretHash, err = s.Hasher.Hash(secret); err != nil {
		return domain.Client{}, fmt.Errorf("hash seeded secret: %w", err)
	}

	if err := s.Clients.UpsertClient(ctx, client); err != nil {
		return domain.Client{}, fmt.Errorf("seed client %s: %w", client.ID, err)
	}

	slogx.FromContext(ctx).InfoContext(ctx, "client seeded",
		"client_id", client.ID,
		"authorities", client.Authorities,
		"scopes", client.Scopes,
	)
	return client, nil
}

func (s *ClientService) prepare(req NewClient) (domain.Client, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.ID
	}
	if name == "" {
		return domain.Client{}, fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if req.AccessTokenValidity < 0 {
		return domain.Client{}, fmt.Errorf("%w: access token validity must not be negative", ErrInvalidMetadata)
	}

	for field, values := range map[string][]string{
		"grant type": req.GrantTypes,
		"authority":  req.Authorities,
		"scope":      req.Scopes,
	} {
		if err := checkTokens(field, values); err != nil {
			return domain.Client{}, err
		}
	}

	grants := dedupe(req.GrantTypes)
	if len(grants) == 0 {
		grants = []string{domain.GrantClientCredentials}
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = idx.New().String()
	}

	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}
	now = now.UTC()

	return domain.Client{
		ID:                  id,
		Name:                name,
		GrantTypes:          grants,
		Authorities:         dedupe(req.Authorities),
		Scopes:              dedupe(req.Scopes),
		AccessTokenValidity: req.AccessTokenValidity,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// checkTokens rejects values with inner whitespace. Scope, authority and
// grant lists are space separated on the wire and in storage.
func checkTokens(field string, values []string) error {
	for _, v := range values {
		if strings.ContainsFunc(strings.TrimSpace(v), unicode.IsSpace) {
			return fmt.Errorf("%w: %s %q contains whitespace", ErrInvalidMetadata, field, v)
		}
	}
	return nil
}
