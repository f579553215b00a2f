package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
)

const clientColumns = `id, name, secret_hash, grant_types, authorities, scopes,
	access_token_validity_seconds, protected, created_at, updated_at`

type clientsRepo struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		c                           domain.Client
		grants, authorities, scopes string
		validitySeconds             int64
		protected                   bool
		createdAt, updatedAt        int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.SecretHash, &grants, &authorities, &scopes,
		&validitySeconds, &protected, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, err
	}

	c.GrantTypes = splitFields(grants)
	c.Authorities = splitFields(authorities)
	c.Scopes = splitFields(scopes)
	c.AccessTokenValidity = time.Duration(validitySeconds) * time.Second
	c.Protected = protected
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return c, nil
}

func (r *clientsRepo) FindClient(ctx context.Context, id string) (domain.Client, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clientArgs(c)...,
	)
	return mapConstraint(err)
}

func (r *clientsRepo) UpsertClient(ctx context.Context, c domain.Client) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			secret_hash = excluded.secret_hash,
			grant_types = excluded.grant_types,
			authorities = excluded.authorities,
			scopes = excluded.scopes,
			access_token_validity_seconds = excluded.access_token_validity_seconds,
			protected = excluded.protected,
			updated_at = excluded.updated_at`,
		clientArgs(c)...,
	)
	return err
}

func (r *clientsRepo) DeleteClient(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func clientArgs(c domain.Client) []any {
	return []any{
		c.ID,
		c.Name,
		c.SecretHash,
		joinFields(c.GrantTypes),
		joinFields(c.Authorities),
		joinFields(c.Scopes),
		int64(c.AccessTokenValidity / time.Second),
		c.Protected,
		toUnix(c.CreatedAt),
		toUnix(c.UpdatedAt),
	}
}
