package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
)

const signingKeyColumns = `kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at`

type signingKeysRepo struct {
	q querier
}

func scanSigningKey(row rowScanner) (domain.SigningKey, error) {
	var (
		k                    domain.SigningKey
		createdAt            int64
		retiredAt, expiresAt sql.NullInt64
	)
	if err := row.Scan(&k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &createdAt, &retiredAt, &expiresAt); err != nil {
		return domain.SigningKey{}, err
	}
	k.CreatedAt = fromUnix(createdAt)
	k.RetiredAt = fromNullUnix(retiredAt)
	k.ExpiresAt = fromNullUnix(expiresAt)
	return k, nil
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO signing_keys (`+signingKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		key.Kid, key.Algorithm, key.PrivateKeyEncrypted, toUnix(key.CreatedAt),
		toNullUnix(key.RetiredAt), toNullUnix(key.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+signingKeyColumns+` FROM signing_keys WHERE kid = ?`, kid)
	k, err := scanSigningKey(row)
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	return k, nil
}

func (r *signingKeysRepo) ListActiveSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, `SELECT `+signingKeyColumns+` FROM signing_keys
		WHERE retired_at IS NULL ORDER BY created_at DESC`)
}

func (r *signingKeysRepo) ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, `SELECT `+signingKeyColumns+` FROM signing_keys ORDER BY created_at DESC`)
}

func (r *signingKeysRepo) list(ctx context.Context, query string) ([]domain.SigningKey, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE signing_keys SET retired_at = ?, expires_at = ? WHERE kid = ? AND retired_at IS NULL`,
		toUnix(retiredAt), toUnix(expiresAt), kid,
	)
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

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM signing_keys WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		toUnix(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
