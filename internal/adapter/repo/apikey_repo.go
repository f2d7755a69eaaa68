package repo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tryon/internal/domain"
)

// ApiKeyRepositoryPG implements domain.ApiKeyRepository on PostgreSQL.
type ApiKeyRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewApiKeyRepository creates a new API key repository backed by PostgreSQL.
func NewApiKeyRepository(pool *pgxpool.Pool) *ApiKeyRepositoryPG {
	return &ApiKeyRepositoryPG{pool: pool}
}

const apiKeyColumns = `id, name, key, is_active, rpm_limit, created_at, last_used_at, revoked_at`

// Create mints a new active key with a random secret.
func (r *ApiKeyRepositoryPG) Create(ctx context.Context, name string, rpmLimit int) (*domain.ApiKey, error) {
	if rpmLimit <= 0 {
		rpmLimit = 60
	}
	secret, err := generateKey()
	if err != nil {
		return nil, err
	}
	query := `
INSERT INTO api_keys (name, key, is_active, rpm_limit)
VALUES ($1, $2, TRUE, $3)
RETURNING ` + apiKeyColumns + `;
`
	return scanApiKey(r.pool.QueryRow(ctx, query, name, secret, rpmLimit))
}

// GetActiveByKey resolves an active key by its secret.
func (r *ApiKeyRepositoryPG) GetActiveByKey(ctx context.Context, key string) (*domain.ApiKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key = $1 AND is_active;`
	apiKey, err := scanApiKey(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return apiKey, nil
}

// TouchLastUsed stamps the key's last use.
func (r *ApiKeyRepositoryPG) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1;`, id)
	return err
}

// Revoke deactivates a key.
func (r *ApiKeyRepositoryPG) Revoke(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET is_active = FALSE, revoked_at = now() WHERE id = $1 AND is_active;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns keys ordered by creation time descending.
func (r *ApiKeyRepositoryPG) List(ctx context.Context, limit int) ([]domain.ApiKey, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM api_keys ORDER BY created_at DESC LIMIT %d;`, apiKeyColumns, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.ApiKey
	for rows.Next() {
		key, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "tk_" + hex.EncodeToString(buf), nil
}

func scanApiKey(row pgx.Row) (*domain.ApiKey, error) {
	var key domain.ApiKey
	if err := row.Scan(
		&key.ID,
		&key.Name,
		&key.Key,
		&key.IsActive,
		&key.RPMLimit,
		&key.CreatedAt,
		&key.LastUsedAt,
		&key.RevokedAt,
	); err != nil {
		return nil, err
	}
	return &key, nil
}

var _ domain.ApiKeyRepository = (*ApiKeyRepositoryPG)(nil)
