package store

import (
	"context"
	"fmt"
	"time"
)

const apiKeyColumns = `id, organization_id, name, key_hash, key_prefix, allowed_assistant_ids, expires_at, active, last_used_at, created_at, updated_at`

func (s *PostgresStore) CreateAPIKey(ctx context.Context, k *APIKey) error {
	now := time.Now().UTC()
	k.CreatedAt = now
	k.UpdatedAt = now
	if k.AllowedAssistantIDs == nil {
		k.AllowedAssistantIDs = []int64{}
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (organization_id, name, key_hash, key_prefix, allowed_assistant_ids, expires_at, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		k.OrganizationID, k.Name, k.KeyHash, k.KeyPrefix, k.AllowedAssistantIDs, k.ExpiresAt, k.Active, k.CreatedAt, k.UpdatedAt,
	).Scan(&k.ID)
	if err != nil {
		return fmt.Errorf("create api key: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) APIKeyByID(ctx context.Context, id int64) (*APIKey, error) {
	return s.apiKeyBy(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) APIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	return s.apiKeyBy(ctx, `WHERE key_hash = $1`, keyHash)
}

func (s *PostgresStore) apiKeyBy(ctx context.Context, where string, arg any) (*APIKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys `+where, arg)

	var k APIKey
	err := row.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.AllowedAssistantIDs,
		&k.ExpiresAt, &k.Active, &k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("api key lookup: %w", translateErr(err))
	}
	return &k, nil
}

func (s *PostgresStore) ListAPIKeysByOrganization(ctx context.Context, organizationID int64) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE organization_id = $1 ORDER BY created_at DESC`,
		organizationID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.AllowedAssistantIDs,
			&k.ExpiresAt, &k.Active, &k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateAPIKey(ctx context.Context, k *APIKey) error {
	k.UpdatedAt = time.Now().UTC()
	if k.AllowedAssistantIDs == nil {
		k.AllowedAssistantIDs = []int64{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET name = $2, allowed_assistant_ids = $3, expires_at = $4, active = $5, updated_at = $6
		 WHERE id = $1`,
		k.ID, k.Name, k.AllowedAssistantIDs, k.ExpiresAt, k.Active, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update api key: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TouchAPIKeyLastUsed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}
