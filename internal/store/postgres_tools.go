package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateTool(ctx context.Context, t *Tool) error {
	if t.UUID == "" {
		t.UUID = uuid.NewString()
	}
	if t.ConfigJSON == "" {
		t.ConfigJSON = "{}"
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO tools (uuid, organization_id, name, description, kind, config_json, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		t.UUID, t.OrganizationID, t.Name, t.Description, t.Kind, t.ConfigJSON, t.Active, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create tool: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) ToolByID(ctx context.Context, id int64) (*Tool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, uuid, organization_id, name, description, kind, config_json, active, created_at, updated_at
		 FROM tools WHERE id = $1`, id)

	var t Tool
	err := row.Scan(&t.ID, &t.UUID, &t.OrganizationID, &t.Name, &t.Description, &t.Kind, &t.ConfigJSON, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("tool lookup: %w", translateErr(err))
	}
	return &t, nil
}

func (s *PostgresStore) ListTools(ctx context.Context, organizationID int64, page Page) ([]Tool, int, error) {
	page = page.normalized()

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tools WHERE organization_id = $1`, organizationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tools: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, uuid, organization_id, name, description, kind, config_json, active, created_at, updated_at
		 FROM tools WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		organizationID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []Tool
	for rows.Next() {
		var t Tool
		if err := rows.Scan(&t.ID, &t.UUID, &t.OrganizationID, &t.Name, &t.Description, &t.Kind, &t.ConfigJSON, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) UpdateTool(ctx context.Context, t *Tool) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE tools SET name = $2, description = $3, kind = $4, config_json = $5, active = $6, updated_at = $7
		 WHERE id = $1`,
		t.ID, t.Name, t.Description, t.Kind, t.ConfigJSON, t.Active, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tool: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTool(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
