package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.UUID == "" {
		org.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (uuid, name, short_name, parent_id, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		org.UUID, org.Name, org.ShortName, org.ParentID, org.Active, org.CreatedAt, org.UpdatedAt,
	).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("create organization: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) OrganizationByID(ctx context.Context, id int64) (*Organization, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, uuid, name, short_name, parent_id, active, created_at, updated_at
		 FROM organizations WHERE id = $1`, id)

	var org Organization
	err := row.Scan(&org.ID, &org.UUID, &org.Name, &org.ShortName, &org.ParentID, &org.Active, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("organization by id: %w", translateErr(err))
	}
	return &org, nil
}

func (s *PostgresStore) ListOrganizations(ctx context.Context, page Page) ([]Organization, int, error) {
	page = page.normalized()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM organizations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, uuid, name, short_name, parent_id, active, created_at, updated_at
		 FROM organizations ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.UUID, &org.Name, &org.ShortName, &org.ParentID, &org.Active, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, org)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) UpdateOrganization(ctx context.Context, org *Organization) error {
	org.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE organizations SET name = $2, short_name = $3, parent_id = $4, active = $5, updated_at = $6
		 WHERE id = $1`,
		org.ID, org.Name, org.ShortName, org.ParentID, org.Active, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update organization: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteOrganization(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
