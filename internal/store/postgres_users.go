package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (uuid, name, surname, email, password_hash, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		u.UUID, u.Name, u.Surname, u.Email, u.PasswordHash, u.Active, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("create user: %w", translateErr(err))
	}
	if len(u.OrganizationIDs) > 0 {
		return s.SetUserOrganizations(ctx, u.ID, u.OrganizationIDs)
	}
	return nil
}

func (s *PostgresStore) UserByID(ctx context.Context, id int64) (*User, error) {
	return s.userBy(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.userBy(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *PostgresStore) userBy(ctx context.Context, where string, arg any) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, uuid, name, surname, email, password_hash, active, created_at, updated_at
		 FROM users `+where, arg)

	var u User
	err := row.Scan(&u.ID, &u.UUID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", translateErr(err))
	}
	if err := s.loadUserOrganizations(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) loadUserOrganizations(ctx context.Context, u *User) error {
	rows, err := s.pool.Query(ctx,
		`SELECT organization_id FROM user_organizations WHERE user_id = $1 ORDER BY organization_id`, u.ID)
	if err != nil {
		return fmt.Errorf("user organizations: %w", err)
	}
	defer rows.Close()

	u.OrganizationIDs = nil
	for rows.Next() {
		var orgID int64
		if err := rows.Scan(&orgID); err != nil {
			return fmt.Errorf("scan user organization: %w", err)
		}
		u.OrganizationIDs = append(u.OrganizationIDs, orgID)
	}
	return rows.Err()
}

func (s *PostgresStore) ListUsers(ctx context.Context, page Page) ([]User, int, error) {
	page = page.normalized()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, uuid, name, surname, email, password_hash, active, created_at, updated_at
		 FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.UUID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		if err := s.loadUserOrganizations(ctx, &out[i]); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET name = $2, surname = $3, email = $4, password_hash = $5, active = $6, updated_at = $7
		 WHERE id = $1`,
		u.ID, u.Name, u.Surname, u.Email, u.PasswordHash, u.Active, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetUserOrganizations(ctx context.Context, userID int64, orgIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set user organizations: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_organizations WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear user organizations: %w", err)
	}
	for _, orgID := range orgIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_organizations (user_id, organization_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, orgID); err != nil {
			return fmt.Errorf("add user organization: %w", err)
		}
	}
	return tx.Commit(ctx)
}
