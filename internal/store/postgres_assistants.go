package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const assistantColumns = `id, uuid, organization_id, name, status, active,
	first_message, system_prompt, interaction_mode, provider, model, selected_voice,
	temperature, silence_timeout_sec, max_duration_sec, created_at, updated_at`

func (s *PostgresStore) CreateAssistant(ctx context.Context, a *Assistant) error {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AssistantDraft
	}
	if a.Details.InteractionMode == "" {
		a.Details.InteractionMode = UserSpeaksFirst
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO assistants (uuid, organization_id, name, status, active,
			first_message, system_prompt, interaction_mode, provider, model, selected_voice,
			temperature, silence_timeout_sec, max_duration_sec, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id`,
		a.UUID, a.OrganizationID, a.Name, a.Status, a.Active,
		a.Details.FirstMessage, a.Details.SystemPrompt, a.Details.InteractionMode,
		a.Details.Provider, a.Details.Model, a.Details.SelectedVoice,
		a.Details.Temperature, a.Details.SilenceTimeoutSec, a.Details.MaxDurationSec,
		a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create assistant: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) AssistantByID(ctx context.Context, id int64) (*Assistant, error) {
	return s.assistantBy(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) AssistantByUUID(ctx context.Context, uid string) (*Assistant, error) {
	return s.assistantBy(ctx, `WHERE uuid = $1`, uid)
}

func (s *PostgresStore) PublishedAssistantByUUID(ctx context.Context, uid string, organizationID int64) (*Assistant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assistantColumns+` FROM assistants
		 WHERE uuid = $1 AND organization_id = $2 AND active AND status = 'published'`,
		uid, organizationID)
	return scanAssistant(row)
}

func (s *PostgresStore) assistantBy(ctx context.Context, where string, arg any) (*Assistant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assistantColumns+` FROM assistants `+where, arg)
	return scanAssistant(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssistant(row rowScanner) (*Assistant, error) {
	var a Assistant
	err := row.Scan(&a.ID, &a.UUID, &a.OrganizationID, &a.Name, &a.Status, &a.Active,
		&a.Details.FirstMessage, &a.Details.SystemPrompt, &a.Details.InteractionMode,
		&a.Details.Provider, &a.Details.Model, &a.Details.SelectedVoice,
		&a.Details.Temperature, &a.Details.SilenceTimeoutSec, &a.Details.MaxDurationSec,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("assistant lookup: %w", translateErr(err))
	}
	return &a, nil
}

func (s *PostgresStore) ListAssistants(ctx context.Context, organizationID int64, page Page) ([]Assistant, int, error) {
	page = page.normalized()

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM assistants WHERE organization_id = $1`, organizationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assistants: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+assistantColumns+` FROM assistants
		 WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		organizationID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list assistants: %w", err)
	}
	defer rows.Close()

	var out []Assistant
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) ListPublishedAssistants(ctx context.Context, organizationID int64, allowedIDs []int64) ([]Assistant, error) {
	query := `SELECT ` + assistantColumns + ` FROM assistants
		 WHERE organization_id = $1 AND active AND status = 'published'`
	args := []any{organizationID}
	if len(allowedIDs) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, allowedIDs)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list published assistants: %w", err)
	}
	defer rows.Close()

	var out []Assistant
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateAssistant(ctx context.Context, a *Assistant) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE assistants SET name = $2, status = $3, active = $4,
			first_message = $5, system_prompt = $6, interaction_mode = $7,
			provider = $8, model = $9, selected_voice = $10,
			temperature = $11, silence_timeout_sec = $12, max_duration_sec = $13,
			updated_at = $14
		 WHERE id = $1`,
		a.ID, a.Name, a.Status, a.Active,
		a.Details.FirstMessage, a.Details.SystemPrompt, a.Details.InteractionMode,
		a.Details.Provider, a.Details.Model, a.Details.SelectedVoice,
		a.Details.Temperature, a.Details.SilenceTimeoutSec, a.Details.MaxDurationSec,
		a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update assistant: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAssistant(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assistants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
