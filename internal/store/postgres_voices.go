package store

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const voiceColumns = `id, slug, name, provider, gender, language, preview_url, featured, active, created_at, updated_at`

func (s *PostgresStore) CreateVoice(ctx context.Context, v *Voice) error {
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO voices (slug, name, provider, gender, language, preview_url, featured, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		v.Slug, v.Name, v.Provider, v.Gender, v.Language, v.PreviewURL, v.Featured, v.Active, v.CreatedAt, v.UpdatedAt,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("create voice: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) VoiceByID(ctx context.Context, id int64) (*Voice, error) {
	return s.voiceBy(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) VoiceBySlug(ctx context.Context, slug string) (*Voice, error) {
	return s.voiceBy(ctx, `WHERE slug = $1`, slug)
}

func (s *PostgresStore) voiceBy(ctx context.Context, where string, arg any) (*Voice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+voiceColumns+` FROM voices `+where, arg)

	var v Voice
	err := row.Scan(&v.ID, &v.Slug, &v.Name, &v.Provider, &v.Gender, &v.Language, &v.PreviewURL, &v.Featured, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("voice lookup: %w", translateErr(err))
	}
	return &v, nil
}

func (s *PostgresStore) ListVoices(ctx context.Context, filter VoiceFilter, page Page) ([]Voice, int, error) {
	page = page.normalized()

	where := ` WHERE active`
	var args []any
	add := func(clause, value string) {
		args = append(args, value)
		where += ` AND ` + clause + ` = $` + strconv.Itoa(len(args))
	}
	if filter.Provider != "" {
		add("provider", filter.Provider)
	}
	if filter.Language != "" {
		add("language", filter.Language)
	}
	if filter.Gender != "" {
		add("gender", filter.Gender)
	}
	if filter.Featured != nil {
		args = append(args, *filter.Featured)
		where += ` AND featured = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM voices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count voices: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	query := `SELECT ` + voiceColumns + ` FROM voices` + where +
		` ORDER BY name LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list voices: %w", err)
	}
	defer rows.Close()

	var out []Voice
	for rows.Next() {
		var v Voice
		if err := rows.Scan(&v.ID, &v.Slug, &v.Name, &v.Provider, &v.Gender, &v.Language, &v.PreviewURL, &v.Featured, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan voice: %w", err)
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) FeaturedVoices(ctx context.Context) ([]Voice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+voiceColumns+` FROM voices WHERE active AND featured ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("featured voices: %w", err)
	}
	defer rows.Close()

	var out []Voice
	for rows.Next() {
		var v Voice
		if err := rows.Scan(&v.ID, &v.Slug, &v.Name, &v.Provider, &v.Gender, &v.Language, &v.PreviewURL, &v.Featured, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan voice: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateVoice(ctx context.Context, v *Voice) error {
	v.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE voices SET slug = $2, name = $3, provider = $4, gender = $5, language = $6,
			preview_url = $7, featured = $8, active = $9, updated_at = $10
		 WHERE id = $1`,
		v.ID, v.Slug, v.Name, v.Provider, v.Gender, v.Language, v.PreviewURL, v.Featured, v.Active, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update voice: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteVoice(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM voices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete voice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
