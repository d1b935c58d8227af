package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/scheduling/internal/provider"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var kind string
	var weekdays int

	err := row.Scan(
		&kind,
		&t.Provider.ID,
		&weekdays,
		&t.StartMinute,
		&t.EndMinute,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Provider.Kind = provider.Kind(kind)
	t.Weekdays = WeekdayMask(weekdays)
	return &t, nil
}

func (r *PgRepository) GetByProvider(ctx context.Context, ref provider.Ref) (*Template, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT provider_kind, provider_id, weekdays, start_minute, end_minute, active, created_at, updated_at
		FROM availability_templates
		WHERE provider_kind = $1 AND provider_id = $2
	`, ref.Kind, ref.ID)
	return scanTemplate(row)
}

func (r *PgRepository) Upsert(ctx context.Context, tpl Template) (*Template, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_templates
			(provider_kind, provider_id, weekdays, start_minute, end_minute, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (provider_kind, provider_id) DO UPDATE
		SET weekdays     = EXCLUDED.weekdays,
		    start_minute = EXCLUDED.start_minute,
		    end_minute   = EXCLUDED.end_minute,
		    active       = EXCLUDED.active,
		    updated_at   = now()
		RETURNING provider_kind, provider_id, weekdays, start_minute, end_minute, active, created_at, updated_at
	`, tpl.Provider.Kind, tpl.Provider.ID, int(tpl.Weekdays), tpl.StartMinute, tpl.EndMinute, tpl.Active)

	return scanTemplate(row)
}

func (r *PgRepository) SetActive(ctx context.Context, ref provider.Ref, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_templates
		SET active = $3,
		    updated_at = now()
		WHERE provider_kind = $1 AND provider_id = $2
	`, ref.Kind, ref.ID, active)
	if err != nil {
		return fmt.Errorf("set template active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
