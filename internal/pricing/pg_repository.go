package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/scheduling/internal/provider"
)

type PgLookup struct {
	pool *pgxpool.Pool
}

func NewPgLookup(pool *pgxpool.Pool) *PgLookup {
	return &PgLookup{pool: pool}
}

func (l *PgLookup) GetPrice(ctx context.Context, ref provider.Ref, serviceID uuid.UUID) (int64, error) {
	var amount int64
	err := l.pool.QueryRow(ctx, `
		SELECT amount
		FROM service_prices
		WHERE provider_kind = $1 AND provider_id = $2 AND service_id = $3
	`, ref.Kind, ref.ID, serviceID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPriceNotFound
		}
		return 0, err
	}
	return amount, nil
}
