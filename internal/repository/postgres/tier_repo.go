// internal/repository/postgres/tier_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"sokoni-service/internal/domain/tier"
	xerrors "sokoni-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TierRepository reads tier definitions. They are configuration: the engine
// never writes this table.
type TierRepository struct {
	db *pgxpool.Pool
}

func NewTierRepository(db *pgxpool.Pool) *TierRepository {
	return &TierRepository{db: db}
}

const tierColumns = `id, name, priority_weight, max_ads, duration_days, price, currency, is_active, created_at`

func scanTier(row pgx.Row) (*tier.Tier, error) {
	var t tier.Tier
	err := row.Scan(
		&t.ID, &t.Name, &t.PriorityWeight, &t.MaxAds, &t.DurationDays,
		&t.Price, &t.Currency, &t.IsActive, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByID retrieves a tier definition.
func (r *TierRepository) FindByID(ctx context.Context, id int64) (*tier.Tier, error) {
	query := fmt.Sprintf(`SELECT %s FROM tiers WHERE id = $1`, tierColumns)

	t, err := scanTier(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tier: %w", err)
	}

	return t, nil
}

// ListActive retrieves purchasable tiers ordered by weight.
func (r *TierRepository) ListActive(ctx context.Context) ([]tier.Tier, error) {
	query := fmt.Sprintf(`SELECT %s FROM tiers WHERE is_active = TRUE ORDER BY priority_weight DESC`, tierColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	defer rows.Close()

	tiers := []tier.Tier{}
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		tiers = append(tiers, *t)
	}

	return tiers, nil
}
