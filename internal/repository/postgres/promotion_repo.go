// internal/repository/postgres/promotion_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sokoni-service/internal/domain/promotion"
	xerrors "sokoni-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PromotionRepository reads slot definitions and owns the slot occupancy
// ledger that capacity checks count against.
type PromotionRepository struct {
	db *pgxpool.Pool
}

func NewPromotionRepository(db *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{db: db}
}

const slotColumns = `id, placement_key, max_ads, duration_days, price, currency, is_active, created_at`

func scanSlot(row pgx.Row) (*promotion.Slot, error) {
	var s promotion.Slot
	err := row.Scan(
		&s.ID, &s.PlacementKey, &s.MaxAds, &s.DurationDays,
		&s.Price, &s.Currency, &s.IsActive, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSlotByID retrieves a slot definition.
func (r *PromotionRepository) FindSlotByID(ctx context.Context, id int64) (*promotion.Slot, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_slots WHERE id = $1`, slotColumns)

	s, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find promotion slot: %w", err)
	}

	return s, nil
}

// FindSlotByPlacement resolves a placement key to its slot definition.
func (r *PromotionRepository) FindSlotByPlacement(ctx context.Context, placementKey string) (*promotion.Slot, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_slots WHERE placement_key = $1 AND is_active = TRUE`, slotColumns)

	s, err := scanSlot(r.db.QueryRow(ctx, query, placementKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find promotion slot: %w", err)
	}

	return s, nil
}

// CountActiveOccupants counts live occupancy of a slot. Rows whose expiry
// has passed do not count even before the sweep marks them, keeping
// capacity reads correct regardless of sweep latency.
func (r *PromotionRepository) CountActiveOccupants(ctx context.Context, slotID int64, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM promotion_occupancies
		WHERE slot_id = $1 AND status = 'active' AND expires_at > $2
	`

	var count int
	if err := r.db.QueryRow(ctx, query, slotID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count slot occupants: %w", err)
	}
	return count, nil
}

// CreateOccupancyTx records a slot occupancy alongside the promotion grant.
func (r *PromotionRepository) CreateOccupancyTx(ctx context.Context, tx pgx.Tx, o *promotion.Occupancy) error {
	query := `
		INSERT INTO promotion_occupancies (slot_id, listing_id, status, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query, o.SlotID, o.ListingID, o.Status, o.ExpiresAt).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create slot occupancy: %w", err)
	}

	return nil
}

// ExpireDueOccupancies marks lapsed occupancy rows expired so capacity
// counts recompute on the next allocation.
func (r *PromotionRepository) ExpireDueOccupancies(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `
		WITH due AS (
			SELECT id FROM promotion_occupancies
			WHERE status = 'active' AND expires_at < $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE promotion_occupancies o
		SET status = 'expired', expired_at = NOW()
		FROM due
		WHERE o.id = due.id AND o.status = 'active' AND o.expires_at < $1
	`

	result, err := r.db.Exec(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to expire slot occupancies: %w", err)
	}

	return result.RowsAffected(), nil
}

// ExpireForListings releases occupancy held by listings that left the active
// lifecycle (withdrawal, lifetime expiry, subscription cascade).
func (r *PromotionRepository) ExpireForListings(ctx context.Context, listingIDs []int64) (int64, error) {
	if len(listingIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE promotion_occupancies
		SET status = 'expired', expired_at = NOW()
		WHERE status = 'active' AND listing_id = ANY($1)
	`

	result, err := r.db.Exec(ctx, query, listingIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to expire occupancies for listings: %w", err)
	}

	return result.RowsAffected(), nil
}
