// internal/repository/postgres/listing_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sokoni-service/internal/domain/listing"
	xerrors "sokoni-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const listingColumns = `
	id, reference, seller_id, category_id, title, description, price, currency, photos, status,
	listing_expires_at,
	tier_id, tier_priority, tier_expires_at,
	is_featured, featured_until,
	promotion_slot_id, promotion_expires_at,
	bumped_at, created_at, updated_at`

type ListingRepository struct {
	db *pgxpool.Pool
}

func NewListingRepository(db *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{db: db}
}

func scanListing(row pgx.Row) (*listing.Listing, error) {
	var l listing.Listing
	var photos []string

	err := row.Scan(
		&l.ID, &l.Reference, &l.SellerID, &l.CategoryID, &l.Title, &l.Description,
		&l.Price, &l.Currency, pq.Array(&photos), &l.Status,
		&l.ListingExpiresAt,
		&l.TierID, &l.TierPriority, &l.TierExpiresAt,
		&l.IsFeatured, &l.FeaturedUntil,
		&l.PromotionSlotID, &l.PromotionExpiresAt,
		&l.BumpedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Photos = photos
	return &l, nil
}

// Create inserts a new draft listing.
func (r *ListingRepository) Create(ctx context.Context, l *listing.Listing) error {
	query := `
		INSERT INTO listings (
			reference, seller_id, category_id, title, description, price, currency, photos, status,
			listing_expires_at, bumped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, bumped_at, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		l.Reference, l.SellerID, l.CategoryID, l.Title, l.Description,
		l.Price, l.Currency, pq.Array(l.Photos), l.Status,
		l.ListingExpiresAt,
	).Scan(&l.ID, &l.BumpedAt, &l.CreatedAt, &l.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

// FindByID retrieves a listing by ID.
func (r *ListingRepository) FindByID(ctx context.Context, id int64) (*listing.Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM listings WHERE id = $1`, listingColumns)

	l, err := scanListing(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}

	return l, nil
}

// CountActiveBySeller counts the seller's currently active listings.
func (r *ListingRepository) CountActiveBySeller(ctx context.Context, sellerID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE seller_id = $1 AND status = 'active'`,
		sellerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active listings: %w", err)
	}
	return count, nil
}

// CountActiveBySellerTx is the transactional variant used while the
// subscription row is locked during activation.
func (r *ListingRepository) CountActiveBySellerTx(ctx context.Context, tx pgx.Tx, sellerID int64) (int, error) {
	var count int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE seller_id = $1 AND status = 'active'`,
		sellerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active listings: %w", err)
	}
	return count, nil
}

// CountActiveAtTier counts the seller's active listings holding an unexpired
// grant of the given tier.
func (r *ListingRepository) CountActiveAtTier(ctx context.Context, sellerID, tierID int64, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM listings
		WHERE seller_id = $1 AND status = 'active'
		  AND tier_id = $2 AND tier_expires_at > $3
	`

	var count int
	if err := r.db.QueryRow(ctx, query, sellerID, tierID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tier listings: %w", err)
	}
	return count, nil
}

// ListActive retrieves one page of a category's active listings in effective
// entitlement order. The ORDER BY mirrors the ranking key (promotion in the
// rendered slot, then live tier priority, then live featured, then bump
// recency), so precedence holds across page boundaries and not just within
// the fetched page; ranking.Sort re-applies the same precedence in memory at
// render time against the service clock.
func (r *ListingRepository) ListActive(ctx context.Context, filters *listing.ListFilters, slotID int64, now time.Time) ([]listing.Listing, int64, error) {
	countQuery := `SELECT COUNT(*) FROM listings WHERE status = 'active' AND category_id = $1`

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, filters.CategoryID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`
		SELECT %s FROM listings
		WHERE status = 'active' AND category_id = $1
		ORDER BY
			COALESCE(promotion_slot_id = $4 AND promotion_expires_at > $5, FALSE) DESC,
			CASE WHEN tier_id IS NOT NULL AND COALESCE(tier_expires_at > $5, TRUE)
				THEN tier_priority ELSE 0 END DESC,
			COALESCE(is_featured AND featured_until > $5, FALSE) DESC,
			bumped_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, listingColumns)

	rows, err := r.db.Query(ctx, query, filters.CategoryID, filters.PageSize, offset, slotID, now)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	listings := []listing.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}

	return listings, total, nil
}

// UpdateStatusTx performs a conditional lifecycle transition inside a
// transaction. The WHERE clause re-checks the expected current status, so a
// row already moved by a concurrent writer matches zero rows and the caller
// gets ok=false instead of a silent double transition. Leaving `active`
// for `draft` clears every entitlement grant in the same statement.
func (r *ListingRepository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id int64, from, to listing.Status) (bool, error) {
	var query string
	if from == listing.StatusActive && to == listing.StatusDraft {
		query = `
			UPDATE listings
			SET status = $1,
			    tier_id = NULL, tier_priority = 0, tier_expires_at = NULL,
			    is_featured = FALSE, featured_until = NULL,
			    promotion_slot_id = NULL, promotion_expires_at = NULL,
			    updated_at = NOW()
			WHERE id = $2 AND status = $3
		`
	} else {
		query = `UPDATE listings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	}

	result, err := tx.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update listing status: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// UpdateStatus is the non-transactional variant of UpdateStatusTx.
func (r *ListingRepository) UpdateStatus(ctx context.Context, id int64, from, to listing.Status) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := r.UpdateStatusTx(ctx, tx, id, from, to)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit status update: %w", err)
	}

	return ok, nil
}

// AssignTier writes all three tier columns together with a fresh future
// expiry. Overwriting the whole grant in one statement means a stale,
// not-yet-swept tier can never bleed into a new purchase.
func (r *ListingRepository) AssignTier(ctx context.Context, listingID, tierID int64, priority int, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE listings
		SET tier_id = $1, tier_priority = $2, tier_expires_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'active'
	`

	result, err := r.db.Exec(ctx, query, tierID, priority, expiresAt, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to assign tier: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// SetFeatured grants the featured boost until the given instant.
func (r *ListingRepository) SetFeatured(ctx context.Context, listingID int64, until time.Time) (bool, error) {
	query := `
		UPDATE listings
		SET is_featured = TRUE, featured_until = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'active'
	`

	result, err := r.db.Exec(ctx, query, until, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to set featured: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// AssignPromotionTx writes the promotion grant; the caller records the slot
// occupancy row in the same transaction.
func (r *ListingRepository) AssignPromotionTx(ctx context.Context, tx pgx.Tx, listingID, slotID int64, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE listings
		SET promotion_slot_id = $1, promotion_expires_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'active'
	`

	result, err := tx.Exec(ctx, query, slotID, expiresAt, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to assign promotion: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Bump refreshes the recency stamp used as the ranking tie-break.
func (r *ListingRepository) Bump(ctx context.Context, id, sellerID int64) (bool, error) {
	query := `
		UPDATE listings SET bumped_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND seller_id = $2 AND status = 'active'
	`

	result, err := r.db.Exec(ctx, query, id, sellerID)
	if err != nil {
		return false, fmt.Errorf("failed to bump listing: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// --- Sweep phase queries ---
//
// Every phase selects a bounded batch with FOR UPDATE SKIP LOCKED and
// re-checks the full expiry predicate in the UPDATE, so overlapping sweep
// runs partition the work instead of double-processing rows. An update that
// matches zero rows is a correct silent no-op.

// ExpireLifetimeBatch reverts up to limit active listings whose lifetime has
// passed back to draft, clearing their grants, and returns the affected rows
// for notification.
func (r *ListingRepository) ExpireLifetimeBatch(ctx context.Context, now time.Time, limit int) ([]listing.Swept, error) {
	query := `
		WITH due AS (
			SELECT id FROM listings
			WHERE status = 'active' AND listing_expires_at IS NOT NULL AND listing_expires_at < $1
			ORDER BY listing_expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE listings l
		SET status = 'draft',
		    tier_id = NULL, tier_priority = 0, tier_expires_at = NULL,
		    is_featured = FALSE, featured_until = NULL,
		    promotion_slot_id = NULL, promotion_expires_at = NULL,
		    updated_at = NOW()
		FROM due
		WHERE l.id = due.id AND l.status = 'active' AND l.listing_expires_at < $1
		RETURNING l.id, l.seller_id, l.title
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to expire listing lifetimes: %w", err)
	}
	defer rows.Close()

	return collectSwept(rows)
}

// DraftActiveBySellerTx reverts all of a seller's active listings to draft
// within the subscription-expiry transaction and returns them for the
// cascade notifications.
func (r *ListingRepository) DraftActiveBySellerTx(ctx context.Context, tx pgx.Tx, sellerID int64) ([]listing.Swept, error) {
	query := `
		UPDATE listings
		SET status = 'draft',
		    tier_id = NULL, tier_priority = 0, tier_expires_at = NULL,
		    is_featured = FALSE, featured_until = NULL,
		    promotion_slot_id = NULL, promotion_expires_at = NULL,
		    updated_at = NOW()
		WHERE seller_id = $1 AND status = 'active'
		RETURNING id, seller_id, title
	`

	rows, err := tx.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to draft seller listings: %w", err)
	}
	defer rows.Close()

	return collectSwept(rows)
}

// ClearExpiredTiersBatch clears up to limit expired tier grants. All three
// tier columns reset together; lifecycle status is untouched because a tierless
// active listing is the normal free state.
func (r *ListingRepository) ClearExpiredTiersBatch(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `
		WITH due AS (
			SELECT id FROM listings
			WHERE tier_id IS NOT NULL AND tier_priority > 0
			  AND tier_expires_at IS NOT NULL AND tier_expires_at < $1
			ORDER BY tier_expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE listings l
		SET tier_id = NULL, tier_priority = 0, tier_expires_at = NULL, updated_at = NOW()
		FROM due
		WHERE l.id = due.id AND l.tier_expires_at < $1
	`

	result, err := r.db.Exec(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired tiers: %w", err)
	}

	return result.RowsAffected(), nil
}

// ClearExpiredFeaturedBatch clears up to limit expired featured boosts.
func (r *ListingRepository) ClearExpiredFeaturedBatch(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `
		WITH due AS (
			SELECT id FROM listings
			WHERE is_featured = TRUE AND featured_until IS NOT NULL AND featured_until < $1
			ORDER BY featured_until
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE listings l
		SET is_featured = FALSE, featured_until = NULL, updated_at = NOW()
		FROM due
		WHERE l.id = due.id AND l.featured_until < $1
	`

	result, err := r.db.Exec(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired featured flags: %w", err)
	}

	return result.RowsAffected(), nil
}

// ClearExpiredPromotionsBatch clears up to limit expired promotion grants and
// returns the affected listing ids so the occupancy ledger can be reconciled.
func (r *ListingRepository) ClearExpiredPromotionsBatch(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	query := `
		WITH due AS (
			SELECT id FROM listings
			WHERE promotion_slot_id IS NOT NULL
			  AND promotion_expires_at IS NOT NULL AND promotion_expires_at < $1
			ORDER BY promotion_expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE listings l
		SET promotion_slot_id = NULL, promotion_expires_at = NULL, updated_at = NOW()
		FROM due
		WHERE l.id = due.id AND l.promotion_expires_at < $1
		RETURNING l.id
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to clear expired promotions: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan listing id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func collectSwept(rows pgx.Rows) ([]listing.Swept, error) {
	swept := []listing.Swept{}
	for rows.Next() {
		var s listing.Swept
		if err := rows.Scan(&s.ID, &s.SellerID, &s.Title); err != nil {
			return nil, fmt.Errorf("failed to scan swept listing: %w", err)
		}
		swept = append(swept, s)
	}
	return swept, nil
}
