// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sokoni-service/internal/domain/subscription"
	xerrors "sokoni-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `
	id, seller_id, plan_name, max_listings, status, starts_at, expires_at,
	cancelled_at, created_at, updated_at`

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(
		&s.ID, &s.SellerID, &s.PlanName, &s.MaxListings, &s.Status,
		&s.StartsAt, &s.ExpiresAt, &s.CancelledAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindActiveBySeller retrieves the seller's effective subscription. The
// predicate checks expires_at against the clock, not just the stored status,
// so a lapsed-but-unswept subscription is already invisible here.
func (r *SubscriptionRepository) FindActiveBySeller(ctx context.Context, sellerID int64, now time.Time) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE seller_id = $1 AND status = 'active' AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1
	`, subscriptionColumns)

	s, err := scanSubscription(r.db.QueryRow(ctx, query, sellerID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active subscription: %w", err)
	}

	return s, nil
}

// FindActiveBySellerForUpdate locks the subscription row for the duration of
// an activation transaction so two concurrent activations serialize on the
// quota check.
func (r *SubscriptionRepository) FindActiveBySellerForUpdate(ctx context.Context, tx pgx.Tx, sellerID int64, now time.Time) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE seller_id = $1 AND status = 'active' AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1
		FOR UPDATE
	`, subscriptionColumns)

	s, err := scanSubscription(tx.QueryRow(ctx, query, sellerID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock active subscription: %w", err)
	}

	return s, nil
}

// ExpireDueBatch marks up to limit lapsed subscriptions expired and returns
// them so the sweep can cascade to the sellers' listings. The UPDATE
// re-checks the predicate, so a concurrent run picking the same row is a
// silent no-op for one of the two.
func (r *SubscriptionRepository) ExpireDueBatch(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]subscription.Subscription, error) {
	query := fmt.Sprintf(`
		WITH due AS (
			SELECT id FROM subscriptions
			WHERE status = 'active' AND expires_at < $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE subscriptions s
		SET status = 'expired', updated_at = NOW()
		FROM due
		WHERE s.id = due.id AND s.status = 'active' AND s.expires_at < $1
		RETURNING %s
	`, qualify("s", subscriptionColumns))

	rows, err := tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []subscription.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *s)
	}

	return subs, nil
}

// qualify prefixes every column in a comma-separated list with a table alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Cancel marks a subscription cancelled on behalf of the seller workflow.
func (r *SubscriptionRepository) Cancel(ctx context.Context, id int64) error {
	query := `
		UPDATE subscriptions
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}
