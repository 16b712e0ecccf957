// internal/service/sweep/sweep_service.go
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sokoni-service/internal/domain/listing"
	"sokoni-service/internal/domain/notification"
	"sokoni-service/internal/domain/subscription"
	"sokoni-service/internal/pkg/clock"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Phase names, also the keys of the per-phase result counts.
const (
	PhaseListingLifetime = "listing_lifetime"
	PhaseSubscription    = "subscription"
	PhaseTier            = "tier"
	PhaseFeatured        = "featured"
	PhasePromotion       = "promotion"
)

var phases = []string{
	PhaseListingLifetime,
	PhaseSubscription,
	PhaseTier,
	PhaseFeatured,
	PhasePromotion,
}

// Store dependencies, implemented by the postgres repositories. Every batch
// method re-checks its expiry predicate at update time, which is what makes
// the sweep idempotent and safe under concurrent invocation: a row already
// transitioned simply fails the predicate and is skipped.

type ListingStore interface {
	ExpireLifetimeBatch(ctx context.Context, now time.Time, limit int) ([]listing.Swept, error)
	DraftActiveBySellerTx(ctx context.Context, tx pgx.Tx, sellerID int64) ([]listing.Swept, error)
	ClearExpiredTiersBatch(ctx context.Context, now time.Time, limit int) (int64, error)
	ClearExpiredFeaturedBatch(ctx context.Context, now time.Time, limit int) (int64, error)
	ClearExpiredPromotionsBatch(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

type SubscriptionStore interface {
	ExpireDueBatch(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]subscription.Subscription, error)
}

type OccupancyStore interface {
	ExpireDueOccupancies(ctx context.Context, now time.Time, limit int) (int64, error)
	ExpireForListings(ctx context.Context, listingIDs []int64) (int64, error)
}

type TxBeginner interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

// Notifier is the external notification sink. Fire-and-forget: it must never
// fail the state transition it announces.
type Notifier interface {
	Notify(ctx context.Context, userID int64, typ notification.NotificationType, title, message string, relatedID int64, relatedType string)
}

// Service is the scheduled reconciler for the five temporal grants. It is
// the only component that downgrades entitlements; it never grants them.
type Service struct {
	listings      ListingStore
	subscriptions SubscriptionStore
	occupancies   OccupancyStore
	db            TxBeginner
	notifier      Notifier
	clk           clock.Clock
	batchSize     int
	logger        *zap.Logger
}

func NewService(
	listings ListingStore,
	subscriptions SubscriptionStore,
	occupancies OccupancyStore,
	db TxBeginner,
	notifier Notifier,
	clk clock.Clock,
	batchSize int,
	logger *zap.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Service{
		listings:      listings,
		subscriptions: subscriptions,
		occupancies:   occupancies,
		db:            db,
		notifier:      notifier,
		clk:           clk,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// RunExpirySweep executes all five phases and returns affected-row counts
// per phase. Idempotent: a rerun with no intervening state change affects
// zero rows. A phase failure is logged and isolated; the remaining phases
// still run, and the failed phase's rows stay eligible for the next sweep
// because the predicates derive from current state.
func (s *Service) RunExpirySweep(ctx context.Context) (map[string]int64, error) {
	now := s.clk.Now()
	counts := make(map[string]int64, len(phases))
	var phaseErrs []error

	run := func(phase string, fn func(context.Context, time.Time) (int64, error)) {
		n, err := fn(ctx, now)
		counts[phase] = n
		if err != nil {
			s.logger.Error("sweep phase failed",
				zap.String("phase", phase),
				zap.Int64("affected", n),
				zap.Error(err),
			)
			phaseErrs = append(phaseErrs, fmt.Errorf("phase %s: %w", phase, err))
			return
		}
		if n > 0 {
			s.logger.Info("sweep phase completed",
				zap.String("phase", phase),
				zap.Int64("affected", n),
			)
		}
	}

	run(PhaseListingLifetime, s.expireListingLifetimes)
	run(PhaseSubscription, s.expireSubscriptions)
	run(PhaseTier, s.expireTiers)
	run(PhaseFeatured, s.expireFeatured)
	run(PhasePromotion, s.expirePromotions)

	return counts, errors.Join(phaseErrs...)
}

// expireListingLifetimes reverts active listings whose lifetime passed back
// to draft and tells each owner once. Batches repeat until a short batch.
func (s *Service) expireListingLifetimes(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		swept, err := s.listings.ExpireLifetimeBatch(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		total += int64(len(swept))

		s.releaseOccupancies(ctx, swept)

		for _, sw := range swept {
			s.notifier.Notify(ctx, sw.SellerID,
				notification.TypeListingExpired,
				"Listing expired",
				fmt.Sprintf("Your listing %q has expired and was moved back to drafts.", sw.Title),
				sw.ID, "listing",
			)
		}

		if len(swept) < s.batchSize {
			return total, nil
		}
	}
}

// expireSubscriptions expires lapsed subscriptions and cascades each
// seller's active listings to draft in the same transaction. The cascade
// carries its own reason code: a listing drafted here is announced as
// subscription_expired even if its own lifetime also happened to lapse.
func (s *Service) expireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		subs, drafted, err := s.expireSubscriptionBatch(ctx, now)
		if err != nil {
			return total, err
		}
		total += int64(len(subs))

		s.releaseOccupancies(ctx, drafted)

		for _, sw := range drafted {
			s.notifier.Notify(ctx, sw.SellerID,
				notification.TypeSubscriptionExpired,
				"Listing deactivated",
				fmt.Sprintf("Your listing %q was moved back to drafts because your subscription expired.", sw.Title),
				sw.ID, "listing",
			)
		}
		for _, sub := range subs {
			s.notifier.Notify(ctx, sub.SellerID,
				notification.TypeSubscriptionExpired,
				"Subscription expired",
				fmt.Sprintf("Your %s subscription has expired. Renew it to reactivate your listings.", sub.PlanName),
				sub.ID, "subscription",
			)
		}

		if len(subs) < s.batchSize {
			return total, nil
		}
	}
}

func (s *Service) expireSubscriptionBatch(ctx context.Context, now time.Time) ([]subscription.Subscription, []listing.Swept, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	subs, err := s.subscriptions.ExpireDueBatch(ctx, tx, now, s.batchSize)
	if err != nil {
		return nil, nil, err
	}

	drafted := []listing.Swept{}
	for _, sub := range subs {
		swept, err := s.listings.DraftActiveBySellerTx(ctx, tx, sub.SellerID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to cascade seller %d: %w", sub.SellerID, err)
		}
		drafted = append(drafted, swept...)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit subscription expiry: %w", err)
	}

	return subs, drafted, nil
}

func (s *Service) expireTiers(ctx context.Context, now time.Time) (int64, error) {
	return s.drainBatches(ctx, now, s.listings.ClearExpiredTiersBatch)
}

func (s *Service) expireFeatured(ctx context.Context, now time.Time) (int64, error) {
	return s.drainBatches(ctx, now, s.listings.ClearExpiredFeaturedBatch)
}

// expirePromotions clears lapsed promotion grants and reconciles the slot
// occupancy ledger so capacity counts recompute on the next allocation. Both
// updates are independently idempotent; occupancy rows missed by a crash in
// between are picked up by the occupancy predicate on the next run.
func (s *Service) expirePromotions(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		ids, err := s.listings.ClearExpiredPromotionsBatch(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		total += int64(len(ids))
		if len(ids) < s.batchSize {
			break
		}
	}

	for {
		n, err := s.occupancies.ExpireDueOccupancies(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		if n < int64(s.batchSize) {
			return total, nil
		}
	}
}

func (s *Service) drainBatches(ctx context.Context, now time.Time, batch func(context.Context, time.Time, int) (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := batch(ctx, now, s.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(s.batchSize) {
			return total, nil
		}
	}
}

// releaseOccupancies frees promotion slots held by listings that just left
// the active lifecycle, so slot capacity is not pinned until the promotion's
// own expiry. Failure here is not fatal: the occupancy predicate catches the
// rows once their expires_at passes.
func (s *Service) releaseOccupancies(ctx context.Context, swept []listing.Swept) {
	if len(swept) == 0 {
		return
	}

	ids := make([]int64, len(swept))
	for i, sw := range swept {
		ids[i] = sw.ID
	}

	if _, err := s.occupancies.ExpireForListings(ctx, ids); err != nil {
		s.logger.Warn("failed to release promotion occupancies for drafted listings",
			zap.Int("listings", len(ids)),
			zap.Error(err),
		)
	}
}
