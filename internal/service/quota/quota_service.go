// internal/service/quota/quota_service.go
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sokoni-service/internal/domain/promotion"
	"sokoni-service/internal/domain/subscription"
	"sokoni-service/internal/domain/tier"
	"sokoni-service/internal/pkg/clock"
	xerrors "sokoni-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Reason is the machine-readable code a denial carries back to the caller.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoSubscription Reason = "no_subscription"
	ReasonQuotaExceeded  Reason = "quota_exceeded"
	ReasonTierCapacity   Reason = "tier_capacity_exceeded"
	ReasonSlotFull       Reason = "promotion_slot_full"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Err maps a denial to its sentinel error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNoSubscription:
		return xerrors.ErrNoActiveSubscription
	case ReasonQuotaExceeded:
		return xerrors.ErrQuotaExceeded
	case ReasonTierCapacity:
		return xerrors.ErrTierCapacityExceeded
	case ReasonSlotFull:
		return xerrors.ErrPromotionSlotFull
	default:
		return xerrors.ErrForbidden
	}
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluate applies the subscription gate to a seller's current usage. It is
// pure so the activation path can re-run it inside its transaction on
// numbers read under the subscription row lock. A nil subscription means no
// effective subscription exists; bypass is the administrative capability
// flag, not a subscription.
func Evaluate(sub *subscription.Subscription, activeCount int, bypass bool, now time.Time) Decision {
	if bypass {
		return allow()
	}
	if sub == nil || !sub.ActiveAt(now) {
		return deny(ReasonNoSubscription)
	}
	if activeCount >= sub.MaxListings {
		return deny(ReasonQuotaExceeded)
	}
	return allow()
}

// EvaluateTier applies a tier's independent per-seller cap. The subscription
// quota is checked separately; a seller under quota can still be blocked at
// one specific tier, and may then list without the tier at priority 0.
func EvaluateTier(t *tier.Tier, activeAtTier int) Decision {
	if t.MaxAds > 0 && activeAtTier >= t.MaxAds {
		return deny(ReasonTierCapacity)
	}
	return allow()
}

// EvaluateSlot applies a promotion slot's live-occupant cap.
func EvaluateSlot(slot *promotion.Slot, activeOccupants int) Decision {
	if slot.MaxAds > 0 && activeOccupants >= slot.MaxAds {
		return deny(ReasonSlotFull)
	}
	return allow()
}

// Store dependencies, implemented by the postgres repositories.

type SubscriptionStore interface {
	FindActiveBySeller(ctx context.Context, sellerID int64, now time.Time) (*subscription.Subscription, error)
}

type ListingCounter interface {
	CountActiveBySeller(ctx context.Context, sellerID int64) (int, error)
	CountActiveAtTier(ctx context.Context, sellerID, tierID int64, now time.Time) (int, error)
}

type OccupancyCounter interface {
	CountActiveOccupants(ctx context.Context, slotID int64, now time.Time) (int, error)
}

// Service is the synchronous, read-only activation gate. It performs no
// writes; the caller owns the status transition after an allow.
type Service struct {
	subscriptions SubscriptionStore
	listings      ListingCounter
	occupancies   OccupancyCounter
	clk           clock.Clock
	logger        *zap.Logger
}

func NewService(
	subscriptions SubscriptionStore,
	listings ListingCounter,
	occupancies OccupancyCounter,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		subscriptions: subscriptions,
		listings:      listings,
		occupancies:   occupancies,
		clk:           clk,
		logger:        logger,
	}
}

// CanActivateListing answers whether the seller may hold one more active
// listing right now. bypass comes from the caller's capability claims.
func (s *Service) CanActivateListing(ctx context.Context, sellerID int64, bypass bool) (Decision, error) {
	if bypass {
		return allow(), nil
	}

	now := s.clk.Now()

	sub, err := s.subscriptions.FindActiveBySeller(ctx, sellerID, now)
	if errors.Is(err, xerrors.ErrNotFound) {
		return deny(ReasonNoSubscription), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load subscription: %w", err)
	}

	count, err := s.listings.CountActiveBySeller(ctx, sellerID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count active listings: %w", err)
	}

	decision := Evaluate(sub, count, false, now)
	if !decision.Allowed {
		s.logger.Info("listing activation denied",
			zap.Int64("seller_id", sellerID),
			zap.String("reason", string(decision.Reason)),
			zap.Int("active_listings", count),
			zap.Int("max_listings", sub.MaxListings),
		)
	}
	return decision, nil
}

// CanAssignTier answers whether the seller may hold one more active listing
// at the given tier.
func (s *Service) CanAssignTier(ctx context.Context, sellerID int64, t *tier.Tier) (Decision, error) {
	count, err := s.listings.CountActiveAtTier(ctx, sellerID, t.ID, s.clk.Now())
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count tier listings: %w", err)
	}
	return EvaluateTier(t, count), nil
}

// CanOccupySlot answers whether the promotion slot has a free live spot.
func (s *Service) CanOccupySlot(ctx context.Context, slot *promotion.Slot) (Decision, error) {
	count, err := s.occupancies.CountActiveOccupants(ctx, slot.ID, s.clk.Now())
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count slot occupants: %w", err)
	}
	return EvaluateSlot(slot, count), nil
}
