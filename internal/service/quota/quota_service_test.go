package quota

import (
	"context"
	"testing"
	"time"

	"sokoni-service/internal/domain/promotion"
	"sokoni-service/internal/domain/subscription"
	"sokoni-service/internal/domain/tier"
	"sokoni-service/internal/pkg/clock"
	xerrors "sokoni-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var quotaNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activeSub(maxListings int) *subscription.Subscription {
	return &subscription.Subscription{
		ID:          1,
		SellerID:    10,
		PlanName:    "standard",
		MaxListings: maxListings,
		Status:      subscription.StatusActive,
		StartsAt:    quotaNow.Add(-24 * time.Hour),
		ExpiresAt:   quotaNow.Add(24 * time.Hour),
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	t.Run("allows under quota", func(t *testing.T) {
		d := Evaluate(activeSub(5), 4, false, quotaNow)
		assert.True(t, d.Allowed)
		assert.NoError(t, d.Err())
	})

	t.Run("denies at quota", func(t *testing.T) {
		d := Evaluate(activeSub(5), 5, false, quotaNow)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonQuotaExceeded, d.Reason)
		assert.ErrorIs(t, d.Err(), xerrors.ErrQuotaExceeded)
	})

	t.Run("denies without subscription", func(t *testing.T) {
		d := Evaluate(nil, 0, false, quotaNow)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonNoSubscription, d.Reason)
		assert.ErrorIs(t, d.Err(), xerrors.ErrNoActiveSubscription)
	})

	t.Run("lapsed subscription counts as none", func(t *testing.T) {
		sub := activeSub(5)
		sub.ExpiresAt = quotaNow.Add(-time.Second)

		d := Evaluate(sub, 0, false, quotaNow)
		assert.Equal(t, ReasonNoSubscription, d.Reason)
	})

	t.Run("cancelled subscription counts as none", func(t *testing.T) {
		sub := activeSub(5)
		sub.Status = subscription.StatusCancelled

		d := Evaluate(sub, 0, false, quotaNow)
		assert.Equal(t, ReasonNoSubscription, d.Reason)
	})

	t.Run("bypass skips every check", func(t *testing.T) {
		d := Evaluate(nil, 100, true, quotaNow)
		assert.True(t, d.Allowed)
	})
}

func TestEvaluateTier(t *testing.T) {
	t.Parallel()

	premium := &tier.Tier{ID: 2, Name: "premium", PriorityWeight: 90, MaxAds: 2}

	assert.True(t, EvaluateTier(premium, 1).Allowed)

	d := EvaluateTier(premium, 2)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonTierCapacity, d.Reason)
	assert.ErrorIs(t, d.Err(), xerrors.ErrTierCapacityExceeded)

	uncapped := &tier.Tier{ID: 3, Name: "basic", MaxAds: 0}
	assert.True(t, EvaluateTier(uncapped, 1000).Allowed, "zero max_ads means uncapped")
}

func TestEvaluateSlot(t *testing.T) {
	t.Parallel()

	slot := &promotion.Slot{ID: 5, PlacementKey: "homepage_top", MaxAds: 3}

	assert.True(t, EvaluateSlot(slot, 2).Allowed)

	d := EvaluateSlot(slot, 3)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSlotFull, d.Reason)
	assert.ErrorIs(t, d.Err(), xerrors.ErrPromotionSlotFull)
}

// ---- Service-level gate with fake stores ----

type fakeSubStore struct {
	sub *subscription.Subscription
	err error
}

func (f *fakeSubStore) FindActiveBySeller(ctx context.Context, sellerID int64, now time.Time) (*subscription.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type fakeCounter struct {
	active int
	atTier int
}

func (f *fakeCounter) CountActiveBySeller(ctx context.Context, sellerID int64) (int, error) {
	return f.active, nil
}

func (f *fakeCounter) CountActiveAtTier(ctx context.Context, sellerID, tierID int64, now time.Time) (int, error) {
	return f.atTier, nil
}

type fakeOccCounter struct {
	occupants int
}

func (f *fakeOccCounter) CountActiveOccupants(ctx context.Context, slotID int64, now time.Time) (int, error) {
	return f.occupants, nil
}

func newGate(sub *subscription.Subscription, subErr error, active, atTier, occupants int) *Service {
	return NewService(
		&fakeSubStore{sub: sub, err: subErr},
		&fakeCounter{active: active, atTier: atTier},
		&fakeOccCounter{occupants: occupants},
		clock.NewFixed(quotaNow),
		zap.NewNop(),
	)
}

func TestCanActivateListing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("allows under quota", func(t *testing.T) {
		d, err := newGate(activeSub(5), nil, 4, 0, 0).CanActivateListing(ctx, 10, false)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("denies fifth listing on a five-cap plan already full", func(t *testing.T) {
		d, err := newGate(activeSub(5), nil, 5, 0, 0).CanActivateListing(ctx, 10, false)
		require.NoError(t, err)
		assert.Equal(t, ReasonQuotaExceeded, d.Reason)
	})

	t.Run("missing subscription is a denial, not an error", func(t *testing.T) {
		d, err := newGate(nil, xerrors.ErrNotFound, 0, 0, 0).CanActivateListing(ctx, 10, false)
		require.NoError(t, err)
		assert.Equal(t, ReasonNoSubscription, d.Reason)
	})

	t.Run("bypass never touches the stores", func(t *testing.T) {
		d, err := newGate(nil, xerrors.ErrInternal, 0, 0, 0).CanActivateListing(ctx, 10, true)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})
}

func TestCanAssignTier(t *testing.T) {
	t.Parallel()

	premium := &tier.Tier{ID: 2, MaxAds: 2}

	d, err := newGate(activeSub(5), nil, 1, 2, 0).CanAssignTier(context.Background(), 10, premium)
	require.NoError(t, err)
	assert.Equal(t, ReasonTierCapacity, d.Reason)
}

func TestCanOccupySlot(t *testing.T) {
	t.Parallel()

	slot := &promotion.Slot{ID: 5, MaxAds: 3}

	d, err := newGate(activeSub(5), nil, 0, 0, 3).CanOccupySlot(context.Background(), slot)
	require.NoError(t, err)
	assert.Equal(t, ReasonSlotFull, d.Reason)
}
