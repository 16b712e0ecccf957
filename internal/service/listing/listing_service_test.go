package listing

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	domain "sokoni-service/internal/domain/listing"
	"sokoni-service/internal/domain/promotion"
	"sokoni-service/internal/domain/subscription"
	"sokoni-service/internal/domain/tier"
	"sokoni-service/internal/domain/transaction"
	"sokoni-service/internal/pkg/clock"
	xerrors "sokoni-service/internal/pkg/errors"
	"sokoni-service/internal/service/quota"
	"sokoni-service/internal/service/ranking"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var svcNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) BeginTx(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type tierGrant struct {
	tierID    int64
	priority  int
	expiresAt time.Time
}

type fakeListingStore struct {
	byID        map[int64]*domain.Listing
	activeCount int

	tierGrants map[int64]tierGrant
	featured   map[int64]time.Time
	promoted   map[int64]int64
}

func newFakeListingStore(listings ...*domain.Listing) *fakeListingStore {
	f := &fakeListingStore{
		byID:       map[int64]*domain.Listing{},
		tierGrants: map[int64]tierGrant{},
		featured:   map[int64]time.Time{},
		promoted:   map[int64]int64{},
	}
	for _, l := range listings {
		f.byID[l.ID] = l
	}
	return f
}

func (f *fakeListingStore) Create(ctx context.Context, l *domain.Listing) error {
	l.ID = int64(len(f.byID) + 1)
	l.CreatedAt = svcNow
	f.byID[l.ID] = l
	return nil
}

func (f *fakeListingStore) FindByID(ctx context.Context, id int64) (*domain.Listing, error) {
	l, ok := f.byID[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// ListActive mirrors the store contract: pages come back in effective
// entitlement order for the rendered slot, then by bump recency.
func (f *fakeListingStore) ListActive(ctx context.Context, filters *domain.ListFilters, slotID int64, now time.Time) ([]domain.Listing, int64, error) {
	var out []domain.Listing
	for _, l := range f.byID {
		if l.Status != domain.StatusActive {
			continue
		}
		if filters.CategoryID != 0 && l.CategoryID != filters.CategoryID {
			continue
		}
		out = append(out, *l)
	}
	ranking.Sort(out, slotID, now)

	total := int64(len(out))
	start := (filters.Page - 1) * filters.PageSize
	if start > len(out) {
		start = len(out)
	}
	end := start + filters.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (f *fakeListingStore) CountActiveBySeller(ctx context.Context, sellerID int64) (int, error) {
	return f.activeCount, nil
}

func (f *fakeListingStore) CountActiveBySellerTx(ctx context.Context, tx pgx.Tx, sellerID int64) (int, error) {
	return f.activeCount, nil
}

func (f *fakeListingStore) updateStatus(id int64, from, to domain.Status) (bool, error) {
	l, ok := f.byID[id]
	if !ok || l.Status != from {
		return false, nil
	}
	return true, l.Transition(to, svcNow)
}

func (f *fakeListingStore) UpdateStatus(ctx context.Context, id int64, from, to domain.Status) (bool, error) {
	return f.updateStatus(id, from, to)
}

func (f *fakeListingStore) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id int64, from, to domain.Status) (bool, error) {
	return f.updateStatus(id, from, to)
}

func (f *fakeListingStore) AssignTier(ctx context.Context, listingID, tierID int64, priority int, expiresAt time.Time) (bool, error) {
	l, ok := f.byID[listingID]
	if !ok || l.Status != domain.StatusActive {
		return false, nil
	}
	f.tierGrants[listingID] = tierGrant{tierID: tierID, priority: priority, expiresAt: expiresAt}
	return true, nil
}

func (f *fakeListingStore) SetFeatured(ctx context.Context, listingID int64, until time.Time) (bool, error) {
	l, ok := f.byID[listingID]
	if !ok || l.Status != domain.StatusActive {
		return false, nil
	}
	f.featured[listingID] = until
	return true, nil
}

func (f *fakeListingStore) AssignPromotionTx(ctx context.Context, tx pgx.Tx, listingID, slotID int64, expiresAt time.Time) (bool, error) {
	l, ok := f.byID[listingID]
	if !ok || l.Status != domain.StatusActive {
		return false, nil
	}
	f.promoted[listingID] = slotID
	return true, nil
}

func (f *fakeListingStore) Bump(ctx context.Context, id, sellerID int64) (bool, error) {
	l, ok := f.byID[id]
	if !ok || l.SellerID != sellerID || l.Status != domain.StatusActive {
		return false, nil
	}
	l.BumpedAt = svcNow
	return true, nil
}

func (f *fakeListingStore) CountActiveAtTier(ctx context.Context, sellerID, tierID int64, now time.Time) (int, error) {
	count := 0
	for _, g := range f.tierGrants {
		if g.tierID == tierID && g.expiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

type fakeSubStore struct {
	sub *subscription.Subscription
}

func (f *fakeSubStore) FindActiveBySeller(ctx context.Context, sellerID int64, now time.Time) (*subscription.Subscription, error) {
	if f.sub == nil {
		return nil, xerrors.ErrNotFound
	}
	return f.sub, nil
}

func (f *fakeSubStore) FindActiveBySellerForUpdate(ctx context.Context, tx pgx.Tx, sellerID int64, now time.Time) (*subscription.Subscription, error) {
	return f.FindActiveBySeller(ctx, sellerID, now)
}

type fakeTierStore struct {
	tiers map[int64]*tier.Tier
}

func (f *fakeTierStore) FindByID(ctx context.Context, id int64) (*tier.Tier, error) {
	t, ok := f.tiers[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return t, nil
}

type fakePromotionStore struct {
	slots     map[int64]*promotion.Slot
	occupants int
	created   []*promotion.Occupancy
	released  [][]int64
}

func (f *fakePromotionStore) FindSlotByID(ctx context.Context, id int64) (*promotion.Slot, error) {
	s, ok := f.slots[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return s, nil
}

func (f *fakePromotionStore) FindSlotByPlacement(ctx context.Context, placementKey string) (*promotion.Slot, error) {
	for _, s := range f.slots {
		if s.PlacementKey == placementKey {
			return s, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakePromotionStore) CountActiveOccupants(ctx context.Context, slotID int64, now time.Time) (int, error) {
	return f.occupants, nil
}

func (f *fakePromotionStore) CreateOccupancyTx(ctx context.Context, tx pgx.Tx, o *promotion.Occupancy) error {
	f.created = append(f.created, o)
	return nil
}

func (f *fakePromotionStore) ExpireForListings(ctx context.Context, listingIDs []int64) (int64, error) {
	f.released = append(f.released, listingIDs)
	return int64(len(listingIDs)), nil
}

type fakeTxnStore struct {
	txns map[int64]*transaction.Transaction
}

func (f *fakeTxnStore) FindByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	t, ok := f.txns[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return t, nil
}

type fixture struct {
	svc        *Service
	listings   *fakeListingStore
	subs       *fakeSubStore
	promotions *fakePromotionStore
	txns       *fakeTxnStore
}

func newFixture(t *testing.T, listings *fakeListingStore) *fixture {
	t.Helper()

	subs := &fakeSubStore{sub: &subscription.Subscription{
		ID: 1, SellerID: 10, PlanName: "standard", MaxListings: 5,
		Status: subscription.StatusActive, ExpiresAt: svcNow.Add(24 * time.Hour),
	}}
	tiers := &fakeTierStore{tiers: map[int64]*tier.Tier{
		2: {ID: 2, Name: "premium", PriorityWeight: 90, MaxAds: 2, DurationDays: 30},
	}}
	promotions := &fakePromotionStore{slots: map[int64]*promotion.Slot{
		5: {ID: 5, PlacementKey: "homepage_top", MaxAds: 3, DurationDays: 7},
	}}
	txns := &fakeTxnStore{txns: map[int64]*transaction.Transaction{}}

	clk := clock.NewFixed(svcNow)
	logger := zap.NewNop()
	quotaSvc := quota.NewService(subs, listings, promotions, clk, logger)

	svc := NewService(listings, subs, tiers, promotions, txns, quotaSvc, nil, fakeDB{}, clk, logger)
	return &fixture{svc: svc, listings: listings, subs: subs, promotions: promotions, txns: txns}
}

func completedTxn(id, sellerID int64, purchase transaction.PurchaseType) *transaction.Transaction {
	return &transaction.Transaction{
		ID: id, SellerID: sellerID, Status: transaction.StatusCompleted, PurchaseType: purchase,
	}
}

func TestCreate_SetsLifetime(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, newFakeListingStore())

	l, err := fx.svc.Create(context.Background(), 10, &domain.CreateListingRequest{
		CategoryID: 3, Title: "Bike", Price: 100, Currency: "KES", LifetimeDays: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDraft, l.Status)
	assert.NotEmpty(t, l.Reference)
	require.True(t, l.ListingExpiresAt.Valid)
	assert.Equal(t, svcNow.AddDate(0, 0, 60), l.ListingExpiresAt.Time)
}

func TestApprove_QuotaGate(t *testing.T) {
	t.Parallel()

	t.Run("denies activation when the plan is full", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusPendingReview})
		store.activeCount = 5
		fx := newFixture(t, store)

		err := fx.svc.Approve(context.Background(), 1, false)
		assert.ErrorIs(t, err, xerrors.ErrQuotaExceeded)
		assert.Equal(t, domain.StatusPendingReview, store.byID[1].Status)
	})

	t.Run("allows activation under the cap", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusPendingReview})
		store.activeCount = 4
		fx := newFixture(t, store)

		require.NoError(t, fx.svc.Approve(context.Background(), 1, false))
		assert.Equal(t, domain.StatusActive, store.byID[1].Status)
	})

	t.Run("denies without a subscription", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusPendingReview})
		fx := newFixture(t, store)
		fx.subs.sub = nil

		err := fx.svc.Approve(context.Background(), 1, false)
		assert.ErrorIs(t, err, xerrors.ErrNoActiveSubscription)
	})

	t.Run("bypass activates past a full plan", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusPendingReview})
		store.activeCount = 5
		fx := newFixture(t, store)
		fx.subs.sub = nil

		require.NoError(t, fx.svc.Approve(context.Background(), 1, true))
		assert.Equal(t, domain.StatusActive, store.byID[1].Status)
	})
}

func TestReactivate_RerunsGateAndOwnership(t *testing.T) {
	t.Parallel()

	store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusDraft})
	store.activeCount = 5
	fx := newFixture(t, store)

	assert.ErrorIs(t, fx.svc.Reactivate(context.Background(), 99, 1, false), xerrors.ErrForbidden)
	assert.ErrorIs(t, fx.svc.Reactivate(context.Background(), 10, 1, false), xerrors.ErrQuotaExceeded)

	// A sale frees a quota spot; the drafted listing can come back.
	store.activeCount = 4
	require.NoError(t, fx.svc.Reactivate(context.Background(), 10, 1, false))
	assert.Equal(t, domain.StatusActive, store.byID[1].Status)
}

func TestWithdraw_ReleasesPromotion(t *testing.T) {
	t.Parallel()

	store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
	fx := newFixture(t, store)

	require.NoError(t, fx.svc.Withdraw(context.Background(), 10, 1))

	assert.Equal(t, domain.StatusDraft, store.byID[1].Status)
	require.Len(t, fx.promotions.released, 1)
	assert.Equal(t, []int64{1}, fx.promotions.released[0])
}

func TestMarkSold_OwnershipAndTransition(t *testing.T) {
	t.Parallel()

	store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
	fx := newFixture(t, store)

	assert.ErrorIs(t, fx.svc.MarkSold(context.Background(), 99, 1), xerrors.ErrForbidden)

	require.NoError(t, fx.svc.MarkSold(context.Background(), 10, 1))
	assert.Equal(t, domain.StatusSold, store.byID[1].Status)

	// Sold is terminal.
	assert.ErrorIs(t, fx.svc.MarkSold(context.Background(), 10, 1), xerrors.ErrInvalidTransition)
}

func TestGrantTier(t *testing.T) {
	t.Parallel()

	t.Run("rejects an unpaid transaction", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
		fx := newFixture(t, store)
		fx.txns.txns[7] = &transaction.Transaction{
			ID: 7, SellerID: 10, Status: transaction.StatusPending, PurchaseType: transaction.PurchaseTier,
		}

		err := fx.svc.GrantTier(context.Background(), 10, 1, &domain.GrantTierRequest{TierID: 2, TransactionID: 7})
		assert.ErrorIs(t, err, xerrors.ErrPaymentNotCompleted)
		assert.Empty(t, store.tierGrants)
	})

	t.Run("rejects another seller's transaction", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
		fx := newFixture(t, store)
		fx.txns.txns[7] = completedTxn(7, 99, transaction.PurchaseTier)

		err := fx.svc.GrantTier(context.Background(), 10, 1, &domain.GrantTierRequest{TierID: 2, TransactionID: 7})
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("denies at tier capacity", func(t *testing.T) {
		store := newFakeListingStore(
			&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive},
		)
		store.tierGrants[8] = tierGrant{tierID: 2, expiresAt: svcNow.Add(time.Hour)}
		store.tierGrants[9] = tierGrant{tierID: 2, expiresAt: svcNow.Add(time.Hour)}
		fx := newFixture(t, store)
		fx.txns.txns[7] = completedTxn(7, 10, transaction.PurchaseTier)

		err := fx.svc.GrantTier(context.Background(), 10, 1, &domain.GrantTierRequest{TierID: 2, TransactionID: 7})
		assert.ErrorIs(t, err, xerrors.ErrTierCapacityExceeded)
	})

	t.Run("writes a fresh future expiry", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
		fx := newFixture(t, store)
		fx.txns.txns[7] = completedTxn(7, 10, transaction.PurchaseTier)

		require.NoError(t, fx.svc.GrantTier(context.Background(), 10, 1, &domain.GrantTierRequest{TierID: 2, TransactionID: 7}))

		grant := store.tierGrants[1]
		assert.Equal(t, int64(2), grant.tierID)
		assert.Equal(t, 90, grant.priority)
		assert.Equal(t, svcNow.AddDate(0, 0, 30), grant.expiresAt)
	})

	t.Run("refuses a non-active listing", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusDraft})
		fx := newFixture(t, store)
		fx.txns.txns[7] = completedTxn(7, 10, transaction.PurchaseTier)

		err := fx.svc.GrantTier(context.Background(), 10, 1, &domain.GrantTierRequest{TierID: 2, TransactionID: 7})
		assert.ErrorIs(t, err, xerrors.ErrListingNotActive)
	})
}

func TestGrantPromotion(t *testing.T) {
	t.Parallel()

	t.Run("denies when the slot is full", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
		fx := newFixture(t, store)
		fx.promotions.occupants = 3
		fx.txns.txns[7] = completedTxn(7, 10, transaction.PurchasePromotion)

		err := fx.svc.GrantPromotion(context.Background(), 10, 1, &domain.GrantPromotionRequest{SlotID: 5, TransactionID: 7})
		assert.ErrorIs(t, err, xerrors.ErrPromotionSlotFull)
		assert.Empty(t, fx.promotions.created)
	})

	t.Run("records the occupancy with the grant", func(t *testing.T) {
		store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
		fx := newFixture(t, store)
		fx.txns.txns[7] = completedTxn(7, 10, transaction.PurchasePromotion)

		require.NoError(t, fx.svc.GrantPromotion(context.Background(), 10, 1, &domain.GrantPromotionRequest{SlotID: 5, TransactionID: 7}))

		assert.Equal(t, int64(5), store.promoted[1])
		require.Len(t, fx.promotions.created, 1)
		occ := fx.promotions.created[0]
		assert.Equal(t, int64(5), occ.SlotID)
		assert.Equal(t, int64(1), occ.ListingID)
		assert.Equal(t, promotion.OccupancyActive, occ.Status)
		assert.Equal(t, svcNow.AddDate(0, 0, 7), occ.ExpiresAt)
	})
}

func TestGrantFeatured(t *testing.T) {
	t.Parallel()

	store := newFakeListingStore(&domain.Listing{ID: 1, SellerID: 10, Status: domain.StatusActive})
	fx := newFixture(t, store)
	fx.txns.txns[7] = completedTxn(7, 10, transaction.PurchaseFeatured)

	require.NoError(t, fx.svc.GrantFeatured(context.Background(), 10, 1, &domain.GrantFeaturedRequest{DurationDays: 14, TransactionID: 7}))
	assert.Equal(t, svcNow.AddDate(0, 0, 14), store.featured[1])
}

func TestBrowseCategory_PrecedenceHoldsAcrossPages(t *testing.T) {
	t.Parallel()

	// 25 plain listings bumped within the last half hour, plus one listing
	// holding a live homepage promotion and one on a priority-90 tier, both
	// with bumps days older than everything else. By recency alone they would
	// land beyond page 1; the entitlement-ordered fetch must surface them
	// first anyway.
	store := newFakeListingStore()
	for i := 1; i <= 25; i++ {
		id := int64(i)
		store.byID[id] = &domain.Listing{
			ID: id, SellerID: 10, CategoryID: 3, Title: fmt.Sprintf("Plain %d", i),
			Status:   domain.StatusActive,
			BumpedAt: svcNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	store.byID[26] = &domain.Listing{
		ID: 26, SellerID: 11, CategoryID: 3, Title: "Promoted",
		Status:             domain.StatusActive,
		BumpedAt:           svcNow.Add(-72 * time.Hour),
		PromotionSlotID:    sql.NullInt64{Int64: 5, Valid: true},
		PromotionExpiresAt: sql.NullTime{Time: svcNow.Add(24 * time.Hour), Valid: true},
	}
	store.byID[27] = &domain.Listing{
		ID: 27, SellerID: 12, CategoryID: 3, Title: "Tiered",
		Status:        domain.StatusActive,
		BumpedAt:      svcNow.Add(-48 * time.Hour),
		TierID:        sql.NullInt64{Int64: 2, Valid: true},
		TierPriority:  90,
		TierExpiresAt: sql.NullTime{Time: svcNow.Add(24 * time.Hour), Valid: true},
	}
	fx := newFixture(t, store)

	page1, err := fx.svc.BrowseCategory(context.Background(), &domain.ListFilters{
		CategoryID: 3, Placement: "homepage_top", Page: 1, PageSize: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(27), page1.Total)
	require.Len(t, page1.Listings, 20)
	assert.Equal(t, int64(26), page1.Listings[0].ID, "live promotion leads page 1 despite the oldest bump")
	assert.Equal(t, int64(27), page1.Listings[1].ID, "live tier follows despite a stale bump")

	page2, err := fx.svc.BrowseCategory(context.Background(), &domain.ListFilters{
		CategoryID: 3, Placement: "homepage_top", Page: 2, PageSize: 20,
	})
	require.NoError(t, err)
	require.Len(t, page2.Listings, 7)
	for _, l := range page2.Listings {
		assert.False(t, l.PromotedInSlotAt(5, svcNow), "no promoted listing may fall past page 1")
	}
}
