package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"sokoni-service/internal/domain/listing"
	"sokoni-service/internal/domain/notification"
	"sokoni-service/internal/domain/subscription"
	"sokoni-service/internal/pkg/clock"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sweepNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeTx satisfies pgx.Tx for the batch methods; only Commit and Rollback
// are ever called on it in these tests.
type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) BeginTx(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type fakeListingStore struct {
	lifetimeDue   []listing.Swept
	draftBySeller map[int64][]listing.Swept
	tierDue       int64
	featuredDue   int64
	promoDue      []int64

	tierErr error
}

func take[T any](due *[]T, limit int) []T {
	n := limit
	if n > len(*due) {
		n = len(*due)
	}
	batch := (*due)[:n]
	*due = (*due)[n:]
	return batch
}

func (f *fakeListingStore) ExpireLifetimeBatch(ctx context.Context, now time.Time, limit int) ([]listing.Swept, error) {
	return take(&f.lifetimeDue, limit), nil
}

func (f *fakeListingStore) DraftActiveBySellerTx(ctx context.Context, tx pgx.Tx, sellerID int64) ([]listing.Swept, error) {
	swept := f.draftBySeller[sellerID]
	delete(f.draftBySeller, sellerID)
	return swept, nil
}

func (f *fakeListingStore) ClearExpiredTiersBatch(ctx context.Context, now time.Time, limit int) (int64, error) {
	if f.tierErr != nil {
		return 0, f.tierErr
	}
	n := min(f.tierDue, int64(limit))
	f.tierDue -= n
	return n, nil
}

func (f *fakeListingStore) ClearExpiredFeaturedBatch(ctx context.Context, now time.Time, limit int) (int64, error) {
	n := min(f.featuredDue, int64(limit))
	f.featuredDue -= n
	return n, nil
}

func (f *fakeListingStore) ClearExpiredPromotionsBatch(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	return take(&f.promoDue, limit), nil
}

type fakeSubStore struct {
	due []subscription.Subscription
}

func (f *fakeSubStore) ExpireDueBatch(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]subscription.Subscription, error) {
	return take(&f.due, limit), nil
}

type fakeOccStore struct {
	dueOccupancies int64
	released       [][]int64
}

func (f *fakeOccStore) ExpireDueOccupancies(ctx context.Context, now time.Time, limit int) (int64, error) {
	n := min(f.dueOccupancies, int64(limit))
	f.dueOccupancies -= n
	return n, nil
}

func (f *fakeOccStore) ExpireForListings(ctx context.Context, listingIDs []int64) (int64, error) {
	f.released = append(f.released, listingIDs)
	return int64(len(listingIDs)), nil
}

type notified struct {
	userID      int64
	typ         notification.NotificationType
	relatedID   int64
	relatedType string
}

type fakeNotifier struct {
	calls []notified
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, typ notification.NotificationType, title, message string, relatedID int64, relatedType string) {
	f.calls = append(f.calls, notified{userID: userID, typ: typ, relatedID: relatedID, relatedType: relatedType})
}

func newSweep(listings *fakeListingStore, subs *fakeSubStore, occ *fakeOccStore, batchSize int) (*Service, *fakeNotifier) {
	if listings.draftBySeller == nil {
		listings.draftBySeller = map[int64][]listing.Swept{}
	}
	n := &fakeNotifier{}
	svc := NewService(listings, subs, occ, fakeDB{}, n, clock.NewFixed(sweepNow), batchSize, zap.NewNop())
	return svc, n
}

func TestRunExpirySweep_AllPhases(t *testing.T) {
	t.Parallel()

	listings := &fakeListingStore{
		lifetimeDue: []listing.Swept{
			{ID: 1, SellerID: 10, Title: "Old bike"},
			{ID: 2, SellerID: 11, Title: "Old couch"},
		},
		draftBySeller: map[int64][]listing.Swept{
			20: {{ID: 3, SellerID: 20, Title: "Sofa"}},
		},
		tierDue:     4,
		featuredDue: 2,
		promoDue:    []int64{5, 6},
	}
	subs := &fakeSubStore{due: []subscription.Subscription{
		{ID: 100, SellerID: 20, PlanName: "standard"},
	}}
	occ := &fakeOccStore{dueOccupancies: 2}

	svc, notifier := newSweep(listings, subs, occ, 50)

	counts, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{
		PhaseListingLifetime: 2,
		PhaseSubscription:    1,
		PhaseTier:            4,
		PhaseFeatured:        2,
		PhasePromotion:       2,
	}, counts)

	// Lifetime expiries and the cascade notify; tier/featured/promotion
	// downgrades stay silent.
	require.Len(t, notifier.calls, 4)
	assert.Equal(t, notified{userID: 10, typ: notification.TypeListingExpired, relatedID: 1, relatedType: "listing"}, notifier.calls[0])
	assert.Equal(t, notified{userID: 11, typ: notification.TypeListingExpired, relatedID: 2, relatedType: "listing"}, notifier.calls[1])
	assert.Equal(t, notified{userID: 20, typ: notification.TypeSubscriptionExpired, relatedID: 3, relatedType: "listing"}, notifier.calls[2])
	assert.Equal(t, notified{userID: 20, typ: notification.TypeSubscriptionExpired, relatedID: 100, relatedType: "subscription"}, notifier.calls[3])

	// Listings leaving active released their promotion occupancies.
	require.Len(t, occ.released, 2)
	assert.Equal(t, []int64{1, 2}, occ.released[0])
	assert.Equal(t, []int64{3}, occ.released[1])
}

func TestRunExpirySweep_Idempotent(t *testing.T) {
	t.Parallel()

	listings := &fakeListingStore{
		lifetimeDue: []listing.Swept{{ID: 1, SellerID: 10, Title: "Old bike"}},
		tierDue:     3,
	}
	subs := &fakeSubStore{due: []subscription.Subscription{{ID: 100, SellerID: 10, PlanName: "standard"}}}
	occ := &fakeOccStore{}

	svc, notifier := newSweep(listings, subs, occ, 50)

	first, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first[PhaseListingLifetime])
	firstNotifications := len(notifier.calls)

	second, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)

	for phase, n := range second {
		assert.Zero(t, n, "phase %s should affect no rows on rerun", phase)
	}
	assert.Len(t, notifier.calls, firstNotifications, "rerun must not renotify")
}

func TestRunExpirySweep_SubscriptionCascade(t *testing.T) {
	t.Parallel()

	listings := &fakeListingStore{
		draftBySeller: map[int64][]listing.Swept{
			20: {
				{ID: 1, SellerID: 20, Title: "Bike"},
				{ID: 2, SellerID: 20, Title: "Couch"},
				{ID: 3, SellerID: 20, Title: "Lamp"},
			},
		},
	}
	subs := &fakeSubStore{due: []subscription.Subscription{{ID: 100, SellerID: 20, PlanName: "premium"}}}
	occ := &fakeOccStore{}

	svc, notifier := newSweep(listings, subs, occ, 50)

	counts, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), counts[PhaseSubscription], "count tracks subscriptions, not cascaded listings")

	var listingNotes, subNotes int
	for _, call := range notifier.calls {
		require.Equal(t, notification.TypeSubscriptionExpired, call.typ,
			"cascaded listings carry the subscription reason, not listing_expired")
		switch call.relatedType {
		case "listing":
			listingNotes++
		case "subscription":
			subNotes++
		}
	}
	assert.Equal(t, 3, listingNotes)
	assert.Equal(t, 1, subNotes)
}

func TestRunExpirySweep_FirstCauseWinsOnDualLapse(t *testing.T) {
	t.Parallel()

	// Seller 20's only active listing lapses on its own lifetime in the same
	// run that expires the subscription. The lifetime phase drafts it first,
	// so the cascade finds no active listings left: the listing is announced
	// exactly once, with the lifetime cause, and the seller still gets the
	// subscription-level notice.
	listings := &fakeListingStore{
		lifetimeDue: []listing.Swept{{ID: 1, SellerID: 20, Title: "Bike"}},
	}
	subs := &fakeSubStore{due: []subscription.Subscription{{ID: 100, SellerID: 20, PlanName: "standard"}}}
	occ := &fakeOccStore{}

	svc, notifier := newSweep(listings, subs, occ, 50)

	counts, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), counts[PhaseListingLifetime])
	assert.Equal(t, int64(1), counts[PhaseSubscription])

	var aboutListing []notified
	for _, call := range notifier.calls {
		if call.relatedType == "listing" {
			aboutListing = append(aboutListing, call)
		}
	}
	require.Len(t, aboutListing, 1, "a dual-lapse listing is announced once")
	assert.Equal(t, notification.TypeListingExpired, aboutListing[0].typ)

	require.Len(t, notifier.calls, 2)
	assert.Equal(t, notified{userID: 20, typ: notification.TypeSubscriptionExpired, relatedID: 100, relatedType: "subscription"}, notifier.calls[1])
}

func TestRunExpirySweep_PhaseFailureIsolated(t *testing.T) {
	t.Parallel()

	listings := &fakeListingStore{
		lifetimeDue: []listing.Swept{{ID: 1, SellerID: 10, Title: "Bike"}},
		tierErr:     errors.New("deadlock detected"),
		featuredDue: 2,
	}
	subs := &fakeSubStore{}
	occ := &fakeOccStore{dueOccupancies: 1}

	svc, _ := newSweep(listings, subs, occ, 50)

	counts, err := svc.RunExpirySweep(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), PhaseTier)

	// Phases after the failed one still ran.
	assert.Equal(t, int64(1), counts[PhaseListingLifetime])
	assert.Equal(t, int64(2), counts[PhaseFeatured])
	assert.Zero(t, occ.dueOccupancies, "promotion phase still reconciled the occupancy ledger")
}

func TestRunExpirySweep_DrainsBeyondBatchSize(t *testing.T) {
	t.Parallel()

	due := make([]listing.Swept, 7)
	for i := range due {
		due[i] = listing.Swept{ID: int64(i + 1), SellerID: 10, Title: "Item"}
	}
	listings := &fakeListingStore{lifetimeDue: due, tierDue: 9}
	svc, notifier := newSweep(listings, &fakeSubStore{}, &fakeOccStore{}, 3)

	counts, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(7), counts[PhaseListingLifetime])
	assert.Equal(t, int64(9), counts[PhaseTier])
	assert.Len(t, notifier.calls, 7)
}
