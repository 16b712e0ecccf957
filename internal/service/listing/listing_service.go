// internal/service/listing/listing_service.go
package listing

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Store dependencies, implemented by the postgres repositories.

type ListingStore interface {
	Create(ctx context.Context, l *domain.Listing) error
	FindByID(ctx context.Context, id int64) (*domain.Listing, error)
	ListActive(ctx context.Context, filters *domain.ListFilters, slotID int64, now time.Time) ([]domain.Listing, int64, error)
	CountActiveBySellerTx(ctx context.Context, tx pgx.Tx, sellerID int64) (int, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.Status) (bool, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id int64, from, to domain.Status) (bool, error)
	AssignTier(ctx context.Context, listingID, tierID int64, priority int, expiresAt time.Time) (bool, error)
	SetFeatured(ctx context.Context, listingID int64, until time.Time) (bool, error)
	AssignPromotionTx(ctx context.Context, tx pgx.Tx, listingID, slotID int64, expiresAt time.Time) (bool, error)
	Bump(ctx context.Context, id, sellerID int64) (bool, error)
}

type SubscriptionStore interface {
	FindActiveBySellerForUpdate(ctx context.Context, tx pgx.Tx, sellerID int64, now time.Time) (*subscription.Subscription, error)
}

type TierStore interface {
	FindByID(ctx context.Context, id int64) (*tier.Tier, error)
}

type PromotionStore interface {
	FindSlotByID(ctx context.Context, id int64) (*promotion.Slot, error)
	FindSlotByPlacement(ctx context.Context, placementKey string) (*promotion.Slot, error)
	CreateOccupancyTx(ctx context.Context, tx pgx.Tx, o *promotion.Occupancy) error
	ExpireForListings(ctx context.Context, listingIDs []int64) (int64, error)
}

type TransactionStore interface {
	FindByID(ctx context.Context, id int64) (*transaction.Transaction, error)
}

// Cache is optional; a nil cache disables read caching.
type Cache interface {
	GetListing(ctx context.Context, id int64) (*domain.Listing, error)
	SetListing(ctx context.Context, l *domain.Listing) error
	DeleteListing(ctx context.Context, id int64) error
	GetPage(ctx context.Context, categoryID int64, placement string, page, pageSize int) (*domain.ListingPage, error)
	SetPage(ctx context.Context, categoryID int64, placement string, page, pageSize int, p *domain.ListingPage) error
}

type TxBeginner interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

// Service owns every lifecycle and entitlement write on listings outside the
// sweep. All status changes validate against the domain transition table and
// use conditional updates, so concurrent writers can never double-apply a
// move.
type Service struct {
	listings      ListingStore
	subscriptions SubscriptionStore
	tiers         TierStore
	promotions    PromotionStore
	transactions  TransactionStore
	quotaSvc      *quota.Service
	cache         Cache
	db            TxBeginner
	clk           clock.Clock
	logger        *zap.Logger
}

func NewService(
	listings ListingStore,
	subscriptions SubscriptionStore,
	tiers TierStore,
	promotions PromotionStore,
	transactions TransactionStore,
	quotaSvc *quota.Service,
	cache Cache,
	db TxBeginner,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		listings:      listings,
		subscriptions: subscriptions,
		tiers:         tiers,
		promotions:    promotions,
		transactions:  transactions,
		quotaSvc:      quotaSvc,
		cache:         cache,
		db:            db,
		clk:           clk,
		logger:        logger,
	}
}

// Create inserts a new draft listing for the seller.
func (s *Service) Create(ctx context.Context, sellerID int64, req *domain.CreateListingRequest) (*domain.Listing, error) {
	now := s.clk.Now()

	l := &domain.Listing{
		Reference:   ulid.Make().String(),
		SellerID:    sellerID,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Photos:      req.Photos,
		Status:      domain.StatusDraft,
	}

	if req.LifetimeDays > 0 {
		l.ListingExpiresAt.Time = now.AddDate(0, 0, req.LifetimeDays)
		l.ListingExpiresAt.Valid = true
	}

	if err := s.listings.Create(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info("listing created",
		zap.Int64("listing_id", l.ID),
		zap.String("reference", l.Reference),
		zap.Int64("seller_id", sellerID),
	)

	return l, nil
}

// GetByID serves a listing, cache first.
func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Listing, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetListing(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetListing(ctx, l); err != nil {
			s.logger.Warn("failed to cache listing", zap.Int64("listing_id", id), zap.Error(err))
		}
	}

	return l, nil
}

// Submit moves a seller's draft into the moderation queue.
func (s *Service) Submit(ctx context.Context, sellerID, id int64) error {
	return s.ownedTransition(ctx, sellerID, id, domain.StatusDraft, domain.StatusPendingReview)
}

// Approve activates a listing after moderator approval. Moderation is
// external; the quota gate at the activation instant is ours.
func (s *Service) Approve(ctx context.Context, id int64, bypass bool) error {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.activate(ctx, l, domain.StatusPendingReview, bypass)
}

// Reactivate returns a seller's drafted listing to active, re-running the
// quota gate.
func (s *Service) Reactivate(ctx context.Context, sellerID, id int64, bypass bool) error {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		return xerrors.ErrForbidden
	}
	return s.activate(ctx, l, domain.StatusDraft, bypass)
}

// activate performs the quota-gated transition into active. The subscription
// row is locked and the count re-read inside the transaction, so two
// concurrent activations serialize on the gate and cannot jointly exceed the
// quota.
func (s *Service) activate(ctx context.Context, l *domain.Listing, from domain.Status, bypass bool) error {
	if !domain.CanTransition(from, domain.StatusActive) {
		return xerrors.ErrInvalidTransition
	}

	now := s.clk.Now()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var sub *subscription.Subscription
	if !bypass {
		sub, err = s.subscriptions.FindActiveBySellerForUpdate(ctx, tx, l.SellerID, now)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}
	}

	count, err := s.listings.CountActiveBySellerTx(ctx, tx, l.SellerID)
	if err != nil {
		return err
	}

	if decision := quota.Evaluate(sub, count, bypass, now); !decision.Allowed {
		s.logger.Info("listing activation denied",
			zap.Int64("listing_id", l.ID),
			zap.Int64("seller_id", l.SellerID),
			zap.String("reason", string(decision.Reason)),
		)
		return decision.Err()
	}

	ok, err := s.listings.UpdateStatusTx(ctx, tx, l.ID, from, domain.StatusActive)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrInvalidTransition
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	s.invalidate(ctx, l.ID)
	s.logger.Info("listing activated",
		zap.Int64("listing_id", l.ID),
		zap.Int64("seller_id", l.SellerID),
	)

	return nil
}

// Withdraw takes a seller's active listing off the market, releasing any
// promotion slot it held.
func (s *Service) Withdraw(ctx context.Context, sellerID, id int64) error {
	if err := s.ownedTransition(ctx, sellerID, id, domain.StatusActive, domain.StatusDraft); err != nil {
		return err
	}

	if _, err := s.promotions.ExpireForListings(ctx, []int64{id}); err != nil {
		s.logger.Warn("failed to release promotion occupancy on withdrawal",
			zap.Int64("listing_id", id), zap.Error(err))
	}

	return nil
}

// MarkSold finishes a listing. Entitlement fields freeze as they are.
func (s *Service) MarkSold(ctx context.Context, sellerID, id int64) error {
	return s.ownedTransition(ctx, sellerID, id, domain.StatusActive, domain.StatusSold)
}

// Reject is invoked by the moderation workflow.
func (s *Service) Reject(ctx context.Context, id int64) error {
	ok, err := s.listings.UpdateStatus(ctx, id, domain.StatusPendingReview, domain.StatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrInvalidTransition
	}
	s.invalidate(ctx, id)
	return nil
}

// Bump refreshes the listing's recency rank.
func (s *Service) Bump(ctx context.Context, sellerID, id int64) error {
	ok, err := s.listings.Bump(ctx, id, sellerID)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrListingNotActive
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) ownedTransition(ctx context.Context, sellerID, id int64, from, to domain.Status) error {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		return xerrors.ErrForbidden
	}
	if !domain.CanTransition(from, to) {
		return xerrors.ErrInvalidTransition
	}

	ok, err := s.listings.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrInvalidTransition
	}

	s.invalidate(ctx, id)
	return nil
}

// fundedTransaction loads and validates the payment behind a grant.
func (s *Service) fundedTransaction(ctx context.Context, sellerID, txnID int64, purchase transaction.PurchaseType) (*transaction.Transaction, error) {
	txn, err := s.transactions.FindByID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.SellerID != sellerID || txn.PurchaseType != purchase {
		return nil, xerrors.ErrInvalidInput
	}
	if !txn.Completed() {
		return nil, xerrors.ErrPaymentNotCompleted
	}
	return txn, nil
}

// GrantTier applies a purchased tier to an active listing. All tier fields
// are written together with a fresh future expiry, so an unswept stale tier
// can never survive into the new grant.
func (s *Service) GrantTier(ctx context.Context, sellerID, listingID int64, req *domain.GrantTierRequest) error {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		return xerrors.ErrForbidden
	}

	if _, err := s.fundedTransaction(ctx, sellerID, req.TransactionID, transaction.PurchaseTier); err != nil {
		return err
	}

	t, err := s.tiers.FindByID(ctx, req.TierID)
	if err != nil {
		return err
	}

	decision, err := s.quotaSvc.CanAssignTier(ctx, sellerID, t)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return decision.Err()
	}

	expiresAt := s.clk.Now().AddDate(0, 0, t.DurationDays)
	ok, err := s.listings.AssignTier(ctx, listingID, t.ID, t.PriorityWeight, expiresAt)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrListingNotActive
	}

	s.invalidate(ctx, listingID)
	s.logger.Info("tier granted",
		zap.Int64("listing_id", listingID),
		zap.Int64("tier_id", t.ID),
		zap.Time("expires_at", expiresAt),
	)

	return nil
}

// GrantFeatured applies a purchased featured boost to an active listing.
func (s *Service) GrantFeatured(ctx context.Context, sellerID, listingID int64, req *domain.GrantFeaturedRequest) error {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		return xerrors.ErrForbidden
	}

	if _, err := s.fundedTransaction(ctx, sellerID, req.TransactionID, transaction.PurchaseFeatured); err != nil {
		return err
	}

	until := s.clk.Now().AddDate(0, 0, req.DurationDays)
	ok, err := s.listings.SetFeatured(ctx, listingID, until)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrListingNotActive
	}

	s.invalidate(ctx, listingID)
	return nil
}

// GrantPromotion places an active listing into a promotion slot, recording
// the occupancy row in the same transaction as the grant so capacity counts
// and the listing's fields cannot diverge.
func (s *Service) GrantPromotion(ctx context.Context, sellerID, listingID int64, req *domain.GrantPromotionRequest) error {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		return xerrors.ErrForbidden
	}

	if _, err := s.fundedTransaction(ctx, sellerID, req.TransactionID, transaction.PurchasePromotion); err != nil {
		return err
	}

	slot, err := s.promotions.FindSlotByID(ctx, req.SlotID)
	if err != nil {
		return err
	}

	decision, err := s.quotaSvc.CanOccupySlot(ctx, slot)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return decision.Err()
	}

	expiresAt := s.clk.Now().AddDate(0, 0, slot.DurationDays)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := s.listings.AssignPromotionTx(ctx, tx, listingID, slot.ID, expiresAt)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrListingNotActive
	}

	occ := &promotion.Occupancy{
		SlotID:    slot.ID,
		ListingID: listingID,
		Status:    promotion.OccupancyActive,
		ExpiresAt: expiresAt,
	}
	if err := s.promotions.CreateOccupancyTx(ctx, tx, occ); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit promotion grant: %w", err)
	}

	s.invalidate(ctx, listingID)
	s.logger.Info("promotion granted",
		zap.Int64("listing_id", listingID),
		zap.String("placement", slot.PlacementKey),
		zap.Time("expires_at", expiresAt),
	)

	return nil
}

// BrowseCategory serves a ranked page of a category, cache first. Placement
// names the promoted surface being rendered; promotions only outrank within
// their exact placement.
func (s *Service) BrowseCategory(ctx context.Context, filters *domain.ListFilters) (*domain.ListingPage, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	if s.cache != nil {
		if cached, err := s.cache.GetPage(ctx, filters.CategoryID, filters.Placement, filters.Page, filters.PageSize); err == nil && cached != nil {
			return cached, nil
		}
	}

	// The slot resolves before the fetch: the store orders pages by effective
	// entitlements, so the promoted surface has to be known for page 1 to
	// carry the promoted and high-tier listings regardless of bump recency.
	var slotID int64
	if filters.Placement != "" {
		slot, err := s.promotions.FindSlotByPlacement(ctx, filters.Placement)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		if slot != nil {
			slotID = slot.ID
		}
	}

	now := s.clk.Now()
	listings, total, err := s.listings.ListActive(ctx, filters, slotID, now)
	if err != nil {
		return nil, err
	}

	ranking.Sort(listings, slotID, now)

	page := &domain.ListingPage{
		Listings:   listings,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		RenderedAt: now,
	}

	if s.cache != nil {
		if err := s.cache.SetPage(ctx, filters.CategoryID, filters.Placement, filters.Page, filters.PageSize, page); err != nil {
			s.logger.Warn("failed to cache listing page", zap.Error(err))
		}
	}

	return page, nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteListing(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate listing cache", zap.Int64("listing_id", id), zap.Error(err))
	}
}
