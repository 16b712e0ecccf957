// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"fmt"
	"time"

	domain "sokoni-service/internal/domain/subscription"
	"sokoni-service/internal/pkg/clock"

	"go.uber.org/zap"
)

type Store interface {
	FindActiveBySeller(ctx context.Context, sellerID int64, now time.Time) (*domain.Subscription, error)
	Cancel(ctx context.Context, id int64) error
}

type ListingCounter interface {
	CountActiveBySeller(ctx context.Context, sellerID int64) (int, error)
}

type Service struct {
	subscriptions Store
	listings      ListingCounter
	clk           clock.Clock
	logger        *zap.Logger
}

func NewService(subscriptions Store, listings ListingCounter, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		subscriptions: subscriptions,
		listings:      listings,
		clk:           clk,
		logger:        logger,
	}
}

// GetActive returns the seller's effective subscription.
func (s *Service) GetActive(ctx context.Context, sellerID int64) (*domain.Subscription, error) {
	return s.subscriptions.FindActiveBySeller(ctx, sellerID, s.clk.Now())
}

// GetUsage pairs the quota cap with current consumption.
func (s *Service) GetUsage(ctx context.Context, sellerID int64) (*domain.Usage, error) {
	sub, err := s.subscriptions.FindActiveBySeller(ctx, sellerID, s.clk.Now())
	if err != nil {
		return nil, err
	}

	count, err := s.listings.CountActiveBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active listings: %w", err)
	}

	return &domain.Usage{
		MaxListings:    sub.MaxListings,
		ActiveListings: count,
	}, nil
}

// Cancel stops a seller's subscription on their behalf. The sweep does not
// cascade cancellations; listings stay active until their own grants lapse.
func (s *Service) Cancel(ctx context.Context, sellerID int64) error {
	sub, err := s.subscriptions.FindActiveBySeller(ctx, sellerID, s.clk.Now())
	if err != nil {
		return err
	}

	if err := s.subscriptions.Cancel(ctx, sub.ID); err != nil {
		return err
	}

	s.logger.Info("subscription cancelled",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("seller_id", sellerID),
	)

	return nil
}
