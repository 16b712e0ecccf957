// internal/service/notification/service.go
package notification

import (
	"context"
	"database/sql"
	"time"

	domain "sokoni-service/internal/domain/notification"
	"sokoni-service/internal/messaging/nats"
	ws "sokoni-service/internal/websocket"

	"go.uber.org/zap"
)

type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByIdentity(ctx context.Context, identityID int64, filters *domain.ListFilters) ([]domain.Notification, int64, error)
	MarkRead(ctx context.Context, id, identityID int64) error
	CountUnread(ctx context.Context, identityID int64) (int64, error)
}

// Service persists notifications and fans them out over websocket and NATS.
// It is the engine's notification sink: strictly fire-and-forget, a delivery
// failure is logged and never surfaces to the caller, so state transitions
// can never be rolled back by a flaky sink.
type Service struct {
	repo      Store
	hub       *ws.Hub
	publisher *nats.Publisher
	logger    *zap.Logger
}

func NewService(repo Store, hub *ws.Hub, publisher *nats.Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		hub:       hub,
		publisher: publisher,
		logger:    logger,
	}
}

type pushEvent struct {
	Event        string               `json:"event"`
	Notification *domain.Notification `json:"notification"`
	SentAt       time.Time            `json:"sent_at"`
}

// Notify implements the sweep's notification sink.
func (s *Service) Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, message string, relatedID int64, relatedType string) {
	n := &domain.Notification{
		IdentityID: userID,
		Type:       typ,
		Title:      title,
		Message:    message,
	}
	if relatedID > 0 {
		n.RelatedID = sql.NullInt64{Int64: relatedID, Valid: true}
		n.RelatedType = sql.NullString{String: relatedType, Valid: true}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("failed to persist notification",
			zap.Int64("identity_id", userID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return
	}

	event := pushEvent{Event: "notification", Notification: n, SentAt: time.Now().UTC()}

	if s.hub != nil {
		s.hub.PushToIdentity(userID, event)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, nats.SubjectNotificationCreated, event); err != nil {
			s.logger.Warn("failed to publish notification event",
				zap.Int64("notification_id", n.ID),
				zap.Error(err),
			)
		}
	}
}

// List retrieves a user's notifications.
func (s *Service) List(ctx context.Context, identityID int64, filters *domain.ListFilters) (*domain.ListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	notifications, total, err := s.repo.ListByIdentity(ctx, identityID, filters)
	if err != nil {
		return nil, err
	}

	return &domain.ListResponse{
		Notifications: notifications,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
	}, nil
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, id, identityID int64) error {
	return s.repo.MarkRead(ctx, id, identityID)
}

// UnreadCount returns the user's unread badge count.
func (s *Service) UnreadCount(ctx context.Context, identityID int64) (int64, error) {
	return s.repo.CountUnread(ctx, identityID)
}
