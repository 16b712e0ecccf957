// internal/domain/notification/entity.go
package notification

import (
	"database/sql"
	"time"
)

type NotificationType string

const (
	TypeListingExpired      NotificationType = "listing_expired"
	TypeSubscriptionExpired NotificationType = "subscription_expired"
	TypeSystem              NotificationType = "system"
)

type Notification struct {
	ID          int64            `json:"id" db:"id"`
	IdentityID  int64            `json:"identity_id" db:"identity_id"`
	Type        NotificationType `json:"type" db:"type"`
	Title       string           `json:"title" db:"title"`
	Message     string           `json:"message" db:"message"`
	RelatedID   sql.NullInt64    `json:"related_id,omitempty" db:"related_id"`
	RelatedType sql.NullString   `json:"related_type,omitempty" db:"related_type"`
	IsRead      bool             `json:"is_read" db:"is_read"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	ReadAt      sql.NullTime     `json:"read_at,omitempty" db:"read_at"`
}

// DTOs

type ListFilters struct {
	IsRead   *bool             `form:"is_read"`
	Type     *NotificationType `form:"type"`
	Page     int               `form:"page" binding:"min=0"`
	PageSize int               `form:"page_size" binding:"min=0,max=100"`
}

type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
}
