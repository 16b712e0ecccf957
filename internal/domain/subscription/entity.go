// internal/domain/subscription/entity.go
package subscription

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Subscription grants a seller a cap of concurrently active listings.
// At most one active subscription exists per seller; rows are created by the
// purchase workflow and owned by this engine for status transitions.
type Subscription struct {
	ID          int64        `json:"id" db:"id"`
	SellerID    int64        `json:"seller_id" db:"seller_id"`
	PlanName    string       `json:"plan_name" db:"plan_name"`
	MaxListings int          `json:"max_listings" db:"max_listings"`
	Status      Status       `json:"status" db:"status"`
	StartsAt    time.Time    `json:"starts_at" db:"starts_at"`
	ExpiresAt   time.Time    `json:"expires_at" db:"expires_at"`
	CancelledAt sql.NullTime `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// ActiveAt reports whether the subscription is effective at the given
// instant, regardless of whether the sweep has caught up with the stored
// status.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.Status == StatusActive && s.ExpiresAt.After(now)
}

// Usage pairs the quota cap with the current consumption for API responses.
type Usage struct {
	MaxListings    int `json:"max_listings"`
	ActiveListings int `json:"active_listings"`
}
