// internal/domain/listing/entity.go
package listing

import (
	"database/sql"
	"time"

	xerrors "sokoni-service/internal/pkg/errors"
)

type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusActive        Status = "active"
	StatusSold          Status = "sold"
	StatusRejected      Status = "rejected"
	StatusExpired       Status = "expired"
)

// Listing is the single mutable record the engine owns. The tier, featured
// and promotion fields are independently-nullable temporal grants; stored
// values are only meaningful together with their expiry timestamps, so read
// paths must go through the *At helpers instead of the raw fields.
type Listing struct {
	ID          int64          `json:"id" db:"id"`
	Reference   string         `json:"reference" db:"reference"`
	SellerID    int64          `json:"seller_id" db:"seller_id"`
	CategoryID  int64          `json:"category_id" db:"category_id"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description" db:"description"`
	Price       float64        `json:"price" db:"price"`
	Currency    string         `json:"currency" db:"currency"`
	Photos      []string       `json:"photos,omitempty" db:"photos"`
	Status      Status         `json:"status" db:"status"`

	ListingExpiresAt sql.NullTime `json:"listing_expires_at,omitempty" db:"listing_expires_at"`

	TierID        sql.NullInt64 `json:"tier_id,omitempty" db:"tier_id"`
	TierPriority  int           `json:"tier_priority" db:"tier_priority"`
	TierExpiresAt sql.NullTime  `json:"tier_expires_at,omitempty" db:"tier_expires_at"`

	IsFeatured    bool         `json:"is_featured" db:"is_featured"`
	FeaturedUntil sql.NullTime `json:"featured_until,omitempty" db:"featured_until"`

	PromotionSlotID    sql.NullInt64 `json:"promotion_slot_id,omitempty" db:"promotion_slot_id"`
	PromotionExpiresAt sql.NullTime  `json:"promotion_expires_at,omitempty" db:"promotion_expires_at"`

	BumpedAt  time.Time `json:"bumped_at" db:"bumped_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// legalTransitions is the single source of truth for lifecycle moves. Every
// status write in the engine goes through Transition, never ad hoc.
var legalTransitions = map[Status][]Status{
	StatusDraft:         {StatusPendingReview, StatusActive},
	StatusPendingReview: {StatusActive, StatusRejected, StatusDraft},
	StatusActive:        {StatusDraft, StatusSold, StatusRejected, StatusExpired},
	StatusRejected:      {StatusDraft},
	StatusExpired:       {StatusDraft},
	StatusSold:          {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the listing to the target status or fails with
// ErrInvalidTransition. Leaving StatusActive clears all entitlement grants so
// a non-active listing never carries an unexpired entitlement; sold and
// rejected freeze instead of clearing (no sweep phase touches them).
func (l *Listing) Transition(to Status, now time.Time) error {
	if !CanTransition(l.Status, to) {
		return xerrors.ErrInvalidTransition
	}

	if l.Status == StatusActive && to == StatusDraft {
		l.ClearEntitlements()
	}

	l.Status = to
	l.UpdatedAt = now
	return nil
}

// ClearEntitlements resets every temporal grant. All fields of a grant are
// cleared together; a partial clear is an invariant violation.
func (l *Listing) ClearEntitlements() {
	l.TierID = sql.NullInt64{}
	l.TierPriority = 0
	l.TierExpiresAt = sql.NullTime{}
	l.IsFeatured = false
	l.FeaturedUntil = sql.NullTime{}
	l.PromotionSlotID = sql.NullInt64{}
	l.PromotionExpiresAt = sql.NullTime{}
}

// TierPriorityAt returns the effective tier priority at the given instant.
// A stored tier whose expiry has passed counts as no tier, even before the
// sweep rewrites the row.
func (l *Listing) TierPriorityAt(now time.Time) int {
	if !l.TierID.Valid || l.TierPriority <= 0 {
		return 0
	}
	if l.TierExpiresAt.Valid && !l.TierExpiresAt.Time.After(now) {
		return 0
	}
	return l.TierPriority
}

// FeaturedAt returns the effective featured flag at the given instant.
func (l *Listing) FeaturedAt(now time.Time) bool {
	if !l.IsFeatured {
		return false
	}
	return l.FeaturedUntil.Valid && l.FeaturedUntil.Time.After(now)
}

// PromotedInSlotAt reports whether the listing holds a live promotion for the
// given placement slot at the given instant.
func (l *Listing) PromotedInSlotAt(slotID int64, now time.Time) bool {
	if !l.PromotionSlotID.Valid || l.PromotionSlotID.Int64 != slotID {
		return false
	}
	return l.PromotionExpiresAt.Valid && l.PromotionExpiresAt.Time.After(now)
}

// Rankable reports whether the listing may appear in public results.
func (l *Listing) Rankable() bool {
	return l.Status == StatusActive
}
