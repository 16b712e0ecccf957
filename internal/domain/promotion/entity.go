// internal/domain/promotion/entity.go
package promotion

import (
	"database/sql"
	"time"
)

// Slot is a capacity-limited placement (e.g. homepage top strip).
// Definitions are configuration, read-only to the engine.
type Slot struct {
	ID           int64     `json:"id" db:"id"`
	PlacementKey string    `json:"placement_key" db:"placement_key"`
	MaxAds       int       `json:"max_ads" db:"max_ads"`
	DurationDays int       `json:"duration_days" db:"duration_days"`
	Price        float64   `json:"price" db:"price"`
	Currency     string    `json:"currency" db:"currency"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type OccupancyStatus string

const (
	OccupancyActive  OccupancyStatus = "active"
	OccupancyExpired OccupancyStatus = "expired"
)

// Occupancy is the secondary ledger of who holds a slot. Capacity checks
// count active rows, so the sweep must mark rows expired for counts to
// recompute correctly on the next allocation.
type Occupancy struct {
	ID        int64           `json:"id" db:"id"`
	SlotID    int64           `json:"slot_id" db:"slot_id"`
	ListingID int64           `json:"listing_id" db:"listing_id"`
	Status    OccupancyStatus `json:"status" db:"status"`
	ExpiresAt time.Time       `json:"expires_at" db:"expires_at"`
	ExpiredAt sql.NullTime    `json:"expired_at,omitempty" db:"expired_at"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
