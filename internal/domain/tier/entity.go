// internal/domain/tier/entity.go
package tier

import "time"

// Tier is a purchasable ranking weight. Definitions are configuration: the
// engine reads them and never mutates them.
type Tier struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	PriorityWeight int       `json:"priority_weight" db:"priority_weight"`
	MaxAds         int       `json:"max_ads" db:"max_ads"`
	DurationDays   int       `json:"duration_days" db:"duration_days"`
	Price          float64   `json:"price" db:"price"`
	Currency       string    `json:"currency" db:"currency"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
