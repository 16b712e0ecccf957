// internal/domain/listing/dto.go
package listing

import "time"

type CreateListingRequest struct {
	CategoryID   int64    `json:"category_id" binding:"required"`
	Title        string   `json:"title" binding:"required,max=255"`
	Description  string   `json:"description" binding:"required"`
	Price        float64  `json:"price" binding:"required,gt=0"`
	Currency     string   `json:"currency" binding:"required,len=3"`
	Photos       []string `json:"photos,omitempty"`
	LifetimeDays int      `json:"lifetime_days,omitempty"`
}

type GrantTierRequest struct {
	TierID        int64 `json:"tier_id" binding:"required"`
	TransactionID int64 `json:"transaction_id" binding:"required"`
}

type GrantFeaturedRequest struct {
	DurationDays  int   `json:"duration_days" binding:"required,gt=0"`
	TransactionID int64 `json:"transaction_id" binding:"required"`
}

type GrantPromotionRequest struct {
	SlotID        int64 `json:"slot_id" binding:"required"`
	TransactionID int64 `json:"transaction_id" binding:"required"`
}

type ListFilters struct {
	CategoryID int64  `form:"category_id"`
	SellerID   int64  `form:"seller_id"`
	Status     Status `form:"status"`
	Placement  string `form:"placement"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// Swept identifies a listing a sweep phase transitioned, carrying just
// enough to address the owner's notification.
type Swept struct {
	ID       int64  `json:"id"`
	SellerID int64  `json:"seller_id"`
	Title    string `json:"title"`
}

type ListingPage struct {
	Listings   []Listing `json:"listings"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	RenderedAt time.Time `json:"rendered_at"`
}
