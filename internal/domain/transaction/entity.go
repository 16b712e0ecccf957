// internal/domain/transaction/entity.go
package transaction

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// PurchaseType identifies what a completed transaction funds.
type PurchaseType string

const (
	PurchaseSubscription PurchaseType = "subscription"
	PurchaseTier         PurchaseType = "tier"
	PurchaseFeatured     PurchaseType = "featured"
	PurchasePromotion    PurchaseType = "promotion"
)

// Transaction mirrors the payment workflow's record. This engine reads it
// only to confirm a grant is funded; it never writes payment state.
type Transaction struct {
	ID           int64          `json:"id" db:"id"`
	Reference    string         `json:"reference" db:"reference"`
	SellerID     int64          `json:"seller_id" db:"seller_id"`
	Amount       float64        `json:"amount" db:"amount"`
	Currency     string         `json:"currency" db:"currency"`
	Status       Status         `json:"status" db:"status"`
	PurchaseType PurchaseType   `json:"purchase_type" db:"purchase_type"`
	PurchaseID   sql.NullInt64  `json:"purchase_id,omitempty" db:"purchase_id"`
	CompletedAt  sql.NullTime   `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// Completed reports whether the transaction reached its terminal paid state.
func (t *Transaction) Completed() bool {
	return t.Status == StatusCompleted
}
