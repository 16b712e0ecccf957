// internal/repository/postgres/transaction_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"sokoni-service/internal/domain/transaction"
	xerrors "sokoni-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionRepository is read-only: payment state is owned by the payment
// workflow, this engine only consumes completed transactions.
type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, reference, seller_id, amount, currency, status, purchase_type, purchase_id,
	completed_at, created_at`

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := row.Scan(
		&t.ID, &t.Reference, &t.SellerID, &t.Amount, &t.Currency,
		&t.Status, &t.PurchaseType, &t.PurchaseID, &t.CompletedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByID retrieves a payment transaction.
func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE id = $1`, transactionColumns)

	t, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}

	return t, nil
}

// ListBySeller retrieves a seller's transactions, newest first.
func (r *TransactionRepository) ListBySeller(ctx context.Context, sellerID int64, limit int) ([]transaction.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, transactionColumns)

	rows, err := r.db.Query(ctx, query, sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []transaction.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}

	return txns, nil
}
