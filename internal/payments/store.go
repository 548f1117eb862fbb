package payments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/tx"
)

// Store persists payments and their append-only transaction history.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, payment *domain.Payment) error {
	q := tx.Executor(ctx, s.db)

	payment.ID = uuid.New().String()

	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, order_key, type, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.OrderID, payment.UserID, payment.OrderKey,
		payment.Type, payment.Amount, payment.Status, payment.CreatedAt)
	return err
}

func (s *Store) FindByOrderKey(ctx context.Context, orderKey string) (*domain.Payment, error) {
	q := tx.Executor(ctx, s.db)

	payment := &domain.Payment{}
	err := q.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, order_key, type, amount, status, created_at
		FROM payments
		WHERE order_key = $1
	`, orderKey).Scan(&payment.ID, &payment.OrderID, &payment.UserID, &payment.OrderKey,
		&payment.Type, &payment.Amount, &payment.Status, &payment.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: payment for order key %s", domain.ErrNotFound, orderKey)
		}
		return nil, err
	}
	return payment, nil
}

func (s *Store) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	q := tx.Executor(ctx, s.db)

	payment := &domain.Payment{}
	err := q.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, order_key, type, amount, status, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID).Scan(&payment.ID, &payment.OrderID, &payment.UserID, &payment.OrderKey,
		&payment.Type, &payment.Amount, &payment.Status, &payment.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: payment for order %s", domain.ErrNotFound, orderID)
		}
		return nil, err
	}
	return payment, nil
}

// TransitionStatus is the conditional write that keeps callback handling
// idempotent: only one caller moves the payment out of PENDING.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error) {
	q := tx.Executor(ctx, s.db)

	result, err := q.ExecContext(ctx, `
		UPDATE payments SET status = $3
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// AppendTransaction records one gateway response. History is append-only.
func (s *Store) AppendTransaction(ctx context.Context, ptx *domain.PaymentTransaction) error {
	q := tx.Executor(ctx, s.db)

	ptx.ID = uuid.New().String()

	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_transactions (id, payment_id, transaction_key, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ptx.ID, ptx.PaymentID, ptx.TransactionKey, ptx.Status, ptx.Reason, ptx.CreatedAt)
	return err
}
