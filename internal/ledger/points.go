package ledger

import (
	"context"
	"database/sql"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/tx"
)

// PointStore mutates per-user point balances under an exclusive row lock.
// The lock serializes conflicting writers, so operations never retry.
type PointStore struct {
	db *sql.DB
}

func NewPointStore(db *sql.DB) *PointStore {
	return &PointStore{db: db}
}

func (s *PointStore) Balance(ctx context.Context, userID string) (int64, error) {
	q := tx.Executor(ctx, s.db)

	var amount int64
	err := q.QueryRowContext(ctx, `
		SELECT amount FROM point_balances WHERE user_id = $1
	`, userID).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (s *PointStore) LockAndCharge(ctx context.Context, userID string, amount int64) (int64, error) {
	return s.lockAndApply(ctx, userID, func(balance domain.PointBalance) (int64, error) {
		return balance.Charge(amount)
	})
}

func (s *PointStore) LockAndDeduct(ctx context.Context, userID string, amount int64) (int64, error) {
	return s.lockAndApply(ctx, userID, func(balance domain.PointBalance) (int64, error) {
		return balance.Deduct(amount)
	})
}

// lockAndApply is one read-check-write under FOR UPDATE. The balance row is
// created lazily so there is always a row to lock.
func (s *PointStore) lockAndApply(ctx context.Context, userID string, apply func(domain.PointBalance) (int64, error)) (int64, error) {
	q := tx.Executor(ctx, s.db)

	if _, err := q.ExecContext(ctx, `
		INSERT INTO point_balances (user_id, amount)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return 0, err
	}

	balance := domain.PointBalance{UserID: userID}
	err := q.QueryRowContext(ctx, `
		SELECT amount FROM point_balances WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&balance.Amount)
	if err != nil {
		return 0, err
	}

	next, err := apply(balance)
	if err != nil {
		return 0, err
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE point_balances SET amount = $2 WHERE user_id = $1
	`, userID, next); err != nil {
		return 0, err
	}

	return next, nil
}
