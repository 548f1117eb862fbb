package coupons

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/tx"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByIDs(ctx context.Context, ids []string) ([]domain.Coupon, error) {
	q := tx.Executor(ctx, s.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, type, value FROM coupons WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Coupon
	for rows.Next() {
		var c domain.Coupon
		if err := rows.Scan(&c.ID, &c.Type, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// HasUsage reports whether the user already redeemed any of the coupons.
func (s *Store) HasUsage(ctx context.Context, userID string, couponIDs []string) (bool, error) {
	q := tx.Executor(ctx, s.db)

	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_usages
		WHERE user_id = $1 AND coupon_id = ANY($2)
	`, userID, pq.Array(couponIDs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordUsage marks the coupons redeemed. The unique (coupon_id, user_id)
// constraint turns a concurrent double redemption into a conflict, which
// aborts the enclosing transaction.
func (s *Store) RecordUsage(ctx context.Context, userID string, couponIDs []string) error {
	q := tx.Executor(ctx, s.db)

	for _, couponID := range couponIDs {
		result, err := q.ExecContext(ctx, `
			INSERT INTO coupon_usages (coupon_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (coupon_id, user_id) DO NOTHING
		`, couponID, userID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: coupon %s", domain.ErrCouponAlreadyUsed, couponID)
		}
	}
	return nil
}
