package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/tx"
)

// Store persists the order aggregate. All methods join the ambient
// transaction when one is bound to the context.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, order *domain.Order) error {
	q := tx.Executor(ctx, s.db)

	order.ID = uuid.New().String()

	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, coupon_ids, subtotal, discount, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, order.ID, order.UserID, order.Status, pq.Array(order.CouponIDs),
		order.Subtotal, order.Discount, order.Total, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), order.ID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	q := tx.Executor(ctx, s.db)

	order := &domain.Order{}
	var couponIDs pq.StringArray
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, status, coupon_ids, subtotal, discount, total, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.Status, &couponIDs,
		&order.Subtotal, &order.Discount, &order.Total, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	order.CouponIDs = couponIDs

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, price
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}

func (s *Store) FindByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	q := tx.Executor(ctx, s.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, status, coupon_ids, subtotal, discount, total, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Order
	for rows.Next() {
		var order domain.Order
		var couponIDs pq.StringArray
		if err := rows.Scan(&order.ID, &order.UserID, &order.Status, &couponIDs,
			&order.Subtotal, &order.Discount, &order.Total, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.CouponIDs = couponIDs
		out = append(out, order)
	}

	return out, rows.Err()
}

// TransitionStatus moves the order from one status to another and reports
// whether this call made the change. Under N concurrent completion attempts
// the conditional write lets exactly one through; the row lock serializes the
// rest, whose RowsAffected comes back zero.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	q := tx.Executor(ctx, s.db)

	result, err := q.ExecContext(ctx, `
		UPDATE orders SET status = $3
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
