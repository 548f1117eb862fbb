package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/tx"
)

// DeductLine is one product quantity to remove from stock.
type DeductLine struct {
	ProductID string
	Quantity  int
}

// StockStore mutates product stock under exclusive row locks. LockAndDeduct
// must run inside an open transaction: the FOR UPDATE locks are held until
// that transaction ends, so a rollback of the enclosing business transaction
// also rolls back the deduction.
type StockStore struct {
	db *sql.DB
}

func NewStockStore(db *sql.DB) *StockStore {
	return &StockStore{db: db}
}

func (s *StockStore) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	q := tx.Executor(ctx, s.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, brand_id, name, price, stock, status
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.Status); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// LockAndDeduct locks every target row in one ordered statement, validates
// all lines against the locked values, then writes. Either every line is
// deducted or none is. Reaching zero stock flips the product to OUT_OF_STOCK.
func (s *StockStore) LockAndDeduct(ctx context.Context, lines []DeductLine) (map[string]int, error) {
	if len(lines) == 0 {
		return nil, domain.ErrInvalidAmount
	}

	quantities := make(map[string]int, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		if _, ok := quantities[line.ProductID]; !ok {
			ids = append(ids, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}

	q := tx.Executor(ctx, s.db)

	// ORDER BY keeps lock acquisition order stable across concurrent orders,
	// which rules out lock-ordering deadlocks between them.
	rows, err := q.QueryContext(ctx, `
		SELECT id, stock, status
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	locked := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Stock, &p.Status); err != nil {
			_ = rows.Close()
			return nil, err
		}
		locked[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	remaining := make(map[string]int, len(ids))
	for _, id := range ids {
		p, ok := locked[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
		}
		if !p.Sellable() {
			return nil, fmt.Errorf("%w: product %s", domain.ErrProductNotOnSale, id)
		}
		if p.Stock < quantities[id] {
			return nil, fmt.Errorf("%w: product %s has %d, need %d", domain.ErrInsufficientStock, id, p.Stock, quantities[id])
		}
		remaining[id] = p.Stock - quantities[id]
	}

	for _, id := range ids {
		_, err := q.ExecContext(ctx, `
			UPDATE products
			SET stock = $2,
			    status = CASE WHEN $2 = 0 THEN 'OUT_OF_STOCK' ELSE status END
			WHERE id = $1
		`, id, remaining[id])
		if err != nil {
			return nil, err
		}
	}

	return remaining, nil
}
