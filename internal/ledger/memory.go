package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/commercekit/fulfillment/internal/domain"
)

// In-memory counterparts of the postgres stores. They honor the same
// contracts (all-or-nothing batches, version-checked writes) and back the
// unit tests and the concurrency property tests.

type MemStockStore struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func NewMemStockStore(products ...*domain.Product) *MemStockStore {
	s := &MemStockStore{products: make(map[string]*domain.Product)}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *MemStockStore) FindByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemStockStore) SetPrice(id string, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.Price = price
	}
}

func (s *MemStockStore) LockAndDeduct(_ context.Context, lines []DeductLine) (map[string]int, error) {
	if len(lines) == 0 {
		return nil, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	quantities := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		quantities[line.ProductID] += line.Quantity
	}

	// Validate every line before touching anything.
	for id, qty := range quantities {
		p, ok := s.products[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
		}
		if !p.Sellable() {
			return nil, fmt.Errorf("%w: product %s", domain.ErrProductNotOnSale, id)
		}
		if p.Stock < qty {
			return nil, fmt.Errorf("%w: product %s has %d, need %d", domain.ErrInsufficientStock, id, p.Stock, qty)
		}
	}

	remaining := make(map[string]int, len(quantities))
	for id, qty := range quantities {
		p := s.products[id]
		p.Stock -= qty
		if p.Stock == 0 {
			p.Status = domain.ProductStatusOutOfStock
		}
		remaining[id] = p.Stock
	}
	return remaining, nil
}

type MemPointStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewMemPointStore() *MemPointStore {
	return &MemPointStore{balances: make(map[string]int64)}
}

func (s *MemPointStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *MemPointStore) LockAndCharge(_ context.Context, userID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := domain.PointBalance{UserID: userID, Amount: s.balances[userID]}
	next, err := balance.Charge(amount)
	if err != nil {
		return 0, err
	}
	s.balances[userID] = next
	return next, nil
}

func (s *MemPointStore) LockAndDeduct(_ context.Context, userID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := domain.PointBalance{UserID: userID, Amount: s.balances[userID]}
	next, err := balance.Deduct(amount)
	if err != nil {
		return 0, err
	}
	s.balances[userID] = next
	return next, nil
}

type likeKey struct {
	targetID   string
	targetType domain.LikeTargetType
}

type MemLikeStore struct {
	mu        sync.Mutex
	summaries map[likeKey]*domain.LikeSummary
}

func NewMemLikeStore() *MemLikeStore {
	return &MemLikeStore{summaries: make(map[likeKey]*domain.LikeSummary)}
}

func (s *MemLikeStore) ReadWithVersion(_ context.Context, targetID string, targetType domain.LikeTargetType) (domain.LikeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := likeKey{targetID, targetType}
	if _, ok := s.summaries[key]; !ok {
		s.summaries[key] = &domain.LikeSummary{TargetID: targetID, TargetType: targetType}
	}
	return *s.summaries[key], nil
}

func (s *MemLikeStore) WriteIfVersionMatches(_ context.Context, summary domain.LikeSummary, newCount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := likeKey{summary.TargetID, summary.TargetType}
	current, ok := s.summaries[key]
	if !ok || current.Version != summary.Version {
		return false, nil
	}
	current.LikeCount = newCount
	current.Version++
	return true, nil
}
