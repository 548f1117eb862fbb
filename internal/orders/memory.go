package orders

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/commercekit/fulfillment/internal/domain"
)

// MemStore is the in-memory double used by unit tests, including the
// concurrent idempotent-completion tests. TransitionStatus has the same
// exactly-one-winner semantics as the conditional UPDATE.
type MemStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[string]*domain.Order)}
}

func (s *MemStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = uuid.New().String()
	clone := *order
	clone.Items = append([]domain.OrderItem(nil), order.Items...)
	s.orders[order.ID] = &clone
	return nil
}

func (s *MemStore) FindByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	clone := *order
	clone.Items = append([]domain.OrderItem(nil), order.Items...)
	return &clone, nil
}

func (s *MemStore) FindByUser(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *MemStore) TransitionStatus(_ context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return false, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	if order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}
