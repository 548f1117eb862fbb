package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/commercekit/fulfillment/internal/domain"
)

// MemStore is the in-memory double for unit tests.
type MemStore struct {
	mu           sync.Mutex
	payments     map[string]*domain.Payment
	transactions []domain.PaymentTransaction
}

func NewMemStore() *MemStore {
	return &MemStore{payments: make(map[string]*domain.Payment)}
}

func (s *MemStore) Create(_ context.Context, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment.ID = uuid.New().String()
	clone := *payment
	s.payments[payment.ID] = &clone
	return nil
}

func (s *MemStore) FindByOrderKey(_ context.Context, orderKey string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.OrderKey == orderKey {
			clone := *p
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: payment for order key %s", domain.ErrNotFound, orderKey)
}

func (s *MemStore) FindByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.OrderID == orderID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: payment for order %s", domain.ErrNotFound, orderID)
}

func (s *MemStore) TransitionStatus(_ context.Context, id string, from, to domain.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return false, fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (s *MemStore) AppendTransaction(_ context.Context, ptx *domain.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptx.ID = uuid.New().String()
	s.transactions = append(s.transactions, *ptx)
	return nil
}

// Transactions returns a copy of the recorded history, oldest first.
func (s *MemStore) Transactions() []domain.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PaymentTransaction(nil), s.transactions...)
}
