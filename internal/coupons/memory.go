package coupons

import (
	"context"
	"fmt"
	"sync"

	"github.com/commercekit/fulfillment/internal/domain"
)

type usageKey struct {
	couponID string
	userID   string
}

// MemStore is the in-memory double for unit tests.
type MemStore struct {
	mu      sync.Mutex
	coupons map[string]domain.Coupon
	usages  map[usageKey]bool
}

func NewMemStore(coupons ...domain.Coupon) *MemStore {
	s := &MemStore{
		coupons: make(map[string]domain.Coupon),
		usages:  make(map[usageKey]bool),
	}
	for _, c := range coupons {
		s.coupons[c.ID] = c
	}
	return s
}

func (s *MemStore) FindByIDs(_ context.Context, ids []string) ([]domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Coupon
	for _, id := range ids {
		if c, ok := s.coupons[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemStore) HasUsage(_ context.Context, userID string, couponIDs []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range couponIDs {
		if s.usages[usageKey{id, userID}] {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) RecordUsage(_ context.Context, userID string, couponIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range couponIDs {
		key := usageKey{id, userID}
		if s.usages[key] {
			return fmt.Errorf("%w: coupon %s", domain.ErrCouponAlreadyUsed, id)
		}
		s.usages[key] = true
	}
	return nil
}
