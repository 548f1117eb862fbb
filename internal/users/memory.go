package users

import (
	"context"
	"fmt"
	"sync"

	"github.com/commercekit/fulfillment/internal/domain"
)

type MemStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func NewMemStore(users ...domain.User) *MemStore {
	s := &MemStore{users: make(map[string]domain.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *MemStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return &u, nil
}
