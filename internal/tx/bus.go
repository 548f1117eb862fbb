package tx

import (
	"context"
	"sync"

	"github.com/commercekit/fulfillment/internal/domain"
)

// Handler processes one event. Pre-commit handlers run inside the publishing
// transaction and abort it by returning an error; post-commit handlers run
// after commit and their errors are logged, never propagated.
type Handler func(ctx context.Context, event domain.Event) error

// Bus holds the subscription tables for both dispatch phases, keyed by event
// name. Subscriptions are registered at startup; dispatch happens through the
// Manager, which owns the per-transaction event queue.
type Bus struct {
	mu         sync.RWMutex
	preCommit  map[string][]Handler
	postCommit map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{
		preCommit:  make(map[string][]Handler),
		postCommit: make(map[string][]Handler),
	}
}

func (b *Bus) SubscribePreCommit(eventName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.preCommit[eventName] = append(b.preCommit[eventName], h)
}

func (b *Bus) SubscribePostCommit(eventName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.postCommit[eventName] = append(b.postCommit[eventName], h)
}

func (b *Bus) preCommitHandlers(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.preCommit[eventName]
}

func (b *Bus) postCommitHandlers(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.postCommit[eventName]
}
