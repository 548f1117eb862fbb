package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/commercekit/fulfillment/internal/domain"
)

func TestMemStore_TransitionStatus(t *testing.T) {
	t.Run("exactly one concurrent winner", func(t *testing.T) {
		store := NewMemStore()
		order, err := domain.NewOrder("user-1", []domain.OrderItem{{ProductID: "p1", Quantity: 1, Price: 100}})
		if err != nil {
			t.Fatalf("NewOrder() error = %v", err)
		}
		if err := store.Create(context.Background(), order); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				changed, err := store.TransitionStatus(context.Background(), order.ID,
					domain.OrderStatusPending, domain.OrderStatusCompleted)
				if err != nil {
					t.Errorf("TransitionStatus() error = %v", err)
					return
				}
				if changed {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if winners != 1 {
			t.Errorf("winners = %d, want exactly 1", winners)
		}

		got, _ := store.FindByID(context.Background(), order.ID)
		if got.Status != domain.OrderStatusCompleted {
			t.Errorf("status = %s, want COMPLETED", got.Status)
		}
	})

	t.Run("wrong from-status does not transition", func(t *testing.T) {
		store := NewMemStore()
		order, _ := domain.NewOrder("user-1", []domain.OrderItem{{ProductID: "p1", Quantity: 1, Price: 100}})
		_ = store.Create(context.Background(), order)

		_, _ = store.TransitionStatus(context.Background(), order.ID,
			domain.OrderStatusPending, domain.OrderStatusCancelled)

		changed, err := store.TransitionStatus(context.Background(), order.ID,
			domain.OrderStatusPending, domain.OrderStatusCompleted)
		if err != nil {
			t.Fatalf("TransitionStatus() error = %v", err)
		}
		if changed {
			t.Error("transition out of CANCELLED succeeded, want no-op")
		}
	})
}
