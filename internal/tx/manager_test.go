package tx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/commercekit/fulfillment/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_PhasedDispatch(t *testing.T) {
	t.Run("pre-commit runs before post-commit, exactly once each", func(t *testing.T) {
		bus := NewBus()
		var pre, post atomic.Int32
		preDone := make(chan struct{})

		bus.SubscribePreCommit("order.placed", func(ctx context.Context, _ domain.Event) error {
			pre.Add(1)
			close(preDone)
			return nil
		})
		bus.SubscribePostCommit("order.placed", func(ctx context.Context, _ domain.Event) error {
			select {
			case <-preDone:
			default:
				t.Error("post-commit handler ran before pre-commit finished")
			}
			post.Add(1)
			return nil
		})

		m := NewMemManager(bus, testLogger())
		err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
			return Publish(ctx, domain.OrderPlacedEvent{OrderID: "o1"})
		})
		if err != nil {
			t.Fatalf("WithTransaction() error = %v", err)
		}
		m.Wait()

		if pre.Load() != 1 {
			t.Errorf("pre-commit dispatches = %d, want 1", pre.Load())
		}
		if post.Load() != 1 {
			t.Errorf("post-commit dispatches = %d, want 1", post.Load())
		}
	})

	t.Run("pre-commit error aborts and suppresses post-commit", func(t *testing.T) {
		bus := NewBus()
		sentinel := errors.New("stock gone")
		var post atomic.Int32

		bus.SubscribePreCommit("order.completed", func(context.Context, domain.Event) error {
			return sentinel
		})
		bus.SubscribePostCommit("order.completed", func(context.Context, domain.Event) error {
			post.Add(1)
			return nil
		})

		m := NewMemManager(bus, testLogger())
		err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
			return Publish(ctx, domain.OrderCompletedEvent{OrderID: "o1"})
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("WithTransaction() error = %v, want %v", err, sentinel)
		}
		m.Wait()

		if post.Load() != 0 {
			t.Errorf("post-commit ran %d times after aborted transaction", post.Load())
		}
	})

	t.Run("fn error suppresses all handlers", func(t *testing.T) {
		bus := NewBus()
		var pre atomic.Int32
		bus.SubscribePreCommit("order.placed", func(context.Context, domain.Event) error {
			pre.Add(1)
			return nil
		})

		m := NewMemManager(bus, testLogger())
		boom := errors.New("boom")
		err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
			if err := Publish(ctx, domain.OrderPlacedEvent{OrderID: "o1"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTransaction() error = %v, want %v", err, boom)
		}
		if pre.Load() != 0 {
			t.Errorf("pre-commit ran %d times for a failed transaction", pre.Load())
		}
	})

	t.Run("post-commit failures are isolated from each other", func(t *testing.T) {
		bus := NewBus()
		var mu sync.Mutex
		var survived []string

		bus.SubscribePostCommit("order.completed", func(context.Context, domain.Event) error {
			return errors.New("sink down")
		})
		bus.SubscribePostCommit("order.completed", func(context.Context, domain.Event) error {
			panic("handler bug")
		})
		bus.SubscribePostCommit("order.completed", func(context.Context, domain.Event) error {
			mu.Lock()
			survived = append(survived, "counter")
			mu.Unlock()
			return nil
		})

		m := NewMemManager(bus, testLogger())
		err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
			return Publish(ctx, domain.OrderCompletedEvent{OrderID: "o1"})
		})
		if err != nil {
			t.Fatalf("WithTransaction() error = %v", err)
		}
		m.Wait()

		mu.Lock()
		defer mu.Unlock()
		if len(survived) != 1 {
			t.Errorf("expected the healthy handler to run once, got %v", survived)
		}
	})

	t.Run("post-commit outlives caller cancellation", func(t *testing.T) {
		bus := NewBus()
		ran := make(chan struct{})
		bus.SubscribePostCommit("order.placed", func(ctx context.Context, _ domain.Event) error {
			if ctx.Err() != nil {
				t.Errorf("post-commit context already cancelled: %v", ctx.Err())
			}
			close(ran)
			return nil
		})

		m := NewMemManager(bus, testLogger())
		ctx, cancel := context.WithCancel(context.Background())
		err := m.WithTransaction(ctx, func(ctx context.Context) error {
			return Publish(ctx, domain.OrderPlacedEvent{OrderID: "o1"})
		})
		cancel()
		if err != nil {
			t.Fatalf("WithTransaction() error = %v", err)
		}

		select {
		case <-ran:
		case <-time.After(time.Second):
			t.Fatal("post-commit handler never ran")
		}
		m.Wait()
	})

	t.Run("events published by pre-commit handlers are dispatched too", func(t *testing.T) {
		bus := NewBus()
		var cancelled atomic.Int32

		bus.SubscribePreCommit("order.completed", func(ctx context.Context, _ domain.Event) error {
			return Publish(ctx, domain.OrderCancelledEvent{OrderID: "o2"})
		})
		bus.SubscribePreCommit("order.cancelled", func(context.Context, domain.Event) error {
			cancelled.Add(1)
			return nil
		})

		m := NewMemManager(bus, testLogger())
		err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
			return Publish(ctx, domain.OrderCompletedEvent{OrderID: "o1"})
		})
		if err != nil {
			t.Fatalf("WithTransaction() error = %v", err)
		}
		if cancelled.Load() != 1 {
			t.Errorf("chained event dispatched %d times, want 1", cancelled.Load())
		}
	})
}

func TestPublish_OutsideTransaction(t *testing.T) {
	if err := Publish(context.Background(), domain.OrderPlacedEvent{}); err == nil {
		t.Fatal("expected an error publishing outside a transaction")
	}
}

func TestManager_PanicRollsBack(t *testing.T) {
	bus := NewBus()
	var pre atomic.Int32
	bus.SubscribePreCommit("order.placed", func(context.Context, domain.Event) error {
		pre.Add(1)
		return nil
	})

	m := NewMemManager(bus, testLogger())
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		_ = m.WithTransaction(context.Background(), func(ctx context.Context) error {
			_ = Publish(ctx, domain.OrderPlacedEvent{OrderID: "o1"})
			panic("mid-transaction bug")
		})
	}()

	if pre.Load() != 0 {
		t.Errorf("pre-commit ran %d times for a panicked transaction", pre.Load())
	}
}
