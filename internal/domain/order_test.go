package domain

import (
	"errors"
	"testing"
)

func TestNewOrder(t *testing.T) {
	t.Run("computes subtotal from snapshots", func(t *testing.T) {
		order, err := NewOrder("user-1", []OrderItem{
			{ProductID: "p1", Quantity: 2, Price: 1500},
			{ProductID: "p2", Quantity: 1, Price: 9000},
		})
		if err != nil {
			t.Fatalf("NewOrder() error = %v", err)
		}
		if order.Subtotal != 12000 {
			t.Errorf("Subtotal = %d, want 12000", order.Subtotal)
		}
		if order.Total != 12000 {
			t.Errorf("Total = %d, want 12000", order.Total)
		}
		if order.Status != OrderStatusPending {
			t.Errorf("Status = %s, want PENDING", order.Status)
		}
	})

	t.Run("rejects empty order", func(t *testing.T) {
		if _, err := NewOrder("user-1", nil); !errors.Is(err, ErrEmptyOrder) {
			t.Errorf("expected ErrEmptyOrder, got %v", err)
		}
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		_, err := NewOrder("user-1", []OrderItem{{ProductID: "p1", Quantity: 0, Price: 100}})
		if !errors.Is(err, ErrBadRequest) {
			t.Errorf("expected ErrBadRequest, got %v", err)
		}
	})
}

func TestOrder_ApplyDiscount(t *testing.T) {
	tests := []struct {
		name     string
		discount int64
		want     int64
	}{
		{"partial discount", 3000, 7000},
		{"discount above subtotal clamps to zero total", 99999, 0},
		{"negative discount ignored", -50, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := NewOrder("user-1", []OrderItem{{ProductID: "p1", Quantity: 1, Price: 10000}})
			if err != nil {
				t.Fatalf("NewOrder() error = %v", err)
			}
			order.ApplyDiscount(tt.discount)
			if order.Total != tt.want {
				t.Errorf("Total = %d, want %d", order.Total, tt.want)
			}
			if order.Total < 0 {
				t.Errorf("total went negative: %d", order.Total)
			}
		})
	}
}

func TestOrder_Transitions(t *testing.T) {
	t.Run("complete is idempotent", func(t *testing.T) {
		order, _ := NewOrder("user-1", []OrderItem{{ProductID: "p1", Quantity: 1, Price: 100}})

		changed, err := order.Complete()
		if err != nil || !changed {
			t.Fatalf("first Complete() = (%v, %v), want (true, nil)", changed, err)
		}
		changed, err = order.Complete()
		if err != nil || changed {
			t.Fatalf("second Complete() = (%v, %v), want (false, nil)", changed, err)
		}
	})

	t.Run("completing a cancelled order conflicts", func(t *testing.T) {
		order, _ := NewOrder("user-1", []OrderItem{{ProductID: "p1", Quantity: 1, Price: 100}})
		if _, err := order.Cancel(); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if _, err := order.Complete(); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("cancelling a completed order conflicts", func(t *testing.T) {
		order, _ := NewOrder("user-1", []OrderItem{{ProductID: "p1", Quantity: 1, Price: 100}})
		if _, err := order.Complete(); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if _, err := order.Cancel(); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})
}
