package domain

import (
	"errors"
	"math"
	"testing"
)

func TestPointBalance_Charge(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		amount  int64
		want    int64
		wantErr error
	}{
		{"adds to balance", 1000, 500, 1500, nil},
		{"rejects zero", 1000, 0, 0, ErrInvalidAmount},
		{"rejects negative", 1000, -10, 0, ErrInvalidAmount},
		{"rejects overflow", math.MaxInt64 - 1, 2, 0, ErrBalanceOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PointBalance{UserID: "u", Amount: tt.balance}.Charge(tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Charge(%d) error = %v, want %v", tt.amount, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Charge(%d) = %d, want %d", tt.amount, got, tt.want)
			}
		})
	}
}

func TestPointBalance_Deduct(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		amount  int64
		want    int64
		wantErr error
	}{
		{"deducts from balance", 1000, 400, 600, nil},
		{"deducts to zero", 1000, 1000, 0, nil},
		{"rejects overdraw", 1000, 1001, 0, ErrInsufficientBalance},
		{"rejects zero", 1000, 0, 0, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PointBalance{UserID: "u", Amount: tt.balance}.Deduct(tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deduct(%d) error = %v, want %v", tt.amount, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Deduct(%d) = %d, want %d", tt.amount, got, tt.want)
			}
		})
	}
}
