package domain

import "math"

// PointBalance is a per-user point ledger row. Mutations happen under an
// exclusive row lock; these helpers only validate the arithmetic.
type PointBalance struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// Charge validates adding amount to the balance and returns the new value.
func (p PointBalance) Charge(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if p.Amount > math.MaxInt64-amount {
		return 0, ErrBalanceOverflow
	}
	return p.Amount + amount, nil
}

// Deduct validates subtracting amount from the balance and returns the new
// value. The balance never goes negative.
func (p PointBalance) Deduct(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if amount > p.Amount {
		return 0, ErrInsufficientBalance
	}
	return p.Amount - amount, nil
}
