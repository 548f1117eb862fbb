package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderItem carries the price as a snapshot taken at order time. The total
// charged never drifts if the catalog price changes afterwards.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Status    OrderStatus `json:"status"`
	Items     []OrderItem `json:"items"`
	CouponIDs []string    `json:"coupon_ids,omitempty"`
	Subtotal  int64       `json:"subtotal"`
	Discount  int64       `json:"discount"`
	Total     int64       `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewOrder validates and assembles a pending order. Item prices are the
// caller-supplied snapshots, not live catalog prices.
func NewOrder(userID string, items []OrderItem) (*Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrBadRequest)
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	var subtotal int64
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrBadRequest, item.ProductID)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("%w: negative price for product %s", ErrBadRequest, item.ProductID)
		}
		subtotal += int64(item.Quantity) * item.Price
	}

	return &Order{
		UserID:    userID,
		Status:    OrderStatusPending,
		Items:     items,
		Subtotal:  subtotal,
		Total:     subtotal,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ApplyDiscount reduces the total, clamped to the [0, subtotal] range.
func (o *Order) ApplyDiscount(discount int64) {
	if discount < 0 {
		discount = 0
	}
	if discount > o.Subtotal {
		discount = o.Subtotal
	}
	o.Discount = discount
	o.Total = o.Subtotal - discount
}

// Complete transitions PENDING -> COMPLETED. Completing an already completed
// order reports changed=false so concurrent duplicate signals converge on
// success; completing a cancelled order is a conflict.
func (o *Order) Complete() (changed bool, err error) {
	switch o.Status {
	case OrderStatusCompleted:
		return false, nil
	case OrderStatusCancelled:
		return false, fmt.Errorf("%w: order %s is cancelled", ErrConflict, o.ID)
	}
	o.Status = OrderStatusCompleted
	return true, nil
}

// Cancel transitions PENDING -> CANCELLED with the same terminal-state rules
// as Complete.
func (o *Order) Cancel() (changed bool, err error) {
	switch o.Status {
	case OrderStatusCancelled:
		return false, nil
	case OrderStatusCompleted:
		return false, fmt.Errorf("%w: order %s is completed", ErrConflict, o.ID)
	}
	o.Status = OrderStatusCancelled
	return true, nil
}
