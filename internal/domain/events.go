package domain

import "time"

// Event is anything the phased dispatcher can route. Name identifies the
// subscription key and the kafka message type for the analytics sink.
type Event interface {
	EventName() string
}

type OrderPlacedEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

// OrderCompletedEvent drives the atomic core of fulfillment: its pre-commit
// handlers deduct stock and record coupon redemptions inside the completing
// transaction, its post-commit handlers feed the analytics sink and counters.
type OrderCompletedEvent struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	Items     []OrderItem `json:"items"`
	CouponIDs []string    `json:"coupon_ids,omitempty"`
	Total     int64       `json:"total"`
	Timestamp time.Time   `json:"timestamp"`
}

func (OrderCompletedEvent) EventName() string { return "order.completed" }

type OrderCancelledEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderCancelledEvent) EventName() string { return "order.cancelled" }

type LikeChangedEvent struct {
	TargetID   string         `json:"target_id"`
	TargetType LikeTargetType `json:"target_type"`
	Delta      int64          `json:"delta"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (LikeChangedEvent) EventName() string { return "like.changed" }
