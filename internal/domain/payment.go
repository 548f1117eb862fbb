package domain

import "time"

type PaymentType string

const (
	PaymentTypePoint PaymentType = "POINT"
	PaymentTypeCard  PaymentType = "CARD"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Payment tracks one payment attempt for an order. OrderKey is the UUIDv7
// idempotency token identifying the submission to the external gateway;
// resubmitting the same key is safe on the gateway side.
type Payment struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"order_id"`
	UserID    string        `json:"user_id"`
	OrderKey  string        `json:"order_key"`
	Type      PaymentType   `json:"type"`
	Amount    int64         `json:"amount"`
	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// PaymentTransaction is one gateway response in the payment's append-only
// transaction history.
type PaymentTransaction struct {
	ID             string            `json:"id"`
	PaymentID      string            `json:"payment_id"`
	TransactionKey string            `json:"transaction_key"`
	Status         TransactionStatus `json:"status"`
	Reason         string            `json:"reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type CardDetails struct {
	CardType string `json:"card_type"`
	CardNo   string `json:"card_no"`
}
