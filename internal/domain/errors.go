package domain

import (
	"errors"
	"fmt"
)

// Base errors classify failures for the HTTP layer. Specific errors wrap one
// of these so callers can match with errors.Is against either level.
var (
	ErrNotFound           = errors.New("not found")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("conflict")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

var (
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", ErrBadRequest)
	ErrInsufficientStock   = fmt.Errorf("%w: insufficient stock", ErrBadRequest)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient point balance", ErrBadRequest)
	ErrBalanceOverflow     = fmt.Errorf("%w: point balance overflow", ErrBadRequest)
	ErrEmptyOrder          = fmt.Errorf("%w: order must contain at least one item", ErrBadRequest)
	ErrProductNotOnSale    = fmt.Errorf("%w: product is not open for sale", ErrBadRequest)
	ErrCouponAlreadyUsed   = fmt.Errorf("%w: coupon already redeemed", ErrConflict)
	ErrOrderNotOwned       = fmt.Errorf("%w: order does not belong to user", ErrBadRequest)
	ErrOrderNotPending     = fmt.Errorf("%w: order is not pending", ErrConflict)

	// ErrConcurrencyExhausted is returned when an optimistic write loses the
	// version race on every permitted attempt.
	ErrConcurrencyExhausted = errors.New("optimistic retries exhausted")

	// ErrGatewayTimeout classifies a call that exceeded its deadline, as
	// opposed to one the gateway answered or refused.
	ErrGatewayTimeout = fmt.Errorf("%w: call timed out", ErrGatewayUnavailable)

	// ErrPaymentDeclined is a business outcome reported by the gateway. It is
	// deliberately not wrapped in ErrGatewayUnavailable: a decline cancels the
	// order, unavailability leaves it pending.
	ErrPaymentDeclined = errors.New("payment declined by gateway")
)
