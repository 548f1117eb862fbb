package payments

import (
	"context"
	"fmt"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/gateway"
)

// GatewayAPI is the resilience-wrapped payment gateway surface the card way
// submits through.
type GatewayAPI interface {
	RequestPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error)
}

// CardProcessor settles asynchronously: the submission is a network call made
// outside any transaction or row lock, and the outcome arrives later on the
// gateway callback.
type CardProcessor struct {
	gateway     GatewayAPI
	callbackURL string
}

func NewCardProcessor(gw GatewayAPI, callbackURL string) *CardProcessor {
	return &CardProcessor{gateway: gw, callbackURL: callbackURL}
}

func (p *CardProcessor) Settlement() Settlement { return SettleAsync }

func (p *CardProcessor) Process(ctx context.Context, payment *domain.Payment, card *domain.CardDetails) (Outcome, error) {
	if card == nil {
		return Outcome{Status: domain.PaymentStatusFailed}, fmt.Errorf("%w: card details required", domain.ErrBadRequest)
	}

	result, err := p.gateway.RequestPayment(ctx, gateway.PaymentRequest{
		OrderKey:    payment.OrderKey,
		UserID:      payment.UserID,
		Amount:      payment.Amount,
		Card:        *card,
		CallbackURL: p.callbackURL,
	})
	if err != nil {
		// Declines fail the payment; unavailability leaves it pending for
		// out-of-band resolution. The caller tells them apart by error.
		return Outcome{Status: domain.PaymentStatusPending}, err
	}

	outcome := Outcome{TransactionKey: result.TransactionKey}
	switch result.Status {
	case domain.TransactionStatusSuccess:
		outcome.Status = domain.PaymentStatusCompleted
		return outcome, nil
	case domain.TransactionStatusFailed:
		outcome.Status = domain.PaymentStatusFailed
		return outcome, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, result.Reason)
	default:
		outcome.Status = domain.PaymentStatusPending
		return outcome, nil
	}
}
