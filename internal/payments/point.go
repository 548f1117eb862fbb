package payments

import (
	"context"

	"github.com/commercekit/fulfillment/internal/domain"
)

// PointLedger is the exclusive-lock point balance the point way charges
// against.
type PointLedger interface {
	LockAndDeduct(ctx context.Context, userID string, amount int64) (int64, error)
}

// PointProcessor settles synchronously: the point deduction happens under the
// row lock inside the orchestrator's transaction, so an abort anywhere in the
// fulfillment flow also restores the balance.
type PointProcessor struct {
	ledger PointLedger
}

func NewPointProcessor(ledger PointLedger) *PointProcessor {
	return &PointProcessor{ledger: ledger}
}

func (p *PointProcessor) Settlement() Settlement { return SettleSync }

func (p *PointProcessor) Process(ctx context.Context, payment *domain.Payment, _ *domain.CardDetails) (Outcome, error) {
	if _, err := p.ledger.LockAndDeduct(ctx, payment.UserID, payment.Amount); err != nil {
		return Outcome{Status: domain.PaymentStatusFailed}, err
	}
	return Outcome{Status: domain.PaymentStatusCompleted}, nil
}
