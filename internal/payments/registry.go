package payments

import (
	"context"
	"fmt"

	"github.com/commercekit/fulfillment/internal/domain"
)

// Settlement tells the orchestrator how a payment way concludes.
type Settlement int

const (
	// SettleSync: Process runs inside the orchestrator's transaction and the
	// payment settles before it commits.
	SettleSync Settlement = iota
	// SettleAsync: Process runs outside any transaction or lock (it performs
	// network I/O) and the payment settles via gateway callback.
	SettleAsync
)

// Outcome is what a payment way reports back from Process. TransactionKey is
// non-empty when the gateway answered the submission itself, so the caller can
// append the response to the payment's transaction history.
type Outcome struct {
	Status         domain.PaymentStatus
	TransactionKey string
}

// Processor is one payment way.
type Processor interface {
	Settlement() Settlement
	Process(ctx context.Context, payment *domain.Payment, card *domain.CardDetails) (Outcome, error)
}

// Registry is the static payment-way table, built once at startup and
// resolved per call.
type Registry struct {
	processors map[domain.PaymentType]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[domain.PaymentType]Processor)}
}

func (r *Registry) Register(t domain.PaymentType, p Processor) {
	r.processors[t] = p
}

func (r *Registry) Resolve(t domain.PaymentType) (Processor, error) {
	p, ok := r.processors[t]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported payment type %q", domain.ErrBadRequest, t)
	}
	return p, nil
}
