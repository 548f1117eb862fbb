package fulfillment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/ledger"
	"github.com/commercekit/fulfillment/internal/tx"
)

// InventoryStore deducts stock under exclusive row locks inside the
// completing transaction.
type InventoryStore interface {
	LockAndDeduct(ctx context.Context, lines []ledger.DeductLine) (map[string]int, error)
}

// AnalyticsSink receives domain events after commit. Failures are logged and
// isolated; they never touch the committed transaction.
type AnalyticsSink interface {
	Publish(ctx context.Context, key string, event any) error
}

// RegisterHandlers wires the order lifecycle side effects onto the bus.
//
// Pre-commit handlers run synchronously inside the publishing transaction and
// abort it on error. Post-commit handlers run after commit, isolated from one
// another, with no ordering guarantee between them.
func RegisterHandlers(bus *tx.Bus, inventory InventoryStore, coupons CouponStore, payments PaymentStore, sink AnalyticsSink, logger *slog.Logger) {
	bus.SubscribePreCommit("order.completed", deductStock(inventory))
	bus.SubscribePreCommit("order.completed", redeemCoupons(coupons))
	bus.SubscribePreCommit("order.cancelled", releasePayment(payments, logger))

	bus.SubscribePostCommit("order.placed", publishAnalytics(sink))
	bus.SubscribePostCommit("order.completed", publishAnalytics(sink))
	bus.SubscribePostCommit("order.cancelled", publishAnalytics(sink))
}

// deductStock is the atomic half of fulfillment: an insufficient-stock or
// not-on-sale failure here rolls back the order completion itself.
func deductStock(inventory InventoryStore) tx.Handler {
	return func(ctx context.Context, event domain.Event) error {
		completed, ok := event.(domain.OrderCompletedEvent)
		if !ok {
			return fmt.Errorf("%w: unexpected event %T", domain.ErrBadRequest, event)
		}

		lines := make([]ledger.DeductLine, 0, len(completed.Items))
		for _, item := range completed.Items {
			lines = append(lines, ledger.DeductLine{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}
		_, err := inventory.LockAndDeduct(ctx, lines)
		return err
	}
}

func redeemCoupons(coupons CouponStore) tx.Handler {
	return func(ctx context.Context, event domain.Event) error {
		completed, ok := event.(domain.OrderCompletedEvent)
		if !ok {
			return fmt.Errorf("%w: unexpected event %T", domain.ErrBadRequest, event)
		}
		if len(completed.CouponIDs) == 0 {
			return nil
		}
		return coupons.RecordUsage(ctx, completed.UserID, completed.CouponIDs)
	}
}

// releasePayment fails any still-pending payment when its order is cancelled,
// so a later gateway callback for it settles as an idempotent no-op.
func releasePayment(payments PaymentStore, logger *slog.Logger) tx.Handler {
	return func(ctx context.Context, event domain.Event) error {
		cancelled, ok := event.(domain.OrderCancelledEvent)
		if !ok {
			return fmt.Errorf("%w: unexpected event %T", domain.ErrBadRequest, event)
		}

		payment, err := payments.FindByOrderID(ctx, cancelled.OrderID)
		if err != nil {
			// No payment yet is the common case for cancellations.
			logger.Debug("no payment to release", "order_id", cancelled.OrderID)
			return nil
		}
		_, err = payments.TransitionStatus(ctx, payment.ID,
			domain.PaymentStatusPending, domain.PaymentStatusFailed)
		return err
	}
}

func publishAnalytics(sink AnalyticsSink) tx.Handler {
	return func(ctx context.Context, event domain.Event) error {
		return sink.Publish(ctx, event.EventName(), envelope{Name: event.EventName(), Payload: event})
	}
}

// envelope is the analytics wire shape: the event name travels alongside the
// payload so the worker can route without sniffing fields.
type envelope struct {
	Name    string       `json:"name"`
	Payload domain.Event `json:"payload"`
}
