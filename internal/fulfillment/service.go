package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/commercekit/fulfillment/internal/coupons"
	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/gateway"
	"github.com/commercekit/fulfillment/internal/payments"
	"github.com/commercekit/fulfillment/internal/tx"
)

var (
	tracer = otel.Tracer("fulfillment")
	meter  = otel.Meter("fulfillment")

	ordersPlaced, _ = meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders accepted in PENDING state"))
	paymentsSettled, _ = meter.Int64Counter("payments_settled_total",
		metric.WithDescription("Payments that reached a terminal status"))
)

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByUser(ctx context.Context, userID string) ([]domain.Order, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

type ProductCatalog interface {
	FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

type CouponStore interface {
	FindByIDs(ctx context.Context, ids []string) ([]domain.Coupon, error)
	HasUsage(ctx context.Context, userID string, couponIDs []string) (bool, error)
	RecordUsage(ctx context.Context, userID string, couponIDs []string) error
}

type PaymentStore interface {
	Create(ctx context.Context, payment *domain.Payment) error
	FindByOrderKey(ctx context.Context, orderKey string) (*domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error)
	AppendTransaction(ctx context.Context, ptx *domain.PaymentTransaction) error
}

// GatewayReader verifies callback payloads against the gateway before any
// state changes, through the resilience wrapper.
type GatewayReader interface {
	FindTransaction(ctx context.Context, transactionKey string) (*gateway.PaymentResult, error)
}

// PointLedger is the exclusive-lock wallet the point operations run against.
type PointLedger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	LockAndCharge(ctx context.Context, userID string, amount int64) (int64, error)
}

// OrderLine is one requested product quantity; the price snapshot is taken
// from the catalog inside PlaceOrder.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Service is the order fulfillment façade: place -> pay -> complete/cancel.
// All multi-step writes run inside Manager transactions; side effects ride
// the phased event bus.
type Service struct {
	manager  *tx.Manager
	orders   OrderStore
	users    UserStore
	catalog  ProductCatalog
	coupons  CouponStore
	payments PaymentStore
	registry *payments.Registry
	gateway  GatewayReader
	points   PointLedger
	logger   *slog.Logger
}

func NewService(
	manager *tx.Manager,
	orderStore OrderStore,
	userStore UserStore,
	catalog ProductCatalog,
	couponStore CouponStore,
	paymentStore PaymentStore,
	registry *payments.Registry,
	gatewayReader GatewayReader,
	points PointLedger,
	logger *slog.Logger,
) *Service {
	return &Service{
		manager:  manager,
		orders:   orderStore,
		users:    userStore,
		catalog:  catalog,
		coupons:  couponStore,
		payments: paymentStore,
		registry: registry,
		gateway:  gatewayReader,
		points:   points,
		logger:   logger,
	}
}

// PlaceOrder validates the user, snapshots catalog prices into the order
// items, applies coupon discounts, and persists the pending order. Stock is
// only validated here; the deduction happens under lock when the order
// completes.
func (s *Service) PlaceOrder(ctx context.Context, userID string, lines []OrderLine, couponIDs []string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "fulfillment.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if len(lines) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	var order *domain.Order
	err := s.manager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.users.FindByID(txCtx, userID); err != nil {
			return err
		}

		items, err := s.snapshotItems(txCtx, lines)
		if err != nil {
			return err
		}

		order, err = domain.NewOrder(userID, items)
		if err != nil {
			return err
		}

		if len(couponIDs) > 0 {
			discount, err := s.resolveDiscount(txCtx, userID, couponIDs, order.Subtotal)
			if err != nil {
				return err
			}
			order.CouponIDs = couponIDs
			order.ApplyDiscount(discount)
		}

		if err := s.orders.Create(txCtx, order); err != nil {
			return err
		}

		return tx.Publish(txCtx, domain.OrderPlacedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			Total:     order.Total,
			Timestamp: order.CreatedAt,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order failed")
		return nil, err
	}

	ordersPlaced.Add(ctx, 1)
	s.logger.Info("order placed", "order_id", order.ID, "user_id", userID, "total", order.Total)
	return order, nil
}

func (s *Service) snapshotItems(ctx context.Context, lines []OrderLine) ([]domain.OrderItem, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, line.ProductID)
		}
		if !p.Sellable() {
			return nil, fmt.Errorf("%w: product %s", domain.ErrProductNotOnSale, line.ProductID)
		}
		if p.Stock < line.Quantity {
			return nil, fmt.Errorf("%w: product %s", domain.ErrInsufficientStock, line.ProductID)
		}
		items = append(items, domain.OrderItem{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			Price:     p.Price,
		})
	}
	return items, nil
}

func (s *Service) resolveDiscount(ctx context.Context, userID string, couponIDs []string, subtotal int64) (int64, error) {
	found, err := s.coupons.FindByIDs(ctx, couponIDs)
	if err != nil {
		return 0, err
	}
	if len(found) != len(couponIDs) {
		return 0, fmt.Errorf("%w: one or more coupons", domain.ErrNotFound)
	}
	for _, c := range found {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}

	used, err := s.coupons.HasUsage(ctx, userID, couponIDs)
	if err != nil {
		return 0, err
	}
	if used {
		return 0, domain.ErrCouponAlreadyUsed
	}

	return coupons.Discount(found, subtotal), nil
}

// Pay settles an order through the payment way registered for paymentType.
// Synchronous ways (points) settle inside one transaction together with the
// order completion; asynchronous ways (card) submit to the gateway outside
// any lock and settle on callback.
func (s *Service) Pay(ctx context.Context, userID, orderID string, paymentType domain.PaymentType, card *domain.CardDetails) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "fulfillment.Pay")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.type", string(paymentType)),
	)

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotOwned
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotPending, orderID, order.Status)
	}

	processor, err := s.registry.Resolve(paymentType)
	if err != nil {
		return nil, err
	}

	orderKey, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate order key: %w", err)
	}

	payment := &domain.Payment{
		OrderID:   order.ID,
		UserID:    userID,
		OrderKey:  orderKey.String(),
		Type:      paymentType,
		Amount:    order.Total,
		Status:    domain.PaymentStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if processor.Settlement() == payments.SettleSync {
		err = s.paySync(ctx, processor, payment, card, order)
	} else {
		err = s.payAsync(ctx, processor, payment, card, order)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment failed")
		return nil, err
	}

	// Async settlements are counted where the status transition wins, so a
	// terminal status here only counts for the synchronous ways.
	if processor.Settlement() == payments.SettleSync && payment.Status != domain.PaymentStatusPending {
		paymentsSettled.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(payment.Status))))
	}
	s.logger.Info("payment accepted",
		"order_id", order.ID, "payment_id", payment.ID,
		"type", paymentType, "status", payment.Status)
	return payment, nil
}

// paySync runs the payment way and the order completion in one transaction:
// if the point deduction, the stock deduction, or the coupon redemption
// fails, everything rolls back together.
func (s *Service) paySync(ctx context.Context, processor payments.Processor, payment *domain.Payment, card *domain.CardDetails, order *domain.Order) error {
	return s.manager.WithTransaction(ctx, func(txCtx context.Context) error {
		outcome, err := processor.Process(txCtx, payment, card)
		if err != nil {
			return err
		}
		payment.Status = outcome.Status

		if err := s.payments.Create(txCtx, payment); err != nil {
			return err
		}
		return s.completeOrder(txCtx, order)
	})
}

// payAsync persists the pending payment first, then submits to the gateway
// with no transaction or row lock held across the network call.
func (s *Service) payAsync(ctx context.Context, processor payments.Processor, payment *domain.Payment, card *domain.CardDetails, order *domain.Order) error {
	err := s.manager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.payments.Create(txCtx, payment)
	})
	if err != nil {
		return err
	}

	outcome, err := processor.Process(ctx, payment, card)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentDeclined) {
			if settleErr := s.settleFailure(ctx, payment, outcome.TransactionKey, err.Error()); settleErr != nil {
				s.logger.Error("failed to cancel order after decline",
					"order_id", order.ID, "error", settleErr)
			}
			payment.Status = domain.PaymentStatusFailed
			return err
		}
		// Gateway unavailable: the outcome is indeterminate, not failed. The
		// order and payment stay pending for the callback or reconciliation.
		s.logger.Warn("payment outcome indeterminate",
			"order_id", order.ID, "order_key", payment.OrderKey, "error", err)
		return err
	}

	// The gateway can answer the submission itself; settle in place so the
	// caller sees the terminal status and the response lands in the history.
	switch outcome.Status {
	case domain.PaymentStatusCompleted:
		if err := s.settleSuccess(ctx, payment, outcome.TransactionKey); err != nil {
			return err
		}
		payment.Status = domain.PaymentStatusCompleted
		return nil
	default:
		return nil
	}
}

// HandleGatewayCallback reacts to the gateway's webhook. The reported status
// is verified against the gateway before anything changes, and the whole
// handler is idempotent: replays and concurrent duplicates converge on the
// first outcome.
func (s *Service) HandleGatewayCallback(ctx context.Context, transactionKey string, reported domain.TransactionStatus) error {
	ctx, span := tracer.Start(ctx, "fulfillment.HandleGatewayCallback")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.key", transactionKey),
		attribute.String("status.reported", string(reported)),
	)

	result, err := s.gateway.FindTransaction(ctx, transactionKey)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if result.Status != reported {
		s.logger.Warn("callback status mismatch, using gateway's answer",
			"transaction_key", transactionKey,
			"reported", reported, "actual", result.Status)
	}

	payment, err := s.payments.FindByOrderKey(ctx, result.OrderKey)
	if err != nil {
		return err
	}

	switch result.Status {
	case domain.TransactionStatusSuccess:
		return s.settleSuccess(ctx, payment, transactionKey)
	case domain.TransactionStatusFailed:
		return s.settleFailure(ctx, payment, transactionKey, result.Reason)
	default:
		// Still pending on the gateway side; nothing to settle yet.
		return nil
	}
}

func (s *Service) settleSuccess(ctx context.Context, payment *domain.Payment, transactionKey string) error {
	var settled bool
	err := s.manager.WithTransaction(ctx, func(txCtx context.Context) error {
		changed, err := s.payments.TransitionStatus(txCtx, payment.ID,
			domain.PaymentStatusPending, domain.PaymentStatusCompleted)
		if err != nil {
			return err
		}
		settled = changed
		if changed && transactionKey != "" {
			err = s.payments.AppendTransaction(txCtx, &domain.PaymentTransaction{
				PaymentID:      payment.ID,
				TransactionKey: transactionKey,
				Status:         domain.TransactionStatusSuccess,
				CreatedAt:      time.Now().UTC(),
			})
			if err != nil {
				return err
			}
		}

		order, err := s.orders.FindByID(txCtx, payment.OrderID)
		if err != nil {
			return err
		}
		return s.completeOrder(txCtx, order)
	})
	if err != nil {
		return err
	}
	if settled {
		paymentsSettled.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(domain.PaymentStatusCompleted))))
	}
	return nil
}

func (s *Service) settleFailure(ctx context.Context, payment *domain.Payment, transactionKey, reason string) error {
	var settled bool
	err := s.manager.WithTransaction(ctx, func(txCtx context.Context) error {
		changed, err := s.payments.TransitionStatus(txCtx, payment.ID,
			domain.PaymentStatusPending, domain.PaymentStatusFailed)
		if err != nil {
			return err
		}
		if !changed {
			// Already settled by an earlier callback; idempotent no-op.
			return nil
		}
		settled = true

		if transactionKey != "" {
			err = s.payments.AppendTransaction(txCtx, &domain.PaymentTransaction{
				PaymentID:      payment.ID,
				TransactionKey: transactionKey,
				Status:         domain.TransactionStatusFailed,
				Reason:         reason,
				CreatedAt:      time.Now().UTC(),
			})
			if err != nil {
				return err
			}
		}
		return s.cancelOrder(txCtx, payment.OrderID, reason)
	})
	if err != nil {
		return err
	}
	if settled {
		paymentsSettled.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(domain.PaymentStatusFailed))))
	}
	return nil
}

// completeOrder makes the PENDING -> COMPLETED transition and publishes the
// completion event. Exactly one concurrent caller wins the conditional write
// and therefore exactly one set of pre-commit side effects runs; everyone
// else observes the already-completed order as success.
func (s *Service) completeOrder(ctx context.Context, order *domain.Order) error {
	changed, err := s.orders.TransitionStatus(ctx, order.ID,
		domain.OrderStatusPending, domain.OrderStatusCompleted)
	if err != nil {
		return err
	}
	if !changed {
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderStatusCompleted {
			return nil
		}
		return fmt.Errorf("%w: order %s is %s", domain.ErrConflict, order.ID, current.Status)
	}

	return tx.Publish(ctx, domain.OrderCompletedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Items:     order.Items,
		CouponIDs: order.CouponIDs,
		Total:     order.Total,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) cancelOrder(ctx context.Context, orderID, reason string) error {
	changed, err := s.orders.TransitionStatus(ctx, orderID,
		domain.OrderStatusPending, domain.OrderStatusCancelled)
	if err != nil {
		return err
	}
	if !changed {
		current, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderStatusCancelled {
			return nil
		}
		return fmt.Errorf("%w: order %s is %s", domain.ErrConflict, orderID, current.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	return tx.Publish(ctx, domain.OrderCancelledEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

// GetOrder returns an order after an ownership check.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotOwned
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.FindByUser(ctx, userID)
}

// ChargePoints tops up the user's wallet under an exclusive row lock and
// returns the new balance.
func (s *Service) ChargePoints(ctx context.Context, userID string, amount int64) (int64, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return 0, err
	}

	var balance int64
	err := s.manager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		balance, err = s.points.LockAndCharge(txCtx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("points charged", "user_id", userID, "amount", amount, "balance", balance)
	return balance, nil
}

// PointBalance reads the wallet balance without locking.
func (s *Service) PointBalance(ctx context.Context, userID string) (int64, error) {
	return s.points.Balance(ctx, userID)
}
