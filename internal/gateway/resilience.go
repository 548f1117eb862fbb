package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/commercekit/fulfillment/internal/domain"
)

// Config holds the three resilience policies wrapping every gateway call.
// The composition is breaker(retry(timeout(call))): the breaker short-circuits
// before any retry is attempted against a known-bad gateway, each retry
// attempt gets its own deadline.
type Config struct {
	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration
	// MaxRetries is the number of re-attempts after the first call.
	MaxRetries uint64
	// FailureRateThreshold opens the breaker once the failure ratio over the
	// rolling window reaches it, provided MinimumCalls were observed.
	FailureRateThreshold float64
	MinimumCalls         uint32
	// OpenTimeout is the cool-down before the breaker goes half-open.
	OpenTimeout time.Duration
	// HalfOpenMaxCalls is how many trial calls half-open admits; that many
	// consecutive successes close the breaker, any failure reopens it.
	HalfOpenMaxCalls uint32
	// WindowInterval is the rolling window over which outcomes are counted.
	WindowInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CallTimeout:          3 * time.Second,
		MaxRetries:           2,
		FailureRateThreshold: 0.5,
		MinimumCalls:         10,
		OpenTimeout:          10 * time.Second,
		HalfOpenMaxCalls:     3,
		WindowInterval:       30 * time.Second,
	}
}

// Resilient wraps Client with timeout, bounded retry, and a circuit breaker.
// Unavailability (open circuit, exhausted retries, timeout) surfaces as
// domain.ErrGatewayUnavailable and is never conflated with a payment decline:
// the orchestrator leaves the order pending on the former and cancels on the
// latter.
type Resilient struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[any]
	cfg     Config
	logger  *slog.Logger
}

func NewResilient(client *Client, cfg Config, logger *slog.Logger) *Resilient {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: cfg.HalfOpenMaxCalls,
		Interval:    cfg.WindowInterval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumCalls {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= cfg.FailureRateThreshold
		},
		// A decline is a successful gateway interaction; only transport-level
		// failures should push the breaker toward open.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrPaymentDeclined) ||
				errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Resilient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		cfg:     cfg,
		logger:  logger,
	}
}

// RequestPayment submits a payment. The submission is retried only because
// the gateway is idempotent per order key.
func (r *Resilient) RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	result, err := r.execute(ctx, "request-payment", func(ctx context.Context) (any, error) {
		return r.client.RequestPayment(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*PaymentResult), nil
}

func (r *Resilient) FindOrder(ctx context.Context, orderKey string) (*OrderResult, error) {
	result, err := r.execute(ctx, "find-order", func(ctx context.Context) (any, error) {
		return r.client.FindOrder(ctx, orderKey)
	})
	if err != nil {
		return nil, err
	}
	return result.(*OrderResult), nil
}

func (r *Resilient) FindTransaction(ctx context.Context, transactionKey string) (*PaymentResult, error) {
	result, err := r.execute(ctx, "find-transaction", func(ctx context.Context) (any, error) {
		return r.client.FindTransaction(ctx, transactionKey)
	})
	if err != nil {
		return nil, err
	}
	return result.(*PaymentResult), nil
}

func (r *Resilient) execute(ctx context.Context, op string, call func(ctx context.Context) (any, error)) (any, error) {
	result, err := r.breaker.Execute(func() (any, error) {
		return r.retry(ctx, op, call)
	})
	if err != nil {
		return nil, r.classify(op, err)
	}
	return result, nil
}

// retry runs the call with a per-attempt deadline and bounded re-attempts.
// Declines and not-found answers are permanent; everything else is treated as
// transient.
func (r *Resilient) retry(ctx context.Context, op string, call func(ctx context.Context) (any, error)) (any, error) {
	var result any

	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()

		out, err := call(callCtx)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w: %s", domain.ErrGatewayTimeout, op)
			}
			if errors.Is(err, domain.ErrPaymentDeclined) || errors.Is(err, domain.ErrNotFound) {
				return backoff.Permanent(err)
			}
			r.logger.Warn("gateway call failed, may retry", "op", op, "error", err)
			return err
		}
		result = out
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.cfg.MaxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// classify maps wrapper-level failures onto the domain taxonomy. Declines
// pass through untouched.
func (r *Resilient) classify(op string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit open for %s", domain.ErrGatewayUnavailable, op)
	case errors.Is(err, domain.ErrPaymentDeclined),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrGatewayUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, op, err)
	}
}
