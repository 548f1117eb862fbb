package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/commercekit/fulfillment/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CallTimeout = 200 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.MinimumCalls = 4
	cfg.OpenTimeout = 100 * time.Millisecond
	return cfg
}

func newResilient(t *testing.T, handler http.HandlerFunc, cfg Config) (*Resilient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client())
	return NewResilient(client, cfg, testLogger()), server
}

func paymentRequest() PaymentRequest {
	return PaymentRequest{
		OrderKey: "0190a000-0000-7000-8000-000000000001",
		UserID:   "user-1",
		Amount:   10000,
		Card:     domain.CardDetails{CardType: "VISA", CardNo: "4242424242424242"},
	}
}

func TestResilient_RequestPayment(t *testing.T) {
	t.Run("success passes through", func(t *testing.T) {
		r, _ := newResilient(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(PaymentResult{
				TransactionKey: "tk-1",
				Status:         domain.TransactionStatusPending,
			})
		}, testConfig())

		result, err := r.RequestPayment(context.Background(), paymentRequest())
		if err != nil {
			t.Fatalf("RequestPayment() error = %v", err)
		}
		if result.TransactionKey != "tk-1" {
			t.Errorf("TransactionKey = %s, want tk-1", result.TransactionKey)
		}
	})

	t.Run("decline is permanent, no retry", func(t *testing.T) {
		var calls atomic.Int32
		r, _ := newResilient(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"reason": "insufficient funds"})
		}, testConfig())

		_, err := r.RequestPayment(context.Background(), paymentRequest())
		if !errors.Is(err, domain.ErrPaymentDeclined) {
			t.Fatalf("expected ErrPaymentDeclined, got %v", err)
		}
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Error("a decline must not read as unavailability")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1 (declines are not retried)", calls.Load())
		}
	})

	t.Run("transient failures are retried then classified unavailable", func(t *testing.T) {
		var calls atomic.Int32
		cfg := testConfig()
		r, _ := newResilient(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}, cfg)

		_, err := r.RequestPayment(context.Background(), paymentRequest())
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
		if got, want := calls.Load(), int32(cfg.MaxRetries+1); got != want {
			t.Errorf("calls = %d, want %d", got, want)
		}
	})

	t.Run("retry recovers from a transient failure", func(t *testing.T) {
		var calls atomic.Int32
		r, _ := newResilient(t, func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(PaymentResult{TransactionKey: "tk-2", Status: domain.TransactionStatusPending})
		}, testConfig())

		result, err := r.RequestPayment(context.Background(), paymentRequest())
		if err != nil {
			t.Fatalf("RequestPayment() error = %v", err)
		}
		if result.TransactionKey != "tk-2" {
			t.Errorf("TransactionKey = %s, want tk-2", result.TransactionKey)
		}
	})

	t.Run("slow gateway surfaces as timeout wrapped in unavailable", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxRetries = 0
		r, _ := newResilient(t, func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(cfg.CallTimeout * 3)
			_ = json.NewEncoder(w).Encode(PaymentResult{Status: domain.TransactionStatusPending})
		}, cfg)

		_, err := r.RequestPayment(context.Background(), paymentRequest())
		if !errors.Is(err, domain.ErrGatewayTimeout) {
			t.Fatalf("expected ErrGatewayTimeout, got %v", err)
		}
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Error("timeout must classify as unavailability")
		}
	})
}

func TestResilient_CircuitBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0

	var healthy atomic.Bool
	var calls atomic.Int32
	r, _ := newResilient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(PaymentResult{TransactionKey: "tk", Status: domain.TransactionStatusPending})
	}, cfg)

	// Enough failures to satisfy MinimumCalls and trip the breaker.
	for i := 0; i < int(cfg.MinimumCalls); i++ {
		_, _ = r.RequestPayment(context.Background(), paymentRequest())
	}

	before := calls.Load()
	_, err := r.RequestPayment(context.Background(), paymentRequest())
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable from open breaker, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open breaker still reached the gateway")
	}

	// After the cool-down the half-open trials run against a healthy gateway
	// and the breaker closes again.
	healthy.Store(true)
	time.Sleep(cfg.OpenTimeout + 20*time.Millisecond)

	for i := 0; i < int(cfg.HalfOpenMaxCalls)+1; i++ {
		if _, err := r.RequestPayment(context.Background(), paymentRequest()); err != nil {
			t.Fatalf("call %d after recovery failed: %v", i, err)
		}
	}
}

func TestResilient_FindTransaction(t *testing.T) {
	t.Run("not found is permanent", func(t *testing.T) {
		var calls atomic.Int32
		r, _ := newResilient(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}, testConfig())

		_, err := r.FindTransaction(context.Background(), "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("returns the gateway's record", func(t *testing.T) {
		r, _ := newResilient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/payments/tk-9" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(PaymentResult{
				TransactionKey: "tk-9",
				OrderKey:       "ok-9",
				Status:         domain.TransactionStatusSuccess,
			})
		}, testConfig())

		result, err := r.FindTransaction(context.Background(), "tk-9")
		if err != nil {
			t.Fatalf("FindTransaction() error = %v", err)
		}
		if result.Status != domain.TransactionStatusSuccess {
			t.Errorf("Status = %s, want SUCCESS", result.Status)
		}
	})
}
