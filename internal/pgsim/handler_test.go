package pgsim

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/gateway"
)

func newSim(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	NewHandler(logger, WithSettleDelay(10*time.Millisecond)).Routes(mux)
	return mux
}

func submit(t *testing.T, mux *http.ServeMux, orderKey, cardNo string) gateway.PaymentResult {
	t.Helper()
	body := `{"order_key":"` + orderKey + `","user_id":"u1","amount":1000,"card":{"card_type":"VISA","card_no":"` + cardNo + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /payments status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result gateway.PaymentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return result
}

func TestHandler_IdempotentSubmission(t *testing.T) {
	mux := newSim(t)

	first := submit(t, mux, "ok-1", "4242")
	second := submit(t, mux, "ok-1", "4242")
	if first.TransactionKey != second.TransactionKey {
		t.Errorf("resubmission created a new transaction: %s vs %s",
			first.TransactionKey, second.TransactionKey)
	}
}

func TestHandler_Settlement(t *testing.T) {
	tests := []struct {
		name   string
		cardNo string
		want   domain.TransactionStatus
	}{
		{"even card settles", "4242", domain.TransactionStatusSuccess},
		{"odd card declines", "4241", domain.TransactionStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newSim(t)
			result := submit(t, mux, "ok-"+tt.cardNo, tt.cardNo)
			if result.Status != domain.TransactionStatusPending {
				t.Fatalf("initial status = %s, want PENDING", result.Status)
			}

			deadline := time.After(2 * time.Second)
			for {
				req := httptest.NewRequest(http.MethodGet, "/payments/"+result.TransactionKey, nil)
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, req)

				var current gateway.PaymentResult
				_ = json.Unmarshal(rec.Body.Bytes(), &current)
				if current.Status == tt.want {
					return
				}
				select {
				case <-deadline:
					t.Fatalf("status = %s, want %s", current.Status, tt.want)
				case <-time.After(10 * time.Millisecond):
				}
			}
		})
	}
}

func TestHandler_FindUnknown(t *testing.T) {
	mux := newSim(t)

	req := httptest.NewRequest(http.MethodGet, "/payments/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/payments?order_key=nope", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("order lookup status = %d, want 404", rec.Code)
	}
}
