package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/commercekit/fulfillment/internal/coupons"
	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/fulfillment"
	"github.com/commercekit/fulfillment/internal/ledger"
	"github.com/commercekit/fulfillment/internal/likes"
	"github.com/commercekit/fulfillment/internal/orders"
	"github.com/commercekit/fulfillment/internal/payments"
	"github.com/commercekit/fulfillment/internal/tx"
	"github.com/commercekit/fulfillment/internal/users"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stock := ledger.NewMemStockStore(
		&domain.Product{ID: "p1", BrandID: "b1", Name: "sneaker", Price: 10000, Stock: 5, Status: domain.ProductStatusOpen},
	)
	points := ledger.NewMemPointStore()
	couponStore := coupons.NewMemStore()
	paymentStore := payments.NewMemStore()

	bus := tx.NewBus()
	fulfillment.RegisterHandlers(bus, stock, couponStore, paymentStore, noopSink{}, logger)
	manager := tx.NewMemManager(bus, logger)

	registry := payments.NewRegistry()
	registry.Register(domain.PaymentTypePoint, payments.NewPointProcessor(points))

	service := fulfillment.NewService(
		manager, orders.NewMemStore(), users.NewMemStore(domain.User{ID: "user-1", Name: "jo"}),
		stock, couponStore, paymentStore, registry, nil, points, logger,
	)
	likeService := likes.NewService(ledger.NewMemLikeStore(), nil, logger)

	mux := http.NewServeMux()
	NewHandler(service, likeService, logger).Routes(mux)
	return mux
}

type noopSink struct{}

func (noopSink) Publish(context.Context, string, any) error { return nil }

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Orders(t *testing.T) {
	t.Run("place then fetch an order", func(t *testing.T) {
		mux := newTestMux(t)

		rec := do(t, mux, http.MethodPost, "/orders", `{"items":[{"product_id":"p1","quantity":2}]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("POST /orders status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var order domain.Order
		if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
			t.Fatalf("decode order: %v", err)
		}
		if order.Total != 20000 {
			t.Errorf("total = %d, want 20000", order.Total)
		}

		rec = do(t, mux, http.MethodGet, "/orders/"+order.ID, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET /orders/{id} status = %d", rec.Code)
		}
	})

	t.Run("missing user header is a 400", func(t *testing.T) {
		mux := newTestMux(t)
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown order is a 404", func(t *testing.T) {
		mux := newTestMux(t)
		rec := do(t, mux, http.MethodGet, "/orders/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("insufficient stock is a 400", func(t *testing.T) {
		mux := newTestMux(t)
		rec := do(t, mux, http.MethodPost, "/orders", `{"items":[{"product_id":"p1","quantity":99}]}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
		}
	})
}

func TestHandler_PointPaymentFlow(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/points/charge", `{"amount":100000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /points/charge status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, mux, http.MethodPost, "/orders", `{"items":[{"product_id":"p1","quantity":1}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /orders status = %d", rec.Code)
	}
	var order domain.Order
	_ = json.Unmarshal(rec.Body.Bytes(), &order)

	rec = do(t, mux, http.MethodPost, "/orders/"+order.ID+"/pay", `{"payment_type":"POINT"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /orders/{id}/pay status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, mux, http.MethodGet, "/orders/"+order.ID, "")
	var paid domain.Order
	_ = json.Unmarshal(rec.Body.Bytes(), &paid)
	if paid.Status != domain.OrderStatusCompleted {
		t.Errorf("order status = %s, want COMPLETED", paid.Status)
	}

	rec = do(t, mux, http.MethodGet, "/points", "")
	var balance struct {
		Balance int64 `json:"balance"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &balance)
	if balance.Balance != 90000 {
		t.Errorf("balance = %d, want 90000", balance.Balance)
	}

	// Paying a completed order again conflicts.
	rec = do(t, mux, http.MethodPost, "/orders/"+order.ID+"/pay", `{"payment_type":"POINT"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second pay status = %d, want 409", rec.Code)
	}
}

func TestHandler_Likes(t *testing.T) {
	mux := newTestMux(t)

	for i := 0; i < 3; i++ {
		rec := do(t, mux, http.MethodPost, "/likes/products/p1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("POST /likes status = %d", rec.Code)
		}
	}
	rec := do(t, mux, http.MethodDelete, "/likes/products/p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /likes status = %d", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/likes/products/p1", "")
	var summary struct {
		LikeCount int64 `json:"like_count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.LikeCount != 2 {
		t.Errorf("like count = %d, want 2", summary.LikeCount)
	}

	rec = do(t, mux, http.MethodGet, "/likes/gadgets/p1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown target type status = %d, want 400", rec.Code)
	}
}

func TestHandler_Callback_BadRequest(t *testing.T) {
	mux := newTestMux(t)
	rec := do(t, mux, http.MethodPost, "/payments/callback", `{"status":"SUCCESS"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
