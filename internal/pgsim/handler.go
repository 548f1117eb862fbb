package pgsim

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/gateway"
)

// Handler simulates the external payment gateway for local runs and demos.
// It accepts payments, settles them after a short delay, and posts the
// outcome to the caller's callback URL. Cards ending in an odd digit are
// declined; a configurable slice of requests gets artificial latency to
// exercise the client's timeout and breaker paths.
type Handler struct {
	logger       *slog.Logger
	client       *http.Client
	slowRate     float64
	slowDelay    time.Duration
	settleDelay  time.Duration
	mu           sync.Mutex
	transactions map[string]gateway.PaymentResult
	byOrderKey   map[string][]string
}

type Option func(*Handler)

// WithSlowRate makes rate (0..1) of submissions sleep for delay before
// answering.
func WithSlowRate(rate float64, delay time.Duration) Option {
	return func(h *Handler) {
		h.slowRate = rate
		h.slowDelay = delay
	}
}

func WithSettleDelay(d time.Duration) Option {
	return func(h *Handler) { h.settleDelay = d }
}

func NewHandler(logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:       logger,
		client:       &http.Client{Timeout: 5 * time.Second},
		settleDelay:  300 * time.Millisecond,
		transactions: make(map[string]gateway.PaymentResult),
		byOrderKey:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments", h.HandleSubmit)
	mux.HandleFunc("GET /payments", h.HandleFindOrder)
	mux.HandleFunc("GET /payments/{key}", h.HandleFindTransaction)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req gateway.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderKey == "" || req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "order_key and positive amount required")
		return
	}

	if h.slowRate > 0 && rand.Float64() < h.slowRate {
		time.Sleep(h.slowDelay)
	}

	h.mu.Lock()
	// Same order key twice is the same payment: answer with the original
	// transaction instead of charging again.
	if keys := h.byOrderKey[req.OrderKey]; len(keys) > 0 {
		existing := h.transactions[keys[len(keys)-1]]
		h.mu.Unlock()
		h.writeJSON(w, http.StatusOK, existing)
		return
	}

	result := gateway.PaymentResult{
		TransactionKey: uuid.New().String(),
		OrderKey:       req.OrderKey,
		Status:         domain.TransactionStatusPending,
	}
	h.transactions[result.TransactionKey] = result
	h.byOrderKey[req.OrderKey] = append(h.byOrderKey[req.OrderKey], result.TransactionKey)
	h.mu.Unlock()

	go h.settle(result.TransactionKey, req)

	h.logger.Info("payment accepted",
		"transaction_key", result.TransactionKey, "order_key", req.OrderKey, "amount", req.Amount)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) settle(transactionKey string, req gateway.PaymentRequest) {
	time.Sleep(h.settleDelay)

	status := domain.TransactionStatusSuccess
	reason := ""
	if declined(req.Card.CardNo) {
		status = domain.TransactionStatusFailed
		reason = "card declined by issuer"
	}

	h.mu.Lock()
	result := h.transactions[transactionKey]
	result.Status = status
	result.Reason = reason
	h.transactions[transactionKey] = result
	h.mu.Unlock()

	h.logger.Info("payment settled",
		"transaction_key", transactionKey, "status", status)

	if req.CallbackURL == "" {
		return
	}
	body, _ := json.Marshal(map[string]any{
		"transaction_key": transactionKey,
		"status":          status,
	})
	resp, err := h.client.Post(req.CallbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		h.logger.Error("callback delivery failed", "error", err, "url", req.CallbackURL)
		return
	}
	_ = resp.Body.Close()
}

// declined simulates issuer declines: card numbers whose last digit is odd
// are refused.
func declined(number string) bool {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return true
	}
	last := trimmed[len(trimmed)-1]
	return last >= '0' && last <= '9' && (last-'0')%2 == 1
}

func (h *Handler) HandleFindOrder(w http.ResponseWriter, r *http.Request) {
	orderKey := r.URL.Query().Get("order_key")
	if orderKey == "" {
		h.writeError(w, http.StatusBadRequest, "missing order_key")
		return
	}

	h.mu.Lock()
	keys, ok := h.byOrderKey[orderKey]
	results := make([]gateway.PaymentResult, 0, len(keys))
	for _, k := range keys {
		results = append(results, h.transactions[k])
	}
	h.mu.Unlock()

	if !ok {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	h.writeJSON(w, http.StatusOK, gateway.OrderResult{OrderKey: orderKey, Transactions: results})
}

func (h *Handler) HandleFindTransaction(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	result, ok := h.transactions[r.PathValue("key")]
	h.mu.Unlock()

	if !ok {
		h.writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
