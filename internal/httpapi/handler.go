package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/fulfillment"
	"github.com/commercekit/fulfillment/internal/likes"
)

// Handler exposes the fulfillment engine over HTTP. The caller's identity
// comes from the X-User-ID header; there is no auth layer in front of this
// service.
type Handler struct {
	service *fulfillment.Service
	likes   *likes.Service
	logger  *slog.Logger
}

func NewHandler(service *fulfillment.Service, likeService *likes.Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		likes:   likeService,
		logger:  logger,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.HandlePlaceOrder)
	mux.HandleFunc("GET /orders", h.HandleListOrders)
	mux.HandleFunc("GET /orders/{id}", h.HandleGetOrder)
	mux.HandleFunc("POST /orders/{id}/pay", h.HandlePay)
	mux.HandleFunc("POST /payments/callback", h.HandleGatewayCallback)
	mux.HandleFunc("POST /points/charge", h.HandleChargePoints)
	mux.HandleFunc("GET /points", h.HandlePointBalance)
	mux.HandleFunc("POST /likes/{type}/{id}", h.HandleLike)
	mux.HandleFunc("DELETE /likes/{type}/{id}", h.HandleUnlike)
	mux.HandleFunc("GET /likes/{type}/{id}", h.HandleLikeCount)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}

type placeOrderRequest struct {
	Items     []fulfillment.OrderLine `json:"items"`
	CouponIDs []string                `json:"coupon_ids,omitempty"`
}

func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.PlaceOrder(r.Context(), userID, req.Items, req.CouponIDs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

type payRequest struct {
	PaymentType domain.PaymentType  `json:"payment_type"`
	Card        *domain.CardDetails `json:"card,omitempty"`
}

func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := h.service.Pay(r.Context(), userID, r.PathValue("id"), req.PaymentType, req.Card)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if payment.Status == domain.PaymentStatusPending {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, payment)
}

type callbackRequest struct {
	TransactionKey string                   `json:"transaction_key"`
	Status         domain.TransactionStatus `json:"status"`
}

func (h *Handler) HandleGatewayCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionKey == "" {
		h.writeError(w, http.StatusBadRequest, "missing transaction key")
		return
	}

	if err := h.service.HandleGatewayCallback(r.Context(), req.TransactionKey, req.Status); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chargePointsRequest struct {
	Amount int64 `json:"amount"`
}

type pointBalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func (h *Handler) HandleChargePoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req chargePointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	balance, err := h.service.ChargePoints(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pointBalanceResponse{UserID: userID, Balance: balance})
}

func (h *Handler) HandlePointBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.PointBalance(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pointBalanceResponse{UserID: userID, Balance: balance})
}

type likeCountResponse struct {
	TargetID   string                `json:"target_id"`
	TargetType domain.LikeTargetType `json:"target_type"`
	LikeCount  int64                 `json:"like_count"`
}

func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.handleLikeDelta(w, r, h.likes.Increase)
}

func (h *Handler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	h.handleLikeDelta(w, r, h.likes.Decrease)
}

func (h *Handler) handleLikeDelta(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, targetID string, targetType domain.LikeTargetType) (int64, error)) {
	targetType, ok := parseLikeTarget(r.PathValue("type"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown like target type")
		return
	}

	count, err := apply(r.Context(), r.PathValue("id"), targetType)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, likeCountResponse{
		TargetID:   r.PathValue("id"),
		TargetType: targetType,
		LikeCount:  count,
	})
}

func (h *Handler) HandleLikeCount(w http.ResponseWriter, r *http.Request) {
	targetType, ok := parseLikeTarget(r.PathValue("type"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown like target type")
		return
	}

	count, err := h.likes.Count(r.Context(), r.PathValue("id"), targetType)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, likeCountResponse{
		TargetID:   r.PathValue("id"),
		TargetType: targetType,
		LikeCount:  count,
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLikeTarget(s string) (domain.LikeTargetType, bool) {
	switch s {
	case "products":
		return domain.LikeTargetProduct, true
	case "brands":
		return domain.LikeTargetBrand, true
	default:
		return "", false
	}
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return "", false
	}
	return id, true
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Unrecognized
// errors are logged and hidden behind a 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPaymentDeclined):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
