package handler

import (
	"net/http"
	"strings"

	"github.com/athena-pocket/backend/internal/service"
	"github.com/athena-pocket/backend/pkg/payment"
)

// PaymentHandler exposes the raw order/capture/refund flow of the gateways.
type PaymentHandler struct {
	payments service.PaymentService
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(payments service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createOrderRequest struct {
	Provider    payment.Provider `json:"provider"`
	Amount      int64            `json:"amount"`
	Currency    string           `json:"currency"`
	Description string           `json:"description"`
}

// CreateOrder handles POST /api/payments/orders.
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Currency = strings.ToLower(req.Currency)
	if req.Currency == "" {
		req.Currency = "usd"
	}
	o, err := h.payments.CreateOrder(r.Context(), req.Provider, req.Amount, req.Currency, req.Description)
	if err != nil {
		writeServiceError(w, err, "create_order")
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// providerForOrder infers the gateway from the order ID format.
func providerForOrder(orderID string) payment.Provider {
	if strings.HasPrefix(orderID, "PAYPAL-") {
		return payment.ProviderPayPal
	}
	return payment.ProviderStripe
}

// Capture handles POST /api/payments/orders/{id}/capture. The body is
// optional; without a provider it is inferred from the order ID.
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	var req struct {
		Provider payment.Provider `json:"provider"`
	}
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Provider == "" {
		req.Provider = providerForOrder(orderID)
	}
	c, err := h.payments.Capture(r.Context(), req.Provider, orderID)
	if err != nil {
		writeServiceError(w, err, "capture")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type refundRequest struct {
	Provider       payment.Provider `json:"provider"`
	TransactionID  string           `json:"transaction_id"`
	IdempotencyKey string           `json:"idempotency_key"`
}

// Refund handles POST /api/admin/payments/refunds. Retrying with the same
// idempotency key returns the original refund.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TransactionID == "" || req.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "transaction_id_and_idempotency_key_required")
		return
	}
	ref, err := h.payments.Refund(r.Context(), req.Provider, req.TransactionID, req.IdempotencyKey)
	if err != nil {
		writeServiceError(w, err, "refund")
		return
	}
	writeJSON(w, http.StatusOK, ref)
}
