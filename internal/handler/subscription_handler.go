package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/service"
)

// SubscriptionHandler はプランと定期購読のエンドポイントを扱う
type SubscriptionHandler struct {
	subs service.SubscriptionService
}

// NewSubscriptionHandler は SubscriptionHandler を生成する
func NewSubscriptionHandler(subs service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// Plans は GET /api/plans を処理する
func (h *SubscriptionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subs.ListPlans(r.Context())
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

// List は GET /api/me/subscriptions を処理する
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	subs, err := h.subs.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

// Subscribe は POST /api/me/subscriptions を処理する。
// 決済に失敗した場合も cancelled のレコードを 402 で返す
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = userID

	sub, err := h.subs.Subscribe(r.Context(), req)
	var payErr *service.PaymentError
	if errors.As(err, &payErr) && sub != nil {
		code := "payment_failed"
		if payErr.Declined() {
			code = "payment_declined"
		}
		slog.Warn("subscription payment failed", "user_id", userID, "plan_id", req.PlanID, "error", err)
		writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": code, "subscription": sub})
		return
	}
	if err != nil {
		writeServiceError(w, err, "subscribe")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type subscriptionAction func(ctx context.Context, id, userID string) (*model.UserSubscription, error)

// action は {id} の購読に対する状態遷移系エンドポイントを組み立てる
func (h *SubscriptionHandler) action(w http.ResponseWriter, r *http.Request, op string, fn subscriptionAction) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sub, err := fn(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, err, op)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Cancel は POST /api/me/subscriptions/{id}/cancel を処理する
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "cancel", h.subs.Cancel)
}

// Pause は POST /api/me/subscriptions/{id}/pause を処理する
func (h *SubscriptionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "pause", h.subs.Pause)
}

// Resume は POST /api/me/subscriptions/{id}/resume を処理する
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "resume", h.subs.Resume)
}

// ChangePlan は PUT /api/me/subscriptions/{id}/plan を処理する
func (h *SubscriptionHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"plan_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "plan_id_required")
		return
	}
	h.action(w, r, "change_plan", func(ctx context.Context, id, userID string) (*model.UserSubscription, error) {
		return h.subs.ChangePlan(ctx, id, userID, req.PlanID)
	})
}

// SetAutoRenew は PUT /api/me/subscriptions/{id}/auto-renew を処理する
func (h *SubscriptionHandler) SetAutoRenew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AutoRenew *bool `json:"auto_renew"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AutoRenew == nil {
		writeError(w, http.StatusBadRequest, "auto_renew_required")
		return
	}
	h.action(w, r, "auto_renew", func(ctx context.Context, id, userID string) (*model.UserSubscription, error) {
		return h.subs.SetAutoRenew(ctx, id, userID, *req.AutoRenew)
	})
}
