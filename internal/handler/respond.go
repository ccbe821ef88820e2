package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/internal/service"
	"github.com/athena-pocket/backend/pkg/auth"
	"github.com/athena-pocket/backend/pkg/payment"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// decodeJSON reads the body into v and answers 400 invalid_json on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// currentUser answers 401 when the request carries no user.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{service.ErrAmountOverflow, http.StatusBadRequest, "amount_too_large"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{repository.ErrNotFound, http.StatusNotFound, "not_found"},
	{payment.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{payment.ErrTransactionNotFound, http.StatusNotFound, "transaction_not_found"},
	{payment.ErrSubscriptionNotFound, http.StatusNotFound, "subscription_not_found"},
	{payment.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider"},
	{payment.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{payment.ErrDeclined, http.StatusPaymentRequired, "payment_declined"},
	{payment.ErrAlreadyRefunded, http.StatusConflict, "already_refunded"},
	{payment.ErrIdempotencyKeyReused, http.StatusConflict, "idempotency_key_reused"},
	{repository.ErrAlreadyRefunded, http.StatusConflict, "already_refunded"},
	{service.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{repository.ErrDuplicate, http.StatusConflict, "duplicate"},
	{service.ErrGoalClosed, http.StatusConflict, "goal_closed"},
	{service.ErrGoalHasDonations, http.StatusConflict, "goal_has_donations"},
	{service.ErrRewardUnavailable, http.StatusConflict, "reward_unavailable"},
	{service.ErrAlreadySubscribed, http.StatusConflict, "already_subscribed"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrSamePlan, http.StatusConflict, "same_plan"},
}

// writeServiceError maps a service error to its HTTP status and error code.
// Unmapped errors are logged and answered with 500 "<op>_failed".
func writeServiceError(w http.ResponseWriter, err error, op string) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_input", "fields": verr.Fields})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code)
			return
		}
	}
	if errors.Is(err, service.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	slog.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, op+"_failed")
}
