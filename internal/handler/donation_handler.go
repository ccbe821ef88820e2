package handler

import (
	"net/http"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/service"
	"github.com/athena-pocket/backend/pkg/auth"
)

// DonationHandler handles donations against goals and the ledger views.
type DonationHandler struct {
	donations service.DonationService
	badges    service.BadgeService
}

// NewDonationHandler creates a DonationHandler.
func NewDonationHandler(donations service.DonationService, badges service.BadgeService) *DonationHandler {
	return &DonationHandler{donations: donations, badges: badges}
}

// Donate handles POST /api/goals/{id}/donations. Guests may donate; a
// signed-in donor is attached to the donation via OptionalAuth.
func (h *DonationHandler) Donate(w http.ResponseWriter, r *http.Request) {
	var req service.DonateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.GoalID = r.PathValue("id")
	req.UserID, _ = auth.UserIDFromContext(r.Context())

	receipt, err := h.donations.Donate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "donate")
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ListByGoal handles GET /api/goals/{id}/donations (admin).
func (h *DonationHandler) ListByGoal(w http.ResponseWriter, r *http.Request) {
	ds, err := h.donations.ListByGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"donations": ds})
}

// Donors handles GET /api/goals/{id}/donors, the public donor wall.
func (h *DonationHandler) Donors(w http.ResponseWriter, r *http.Request) {
	ds, err := h.donations.ListByGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	out := make([]*model.Donation, 0, len(ds))
	for _, d := range ds {
		if d.Status == model.DonationCompleted {
			out = append(out, d.Public())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"donations": out})
}

// Refund handles POST /api/admin/donations/{id}/refund.
func (h *DonationHandler) Refund(w http.ResponseWriter, r *http.Request) {
	d, err := h.donations.Refund(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "refund")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Mine handles GET /api/me/donations.
func (h *DonationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ds, err := h.donations.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"donations": ds})
}

// Badges handles GET /api/me/badges.
func (h *DonationHandler) Badges(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	report, err := h.badges.BadgesForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "badges")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
