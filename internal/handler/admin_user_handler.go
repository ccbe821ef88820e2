package handler

import (
	"net/http"
	"strconv"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/service"
)

// AdminUserHandler handles admin user management endpoints. Routes are
// wrapped with auth.RequireAdmin.
type AdminUserHandler struct {
	adminSvc service.AdminUserService
}

// NewAdminUserHandler creates an AdminUserHandler.
func NewAdminUserHandler(adminSvc service.AdminUserService) *AdminUserHandler {
	return &AdminUserHandler{adminSvc: adminSvc}
}

// pagination reads limit (1..200, default 50) and offset (>= 0).
func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// List handles GET /api/admin/users.
func (h *AdminUserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, err := h.adminSvc.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	views := make([]model.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views})
}

type verifyRequest struct {
	Verified *bool `json:"verified"`
}

// Verify handles PATCH /api/admin/users/{id}/verify.
func (h *AdminUserHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Verified == nil {
		writeError(w, http.StatusBadRequest, "verified_required")
		return
	}
	u, err := h.adminSvc.SetVerified(r.Context(), r.PathValue("id"), *req.Verified)
	if err != nil {
		writeServiceError(w, err, "verify")
		return
	}
	writeJSON(w, http.StatusOK, u.View())
}
