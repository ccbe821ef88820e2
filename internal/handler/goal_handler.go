package handler

import (
	"net/http"

	"github.com/athena-pocket/backend/internal/service"
)

// GoalHandler は寄付目標の CRUD と進捗を扱うハンドラ
type GoalHandler struct {
	donations service.DonationService
}

// NewGoalHandler は GoalHandler を生成する
func NewGoalHandler(donations service.DonationService) *GoalHandler {
	return &GoalHandler{donations: donations}
}

// List は GET /api/goals を処理する
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	goals, err := h.donations.ListGoals(r.Context())
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

// Get は GET /api/goals/{id} を処理する
func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.donations.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Progress は GET /api/goals/{id}/progress を処理する
func (h *GoalHandler) Progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.donations.GoalProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "progress")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Create は POST /api/goals を処理する（管理者のみ）
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.GoalInput
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := h.donations.CreateGoal(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "create")
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// Update は PUT /api/goals/{id} を処理する（管理者のみ）
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.GoalInput
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := h.donations.UpdateGoal(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, err, "update")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Delete は DELETE /api/goals/{id} を処理する（管理者のみ）
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.donations.DeleteGoal(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
