package handler

import (
	"net/http"

	"github.com/athena-pocket/backend/internal/service"
)

// MeHandler は現在のユーザー情報を返すハンドラ
type MeHandler struct {
	authService service.AuthService
}

// NewMeHandler は MeHandler を生成する（DI: AuthService を注入）
func NewMeHandler(authService service.AuthService) *MeHandler {
	return &MeHandler{authService: authService}
}

// Me は GET /api/me を処理する（RequireAuth の後段）
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "me")
		return
	}
	writeJSON(w, http.StatusOK, user.View())
}
