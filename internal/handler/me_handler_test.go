package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/pkg/auth"
)

func TestMeHandler_NoUser_Returns401(t *testing.T) {
	h := NewMeHandler(&mockAuthService{})
	rec := httptest.NewRecorder()

	h.Me(rec, httptest.NewRequest("GET", "/api/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMeHandler_UserNotFound_Returns404(t *testing.T) {
	h := NewMeHandler(&mockAuthService{
		getUserFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, repository.ErrNotFound
		},
	})
	req := httptest.NewRequest("GET", "/api/me", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), "ghost"))
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMeHandler_ThroughRequireAuth(t *testing.T) {
	secret := auth.SessionSecretBytes(testSessionSecret)
	h := NewMeHandler(&mockAuthService{
		getUserFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "a@example.com", Name: "A", Role: model.RoleAdmin, PasswordHash: "$2a$hash"}, nil
		},
	})
	handler := auth.RequireAuth(secret)(http.HandlerFunc(h.Me))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName(), Value: auth.CreateSessionToken("u1", time.Now().Add(time.Hour), secret)})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp model.UserView
	if err := json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "u1" || resp.Role != model.RoleAdmin {
		t.Errorf("unexpected response: %+v", resp)
	}
	if strings.Contains(rec.Body.String(), "hash") {
		t.Error("password hash leaked")
	}
}

func TestMeHandler_ExpiredSession_Returns401(t *testing.T) {
	secret := auth.SessionSecretBytes(testSessionSecret)
	handler := auth.RequireAuth(secret)(http.HandlerFunc(NewMeHandler(&mockAuthService{}).Me))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName(), Value: auth.CreateSessionToken("u1", time.Now().Add(-time.Minute), secret)})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
