package service

import (
	"context"

	"github.com/athena-pocket/backend/internal/model"
)

// GoogleUserInfo は Google OAuth から取得するユーザー情報
type GoogleUserInfo struct {
	Sub   string
	Email string
	Name  string
}

// GitHubUserInfo は GitHub OAuth から取得するユーザー情報
type GitHubUserInfo struct {
	ID    int64
	Login string
	Email string
	Name  string
}

// RegisterRequest はメール・パスワード登録のリクエスト
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
}

// AuthService は認証に関するビジネスロジックのインターフェース
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	GetOrCreateUserFromGoogle(ctx context.Context, info *GoogleUserInfo) (*model.User, error)
	GetOrCreateUserFromGitHub(ctx context.Context, info *GitHubUserInfo) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	// Role returns the role of a user; it backs the admin middleware.
	Role(ctx context.Context, userID string) (string, error)
	// EnsureAdmin creates or promotes the bootstrap admin account.
	EnsureAdmin(ctx context.Context, email, passwordHash string) (*model.User, error)
}
