package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/pkg/auth"
)

// AuthServiceImpl は AuthService の実装
type AuthServiceImpl struct {
	userRepo repository.UserRepository
}

// NewAuthService は AuthServiceImpl を生成する（DI: UserRepository を注入）
func NewAuthService(userRepo repository.UserRepository) AuthService {
	return &AuthServiceImpl{userRepo: userRepo}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はメール・パスワードでユーザーを作成する（未認証・一般ユーザー）
func (s *AuthServiceImpl) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		Role:         model.RoleUser,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	slog.Info("new user created", "user_id", u.ID, "provider", "email")
	return u, nil
}

// Login はメール・パスワードを検証する。どちらの誤りでも ErrInvalidCredentials を返す
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// linkOrCreate returns the user already linked to the provider, links an
// existing account with the same email, or creates a new one.
func (s *AuthServiceImpl) linkOrCreate(ctx context.Context, provider string, find func() (*model.User, error), link func(u *model.User), newUser *model.User) (*model.User, error) {
	u, err := find()
	if err == nil {
		slog.Debug("oauth user found", "user_id", u.ID, "provider", provider)
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	newUser.Email = normalizeEmail(newUser.Email)
	if existing, err := s.userRepo.FindByEmail(ctx, newUser.Email); err == nil {
		// 同じメールアドレスの既存アカウントにプロバイダ ID を紐付ける
		return s.userRepo.Update(ctx, existing.ID, func(x *model.User) error {
			link(x)
			return nil
		})
	}

	newUser.Role = model.RoleUser
	link(newUser)
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		slog.Error("create oauth user failed", "provider", provider, "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}
	slog.Info("new user created", "user_id", newUser.ID, "provider", provider)
	return newUser, nil
}

// GetOrCreateUserFromGoogle は Google ユーザー情報からユーザーを取得または作成する
func (s *AuthServiceImpl) GetOrCreateUserFromGoogle(ctx context.Context, info *GoogleUserInfo) (*model.User, error) {
	return s.linkOrCreate(ctx, "google",
		func() (*model.User, error) { return s.userRepo.FindByGoogleID(ctx, info.Sub) },
		func(u *model.User) { u.GoogleID = info.Sub },
		&model.User{Email: info.Email, Name: info.Name},
	)
}

// GetOrCreateUserFromGitHub は GitHub ユーザー情報からユーザーを取得または作成する
func (s *AuthServiceImpl) GetOrCreateUserFromGitHub(ctx context.Context, info *GitHubUserInfo) (*model.User, error) {
	githubID := fmt.Sprintf("%d", info.ID)
	name := info.Name
	if name == "" {
		name = info.Login
	}
	email := info.Email
	if email == "" {
		email = info.Login + "@users.noreply.github.com"
	}
	return s.linkOrCreate(ctx, "github",
		func() (*model.User, error) { return s.userRepo.FindByGitHubID(ctx, githubID) },
		func(u *model.User) { u.GitHubID = githubID },
		&model.User{Email: email, Name: name},
	)
}

func (s *AuthServiceImpl) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

func (s *AuthServiceImpl) Role(ctx context.Context, userID string) (string, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// EnsureAdmin は起動時に管理者アカウントを作成、または既存ユーザーを管理者に昇格する
func (s *AuthServiceImpl) EnsureAdmin(ctx context.Context, email, passwordHash string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || passwordHash == "" {
		return nil, invalidField("admin", "email_and_password_hash_required")
	}
	u, err := s.userRepo.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		u = &model.User{
			Email:        email,
			Name:         "Administrator",
			Role:         model.RoleAdmin,
			IsVerified:   true,
			PasswordHash: passwordHash,
		}
		if err := s.userRepo.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		slog.Info("admin account created", "user_id", u.ID)
		return u, nil
	}
	if err != nil {
		return nil, err
	}
	return s.userRepo.Update(ctx, u.ID, func(x *model.User) error {
		x.Role = model.RoleAdmin
		x.IsVerified = true
		x.PasswordHash = passwordHash
		return nil
	})
}
