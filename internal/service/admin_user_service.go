package service

import (
	"context"
	"log/slog"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
)

// AdminUserService provides admin-only user management operations.
type AdminUserService interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	// SetVerified is the only way a user becomes verified.
	SetVerified(ctx context.Context, id string, verified bool) (*model.User, error)
}

type adminUserService struct {
	userRepo repository.UserRepository
}

// NewAdminUserService creates an AdminUserService.
func NewAdminUserService(userRepo repository.UserRepository) AdminUserService {
	return &adminUserService{userRepo: userRepo}
}

func (s *adminUserService) ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func (s *adminUserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

func (s *adminUserService) SetVerified(ctx context.Context, id string, verified bool) (*model.User, error) {
	u, err := s.userRepo.Update(ctx, id, func(u *model.User) error {
		u.IsVerified = verified
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("user verification changed", "user_id", id, "verified", verified)
	return u, nil
}
