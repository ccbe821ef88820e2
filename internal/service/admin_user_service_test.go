package service

import (
	"context"
	"errors"
	"testing"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
)

func TestAdminUserService_ListUsers(t *testing.T) {
	mock := &mockUserRepository{
		listFunc: func(ctx context.Context, limit, offset int) ([]*model.User, error) {
			if limit != 20 || offset != 40 {
				t.Errorf("expected limit=20 offset=40, got %d %d", limit, offset)
			}
			return []*model.User{{ID: "u1"}, {ID: "u2"}}, nil
		},
	}
	users, err := NewAdminUserService(mock).ListUsers(context.Background(), 20, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestAdminUserService_SetVerified(t *testing.T) {
	stored := &model.User{ID: "u1", Email: "a@example.com"}
	mock := &mockUserRepository{
		updateFunc: func(ctx context.Context, id string, fn func(u *model.User) error) (*model.User, error) {
			if id != "u1" {
				return nil, repository.ErrNotFound
			}
			if err := fn(stored); err != nil {
				return nil, err
			}
			return stored, nil
		},
	}
	svc := NewAdminUserService(mock)

	u, err := svc.SetVerified(context.Background(), "u1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.IsVerified {
		t.Error("expected user to be verified")
	}

	u, err = svc.SetVerified(context.Background(), "u1", false)
	if err != nil || u.IsVerified {
		t.Errorf("expected verification withdrawn, got %v %v", u, err)
	}
}

func TestAdminUserService_SetVerified_NotFound(t *testing.T) {
	svc := NewAdminUserService(&mockUserRepository{})
	if _, err := svc.SetVerified(context.Background(), "missing", true); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminUserService_GetUser(t *testing.T) {
	mock := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Alice"}, nil
		},
	}
	u, err := NewAdminUserService(mock).GetUser(context.Background(), "u9")
	if err != nil || u.ID != "u9" {
		t.Errorf("unexpected result: %v %v", u, err)
	}
}
