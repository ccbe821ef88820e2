package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/athena-pocket/backend/internal/model"
)

func TestPgUserRepository_CreateFindUpdate(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if testing.Short() || dbURL == "" {
		t.Skip("skipping integration test (set DATABASE_URL and run migrations)")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	repo := NewPgUserRepository(pool)

	unique := fmt.Sprintf("%d", time.Now().UnixNano())
	user := &model.User{
		Email:    fmt.Sprintf("test-%s@example.com", unique),
		GoogleID: fmt.Sprintf("google-%s", unique),
		Name:     "Test User",
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == "" || user.Role != model.RoleUser {
		t.Errorf("expected ID and default role after Create, got %+v", user)
	}

	found, err := repo.FindByGoogleID(ctx, user.GoogleID)
	if err != nil {
		t.Fatalf("FindByGoogleID failed: %v", err)
	}
	if found.Email != user.Email || found.Name != user.Name {
		t.Errorf("unexpected user: %+v", found)
	}

	if _, err := repo.FindByEmail(ctx, strings.ToUpper(user.Email)); err != nil {
		t.Errorf("FindByEmail should be case-insensitive: %v", err)
	}

	dup := &model.User{Email: user.Email}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	updated, err := repo.Update(ctx, user.ID, func(u *model.User) error {
		u.IsVerified = true
		u.GitHubID = "gh-" + unique
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.IsVerified {
		t.Error("expected verified user")
	}
	if _, err := repo.FindByGitHubID(ctx, "gh-"+unique); err != nil {
		t.Errorf("FindByGitHubID failed: %v", err)
	}

	if _, err := repo.FindByID(ctx, "missing-"+unique); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
