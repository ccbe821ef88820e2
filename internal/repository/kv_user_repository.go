package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/storage"
	"github.com/google/uuid"
)

type kvUserRepository struct {
	mu    sync.Mutex
	users kvCollection[*model.User]
	now   func() time.Time
}

// NewKVUserRepository returns a Storage-backed UserRepository.
func NewKVUserRepository(store storage.Storage) UserRepository {
	return &kvUserRepository{
		users: kvCollection[*model.User]{store: store, key: storage.KeyUsers},
		now:   time.Now,
	}
}

func (r *kvUserRepository) findOne(ctx context.Context, match func(u *model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.users.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *kvUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, func(u *model.User) bool { return u.ID == id })
}

func (r *kvUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, func(u *model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *kvUserRepository) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, func(u *model.User) bool { return u.GoogleID == googleID })
}

func (r *kvUserRepository) FindByGitHubID(ctx context.Context, githubID string) (*model.User, error) {
	if githubID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, func(u *model.User) bool { return u.GitHubID == githubID })
}

func (r *kvUserRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.users.load(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}
	now := r.now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return r.users.save(ctx, append(users, user))
}

func (r *kvUserRepository) Update(ctx context.Context, id string, fn func(u *model.User) error) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.users.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID != id {
			continue
		}
		if err := fn(u); err != nil {
			return nil, err
		}
		u.ID = id
		u.UpdatedAt = r.now().UTC()
		if err := r.users.save(ctx, users); err != nil {
			return nil, err
		}
		return u, nil
	}
	return nil, ErrNotFound
}

func (r *kvUserRepository) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.users.load(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(users, limit, offset), nil
}
