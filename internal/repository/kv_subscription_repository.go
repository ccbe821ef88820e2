package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/storage"
	"github.com/google/uuid"
)

type kvSubscriptionRepository struct {
	mu   sync.Mutex
	subs kvCollection[*model.UserSubscription]
	now  func() time.Time
}

// NewKVSubscriptionRepository returns a Storage-backed SubscriptionRepository.
func NewKVSubscriptionRepository(store storage.Storage) SubscriptionRepository {
	return &kvSubscriptionRepository{
		subs: kvCollection[*model.UserSubscription]{store: store, key: storage.KeySubscriptions},
		now:  time.Now,
	}
}

func (r *kvSubscriptionRepository) Create(ctx context.Context, s *model.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, err := r.subs.load(ctx)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, x := range subs {
		if x.ID == s.ID {
			return ErrDuplicate
		}
		if x.UserID == s.UserID && !x.Status.Terminal() && !s.Status.Terminal() {
			return ErrOpenSubscription
		}
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return r.subs.save(ctx, append(subs, s))
}

func (r *kvSubscriptionRepository) GetByID(ctx context.Context, id string) (*model.UserSubscription, error) {
	list, err := r.where(ctx, func(s *model.UserSubscription) bool { return s.ID == id })
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (r *kvSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*model.UserSubscription, error) {
	return r.where(ctx, func(s *model.UserSubscription) bool { return s.UserID == userID })
}

func (r *kvSubscriptionRepository) ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]*model.UserSubscription, error) {
	return r.where(ctx, func(s *model.UserSubscription) bool { return s.Status == status })
}

func (r *kvSubscriptionRepository) where(ctx context.Context, keep func(s *model.UserSubscription) bool) ([]*model.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, err := r.subs.load(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]*model.UserSubscription, 0)
	for _, s := range subs {
		if keep(s) {
			list = append(list, s)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *kvSubscriptionRepository) Update(ctx context.Context, id string, fn func(s *model.UserSubscription) error) (*model.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, err := r.subs.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range subs {
		if s.ID != id {
			continue
		}
		if err := fn(s); err != nil {
			return nil, err
		}
		s.ID = id
		s.UpdatedAt = r.now().UTC()
		if err := r.subs.save(ctx, subs); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, ErrNotFound
}
