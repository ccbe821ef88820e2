package repository

import (
	"context"
	"sync"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/storage"
)

type kvPlanRepository struct {
	mu    sync.Mutex
	plans kvCollection[*model.SubscriptionPlan]
	seed  []model.SubscriptionPlan
}

// NewKVPlanRepository returns a Storage-backed PlanRepository. The catalog is
// seeded with seed the first time it is read and found empty.
func NewKVPlanRepository(store storage.Storage, seed []model.SubscriptionPlan) PlanRepository {
	return &kvPlanRepository{
		plans: kvCollection[*model.SubscriptionPlan]{store: store, key: storage.KeyPlans},
		seed:  seed,
	}
}

func (r *kvPlanRepository) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plans, err := r.plans.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 && len(r.seed) > 0 {
		plans = make([]*model.SubscriptionPlan, len(r.seed))
		for i := range r.seed {
			p := r.seed[i]
			plans[i] = &p
		}
		if err := r.plans.save(ctx, plans); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

func (r *kvPlanRepository) GetByID(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	plans, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrNotFound
}
