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

// KVLedgerRepository stores goals and donations in a Storage. It implements
// both GoalRepository and DonationRepository so that recording a donation and
// updating its goal happen under the same lock.
type KVLedgerRepository struct {
	mu        sync.Mutex
	goals     kvCollection[*model.DonationGoal]
	donations kvCollection[*model.Donation]
	now       func() time.Time
}

// NewKVLedgerRepository returns a Storage-backed goal and donation repository.
func NewKVLedgerRepository(store storage.Storage) *KVLedgerRepository {
	return &KVLedgerRepository{
		goals:     kvCollection[*model.DonationGoal]{store: store, key: storage.KeyDonationGoals},
		donations: kvCollection[*model.Donation]{store: store, key: storage.KeyDonations},
		now:       time.Now,
	}
}

func findGoal(goals []*model.DonationGoal, id string) *model.DonationGoal {
	for _, g := range goals {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// GoalRepository
// ---------------------------------------------------------------------------

func (r *KVLedgerRepository) List(ctx context.Context) ([]*model.DonationGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	goals, err := r.goals.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(goals, func(i, j int) bool { return goals[i].CreatedAt.After(goals[j].CreatedAt) })
	return goals, nil
}

func (r *KVLedgerRepository) GetByID(ctx context.Context, id string) (*model.DonationGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	goals, err := r.goals.load(ctx)
	if err != nil {
		return nil, err
	}
	if g := findGoal(goals, id); g != nil {
		return g, nil
	}
	return nil, ErrNotFound
}

func (r *KVLedgerRepository) Create(ctx context.Context, g *model.DonationGoal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	goals, err := r.goals.load(ctx)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	if g.ID == "" {
		g.ID = uuid.NewString()
	} else if findGoal(goals, g.ID) != nil {
		return ErrDuplicate
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	return r.goals.save(ctx, append(goals, g))
}

func (r *KVLedgerRepository) Update(ctx context.Context, id string, fn func(g *model.DonationGoal) error) (*model.DonationGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	goals, err := r.goals.load(ctx)
	if err != nil {
		return nil, err
	}
	g := findGoal(goals, id)
	if g == nil {
		return nil, ErrNotFound
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	g.ID = id
	g.UpdatedAt = r.now().UTC()
	if err := r.goals.save(ctx, goals); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *KVLedgerRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	goals, err := r.goals.load(ctx)
	if err != nil {
		return err
	}
	kept := goals[:0]
	for _, g := range goals {
		if g.ID != id {
			kept = append(kept, g)
		}
	}
	if len(kept) == len(goals) {
		return ErrNotFound
	}
	return r.goals.save(ctx, kept)
}

// ---------------------------------------------------------------------------
// DonationRepository
// ---------------------------------------------------------------------------

// Record writes the goal before the donation list; a crash in between leaves
// the goal ahead of its donations, never the reverse.
func (r *KVLedgerRepository) Record(ctx context.Context, d *model.Donation, check func(g *model.DonationGoal) error) (*model.DonationGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	goals, err := r.goals.load(ctx)
	if err != nil {
		return nil, err
	}
	g := findGoal(goals, d.GoalID)
	if g == nil {
		return nil, ErrNotFound
	}
	if check != nil {
		if err := check(g); err != nil {
			return nil, err
		}
	}
	donations, err := r.donations.load(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.Status == "" {
		d.Status = model.DonationCompleted
	}
	g.ApplyDonation(d.Amount, d.RewardID, now)

	if err := r.goals.save(ctx, goals); err != nil {
		return nil, err
	}
	if err := r.donations.save(ctx, append(donations, d)); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *KVLedgerRepository) donationsWhere(ctx context.Context, keep func(d *model.Donation) bool) ([]*model.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.donations.load(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]*model.Donation, 0)
	for _, d := range all {
		if keep(d) {
			list = append(list, d)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *KVLedgerRepository) ListByUser(ctx context.Context, userID string) ([]*model.Donation, error) {
	return r.donationsWhere(ctx, func(d *model.Donation) bool { return d.UserID != "" && d.UserID == userID })
}

func (r *KVLedgerRepository) ListByGoal(ctx context.Context, goalID string) ([]*model.Donation, error) {
	return r.donationsWhere(ctx, func(d *model.Donation) bool { return d.GoalID == goalID })
}

// GetDonation returns a single donation by ID.
func (r *KVLedgerRepository) GetDonation(ctx context.Context, id string) (*model.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.donations.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (r *KVLedgerRepository) MarkRefunded(ctx context.Context, id, refundID string) (*model.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	donations, err := r.donations.load(ctx)
	if err != nil {
		return nil, err
	}
	var d *model.Donation
	for _, x := range donations {
		if x.ID == id {
			d = x
			break
		}
	}
	if d == nil {
		return nil, ErrNotFound
	}
	if d.Status == model.DonationRefunded {
		return nil, ErrAlreadyRefunded
	}

	goals, err := r.goals.load(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	if g := findGoal(goals, d.GoalID); g != nil {
		g.RevertDonation(d.Amount, d.RewardID, now)
		if err := r.goals.save(ctx, goals); err != nil {
			return nil, err
		}
	}

	d.Status = model.DonationRefunded
	d.RefundID = refundID
	if err := r.donations.save(ctx, donations); err != nil {
		return nil, err
	}
	return d, nil
}

// Donations returns the DonationRepository view of the ledger.
func (r *KVLedgerRepository) Donations() DonationRepository {
	return kvDonationView{r}
}

// kvDonationView resolves the GetByID name clash between the two interfaces.
type kvDonationView struct {
	*KVLedgerRepository
}

func (v kvDonationView) GetByID(ctx context.Context, id string) (*model.Donation, error) {
	return v.GetDonation(ctx, id)
}
