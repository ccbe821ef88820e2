package repository

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/storage"
)

func newTestGoal(target, current int64) *model.DonationGoal {
	return &model.DonationGoal{
		Title:         "Server costs",
		TargetAmount:  target,
		CurrentAmount: current,
		Currency:      "usd",
		Deadline:      time.Now().Add(30 * 24 * time.Hour),
		Status:        model.GoalActive,
		Rewards:       []model.Reward{{ID: "r1", Title: "Sticker", MinAmount: 100, Limit: 2}},
	}
}

func TestKVLedger_Record_IncrementsGoal(t *testing.T) {
	ctx := context.Background()
	repo := NewKVLedgerRepository(storage.NewMemoryStorage())
	g := newTestGoal(1000, 800)
	if err := repo.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}

	d := &model.Donation{GoalID: g.ID, UserID: "u1", Amount: 300, Currency: "usd", Method: model.MethodStripe, RewardID: "r1"}
	updated, err := repo.Record(ctx, d, nil)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if updated.CurrentAmount != 1100 {
		t.Errorf("expected 1100, got %d", updated.CurrentAmount)
	}
	if updated.Status != model.GoalCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
	if d.ID == "" || d.Status != model.DonationCompleted {
		t.Errorf("expected id and completed status to be assigned, got %+v", d)
	}

	stored, err := repo.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.CurrentAmount != 1100 || stored.Reward("r1").Claimed != 1 {
		t.Errorf("goal not persisted: %+v", stored)
	}
	list, _ := repo.ListByUser(ctx, "u1")
	if len(list) != 1 {
		t.Errorf("expected 1 donation for u1, got %d", len(list))
	}
}

func TestKVLedger_Record_CheckAbortsWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewKVLedgerRepository(storage.NewMemoryStorage())
	g := newTestGoal(1000, 0)
	_ = repo.Create(ctx, g)

	sentinel := errors.New("closed")
	_, err := repo.Record(ctx, &model.Donation{GoalID: g.ID, Amount: 100}, func(*model.DonationGoal) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	list, _ := repo.ListByGoal(ctx, g.ID)
	if len(list) != 0 {
		t.Errorf("expected no donations, got %d", len(list))
	}
	stored, _ := repo.GetByID(ctx, g.ID)
	if stored.CurrentAmount != 0 {
		t.Errorf("expected goal untouched, got %d", stored.CurrentAmount)
	}
}

func TestKVLedger_Record_UnknownGoal(t *testing.T) {
	repo := NewKVLedgerRepository(storage.NewMemoryStorage())
	_, err := repo.Record(context.Background(), &model.Donation{GoalID: "nope", Amount: 1}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestKVLedger_Record_ConcurrentDonationsAllCounted(t *testing.T) {
	ctx := context.Background()
	repo := NewKVLedgerRepository(storage.NewMemoryStorage())
	g := newTestGoal(100000, 0)
	_ = repo.Create(ctx, g)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Record(ctx, &model.Donation{GoalID: g.ID, Amount: 10}, nil); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, _ := repo.GetByID(ctx, g.ID)
	if stored.CurrentAmount != 200 || stored.DonorCount != 20 {
		t.Errorf("expected 200/20, got %d/%d", stored.CurrentAmount, stored.DonorCount)
	}
}

func TestKVLedger_MarkRefunded(t *testing.T) {
	ctx := context.Background()
	repo := NewKVLedgerRepository(storage.NewMemoryStorage())
	g := newTestGoal(1000, 0)
	_ = repo.Create(ctx, g)
	d := &model.Donation{GoalID: g.ID, Amount: 1000}
	_, _ = repo.Record(ctx, d, nil)

	refunded, err := repo.MarkRefunded(ctx, d.ID, "re_1")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != model.DonationRefunded || refunded.RefundID != "re_1" {
		t.Errorf("unexpected donation state: %+v", refunded)
	}
	stored, _ := repo.GetByID(ctx, g.ID)
	if stored.CurrentAmount != 0 || stored.Status != model.GoalActive {
		t.Errorf("expected goal reverted to 0/active, got %d/%s", stored.CurrentAmount, stored.Status)
	}

	if _, err := repo.MarkRefunded(ctx, d.ID, "re_2"); !errors.Is(err, ErrAlreadyRefunded) {
		t.Errorf("expected ErrAlreadyRefunded, got %v", err)
	}
}

func TestKVLedger_RoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	repo := NewKVLedgerRepository(store)
	g := newTestGoal(5000, 0)
	_ = repo.Create(ctx, g)
	for _, amt := range []int64{100, 250, 400} {
		if _, err := repo.Record(ctx, &model.Donation{GoalID: g.ID, UserID: "u1", Amount: amt, Currency: "usd"}, nil); err != nil {
			t.Fatal(err)
		}
	}
	before, _ := repo.ListByUser(ctx, "u1")

	reopened := NewKVLedgerRepository(store)
	after, err := reopened.Donations().ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected %d donations, got %d", len(before), len(after))
	}
	for i := range before {
		if !reflect.DeepEqual(before[i].ID, after[i].ID) || before[i].Amount != after[i].Amount ||
			!before[i].CreatedAt.Equal(after[i].CreatedAt) {
			t.Errorf("donation %d differs: %+v vs %+v", i, before[i], after[i])
		}
	}
}

func TestKVLedger_CorruptedDocumentFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	_ = store.Set(ctx, storage.KeyDonationGoals, []byte("{not json"))

	repo := NewKVLedgerRepository(store)
	goals, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(goals) != 0 {
		t.Errorf("expected empty list, got %d", len(goals))
	}
	if err := repo.Create(ctx, newTestGoal(100, 0)); err != nil {
		t.Fatalf("create after corruption: %v", err)
	}
	goals, _ = repo.List(ctx)
	if len(goals) != 1 {
		t.Errorf("expected 1 goal after overwrite, got %d", len(goals))
	}
}

func TestKVLedger_DeleteGoal(t *testing.T) {
	ctx := context.Background()
	repo := NewKVLedgerRepository(storage.NewMemoryStorage())
	g := newTestGoal(100, 0)
	_ = repo.Create(ctx, g)
	if err := repo.Delete(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, g.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
