package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/internal/storage"
	"github.com/athena-pocket/backend/pkg/payment"
)

type subscriptionFixture struct {
	svc     SubscriptionService
	subs    repository.SubscriptionRepository
	approve atomic.Bool
	now     time.Time
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	f := &subscriptionFixture{
		subs: repository.NewKVSubscriptionRepository(store),
		now:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.approve.Store(true)
	payments := newTestPayments(payment.OutcomeFunc(f.approve.Load), nil)
	svc := NewSubscriptionService(repository.NewKVPlanRepository(store, model.DefaultPlans), f.subs, payments, nil)
	svc.(*subscriptionService).now = func() time.Time { return f.now }
	f.svc = svc
	return f
}

func (f *subscriptionFixture) subscribe(t *testing.T, userID, planID string) *model.UserSubscription {
	t.Helper()
	s, err := f.svc.Subscribe(context.Background(), SubscribeRequest{
		UserID: userID, PlanID: planID, Email: userID + "@example.com", Method: model.MethodPayPal,
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Subscribe
// ---------------------------------------------------------------------------

func TestSubscriptionService_Subscribe_Activates(t *testing.T) {
	f := newSubscriptionFixture(t)
	s := f.subscribe(t, "u1", "basic-monthly")

	if s.Status != model.SubscriptionActive || !s.AutoRenew {
		t.Errorf("expected active auto-renewing subscription, got %+v", s)
	}
	if s.ProviderSubscriptionID == "" {
		t.Error("expected provider subscription id")
	}
	wantEnd := f.now.AddDate(0, 1, 0)
	if s.CurrentPeriodEnd == nil || !s.CurrentPeriodEnd.Equal(wantEnd) {
		t.Errorf("expected period end %v, got %v", wantEnd, s.CurrentPeriodEnd)
	}
	if s.NextBillingDate == nil || !s.NextBillingDate.Equal(wantEnd) {
		t.Errorf("expected next billing %v, got %v", wantEnd, s.NextBillingDate)
	}
}

func TestSubscriptionService_Subscribe_AlreadySubscribed(t *testing.T) {
	f := newSubscriptionFixture(t)
	f.subscribe(t, "u1", "basic-monthly")

	_, err := f.svc.Subscribe(context.Background(), SubscribeRequest{UserID: "u1", PlanID: "pro-monthly", Email: "u1@example.com", Method: model.MethodStripe})
	if !errors.Is(err, ErrAlreadySubscribed) {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestSubscriptionService_Subscribe_ConcurrentOnlyOneWins(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var ok, already atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Subscribe(ctx, SubscribeRequest{UserID: "u1", PlanID: "basic-monthly", Email: "u1@example.com", Method: model.MethodStripe})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadySubscribed):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || already.Load() != 7 {
		t.Errorf("expected exactly one subscription, got %d ok / %d rejected", ok.Load(), already.Load())
	}
	mine, _ := f.subs.ListByUser(ctx, "u1")
	if len(mine) != 1 {
		t.Errorf("expected one stored subscription, got %d", len(mine))
	}
}

func TestSubscriptionService_Subscribe_UnknownPlan(t *testing.T) {
	f := newSubscriptionFixture(t)
	_, err := f.svc.Subscribe(context.Background(), SubscribeRequest{UserID: "u1", PlanID: "gold", Email: "u1@example.com", Method: model.MethodStripe})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscriptionService_Subscribe_GatewayFailureCancels(t *testing.T) {
	f := newSubscriptionFixture(t)
	f.approve.Store(false)

	s, err := f.svc.Subscribe(context.Background(), SubscribeRequest{UserID: "u1", PlanID: "basic-monthly", Email: "u1@example.com", Method: model.MethodStripe})
	var pe *PaymentError
	if !errors.As(err, &pe) || !pe.Declined() {
		t.Fatalf("expected declined PaymentError, got %v", err)
	}
	if s == nil || s.Status != model.SubscriptionCancelled {
		t.Fatalf("expected cancelled record, got %+v", s)
	}

	// 失敗した申込は再申込を妨げない
	f.approve.Store(true)
	f.subscribe(t, "u1", "basic-monthly")
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestSubscriptionService_PauseResumeShiftsPeriod(t *testing.T) {
	f := newSubscriptionFixture(t)
	s := f.subscribe(t, "u1", "basic-monthly")
	end := *s.CurrentPeriodEnd
	ctx := context.Background()

	paused, err := f.svc.Pause(ctx, s.ID, "u1")
	if err != nil || paused.Status != model.SubscriptionPaused {
		t.Fatalf("pause: %v %+v", err, paused)
	}
	if _, err := f.svc.Pause(ctx, s.ID, "u1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pause twice: expected ErrInvalidTransition, got %v", err)
	}

	f.now = f.now.Add(72 * time.Hour)
	resumed, err := f.svc.Resume(ctx, s.ID, "u1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != model.SubscriptionActive || resumed.PausedAt != nil {
		t.Errorf("unexpected resumed subscription: %+v", resumed)
	}
	if want := end.Add(72 * time.Hour); !resumed.CurrentPeriodEnd.Equal(want) {
		t.Errorf("expected period end %v, got %v", want, resumed.CurrentPeriodEnd)
	}
}

func TestSubscriptionService_Cancel(t *testing.T) {
	f := newSubscriptionFixture(t)
	s := f.subscribe(t, "u1", "basic-monthly")
	ctx := context.Background()

	if _, err := f.svc.Cancel(ctx, s.ID, "intruder"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for other user, got %v", err)
	}

	c, err := f.svc.Cancel(ctx, s.ID, "u1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.Status != model.SubscriptionCancelled || c.CancelledAt == nil || c.AutoRenew || c.NextBillingDate != nil {
		t.Errorf("unexpected cancelled subscription: %+v", c)
	}

	_, err = f.svc.Cancel(ctx, s.ID, "u1")
	var te *TransitionError
	if !errors.As(err, &te) || te.From != model.SubscriptionCancelled {
		t.Errorf("expected TransitionError from cancelled, got %v", err)
	}
	if _, err := f.svc.Resume(ctx, s.ID, "u1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume cancelled: expected ErrInvalidTransition, got %v", err)
	}
}

func TestSubscriptionService_ChangePlan(t *testing.T) {
	f := newSubscriptionFixture(t)
	s := f.subscribe(t, "u1", "basic-monthly")
	ctx := context.Background()

	if _, err := f.svc.ChangePlan(ctx, s.ID, "u1", "basic-monthly"); !errors.Is(err, ErrSamePlan) {
		t.Errorf("expected ErrSamePlan, got %v", err)
	}
	changed, err := f.svc.ChangePlan(ctx, s.ID, "u1", "pro-monthly")
	if err != nil || changed.PlanID != "pro-monthly" {
		t.Fatalf("change plan: %v %+v", err, changed)
	}
	if _, err := f.svc.ChangePlan(ctx, s.ID, "u1", "no-such-plan"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, s.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ChangePlan(ctx, s.ID, "u1", "team-yearly"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on cancelled, got %v", err)
	}
}

func TestSubscriptionService_SetAutoRenew(t *testing.T) {
	f := newSubscriptionFixture(t)
	s := f.subscribe(t, "u1", "basic-monthly")

	off, err := f.svc.SetAutoRenew(context.Background(), s.ID, "u1", false)
	if err != nil {
		t.Fatal(err)
	}
	if off.AutoRenew || off.NextBillingDate != nil {
		t.Errorf("expected auto-renew off without billing date, got %+v", off)
	}
	on, err := f.svc.SetAutoRenew(context.Background(), s.ID, "u1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !on.AutoRenew || on.NextBillingDate == nil || !on.NextBillingDate.Equal(*on.CurrentPeriodEnd) {
		t.Errorf("expected billing date at period end, got %+v", on)
	}
}

// ---------------------------------------------------------------------------
// RenewDue
// ---------------------------------------------------------------------------

func TestSubscriptionService_RenewDue(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	renewing := f.subscribe(t, "u1", "basic-monthly")
	lapsing := f.subscribe(t, "u2", "basic-monthly")
	notDue := f.subscribe(t, "u3", "pro-yearly")
	if _, err := f.svc.SetAutoRenew(ctx, lapsing.ID, "u2", false); err != nil {
		t.Fatal(err)
	}

	at := renewing.CurrentPeriodEnd.Add(time.Minute)
	report, err := f.svc.RenewDue(ctx, at)
	if err != nil {
		t.Fatal(err)
	}
	if report.Renewed != 1 || report.Expired != 1 || report.Failed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}

	got, _ := f.subs.GetByID(ctx, renewing.ID)
	if want := renewing.CurrentPeriodEnd.AddDate(0, 1, 0); !got.CurrentPeriodEnd.Equal(want) {
		t.Errorf("expected period end %v, got %v", want, got.CurrentPeriodEnd)
	}
	if !got.CurrentPeriodStart.Equal(*renewing.CurrentPeriodEnd) {
		t.Errorf("expected new period to start at old end")
	}
	got, _ = f.subs.GetByID(ctx, lapsing.ID)
	if got.Status != model.SubscriptionExpired || got.ExpiredAt == nil {
		t.Errorf("expected expired, got %+v", got)
	}
	got, _ = f.subs.GetByID(ctx, notDue.ID)
	if got.Status != model.SubscriptionActive {
		t.Errorf("yearly plan should be untouched, got %q", got.Status)
	}
}

func TestSubscriptionService_RenewDue_DeclineExpires(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	s := f.subscribe(t, "u1", "basic-monthly")

	f.approve.Store(false)
	report, err := f.svc.RenewDue(ctx, s.CurrentPeriodEnd.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if report.Expired != 1 || report.Renewed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	got, _ := f.subs.GetByID(ctx, s.ID)
	if got.Status != model.SubscriptionExpired {
		t.Errorf("expected expired after decline, got %q", got.Status)
	}
}

// pausingPayments は課金中に購読を一時停止させ、更新側の競合を再現する
type pausingPayments struct {
	PaymentService
	pause   func()
	refunds atomic.Int32
	keys    []string
}

func (p *pausingPayments) Charge(ctx context.Context, provider payment.Provider, amount int64, currency, description string) (*payment.Capture, error) {
	c, err := p.PaymentService.Charge(ctx, provider, amount, currency, description)
	p.pause()
	return c, err
}

func (p *pausingPayments) Refund(ctx context.Context, provider payment.Provider, transactionID, idempotencyKey string) (*payment.Refund, error) {
	p.refunds.Add(1)
	p.keys = append(p.keys, idempotencyKey)
	return p.PaymentService.Refund(ctx, provider, transactionID, idempotencyKey)
}

func TestSubscriptionService_RenewDue_RefundsWhenUpdateLoses(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	s := f.subscribe(t, "u1", "basic-monthly")

	impl := f.svc.(*subscriptionService)
	wrapped := &pausingPayments{PaymentService: impl.payments}
	wrapped.pause = func() {
		if _, err := f.svc.Pause(ctx, s.ID, "u1"); err != nil {
			t.Errorf("pause: %v", err)
		}
	}
	impl.payments = wrapped

	report, err := f.svc.RenewDue(ctx, s.CurrentPeriodEnd.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 || report.Renewed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if n := wrapped.refunds.Load(); n != 1 {
		t.Fatalf("expected the renewal charge to be refunded once, got %d refunds", n)
	}
	if want := s.ID + ":" + s.CurrentPeriodEnd.UTC().Format(time.RFC3339); wrapped.keys[0] != want {
		t.Errorf("expected idempotency key %q, got %q", want, wrapped.keys[0])
	}

	got, _ := f.subs.GetByID(ctx, s.ID)
	if got.Status != model.SubscriptionPaused {
		t.Errorf("expected paused subscription to stay paused, got %q", got.Status)
	}
	if !got.CurrentPeriodEnd.Equal(*s.CurrentPeriodEnd) {
		t.Errorf("period must not advance without a kept charge")
	}
}

func TestTransition_Table(t *testing.T) {
	now := time.Now()
	tests := []struct {
		from, to model.SubscriptionStatus
		ok       bool
	}{
		{model.SubscriptionPending, model.SubscriptionActive, true},
		{model.SubscriptionPending, model.SubscriptionPaused, false},
		{model.SubscriptionActive, model.SubscriptionPaused, true},
		{model.SubscriptionActive, model.SubscriptionActive, false},
		{model.SubscriptionPaused, model.SubscriptionExpired, true},
		{model.SubscriptionCancelled, model.SubscriptionActive, false},
		{model.SubscriptionExpired, model.SubscriptionCancelled, false},
	}
	for _, tt := range tests {
		s := &model.UserSubscription{Status: tt.from}
		err := transition(s, tt.to, now)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: expected ok=%v, got %v", tt.from, tt.to, tt.ok, err)
		}
		if err != nil && s.Status != tt.from {
			t.Errorf("%s -> %s: status changed on rejected move", tt.from, tt.to)
		}
	}
}
