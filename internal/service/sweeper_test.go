package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/athena-pocket/backend/internal/model"
)

type countingSubscriptions struct {
	SubscriptionService
	calls atomic.Int32
	at    atomic.Value
}

func (c *countingSubscriptions) RenewDue(ctx context.Context, now time.Time) (RenewalReport, error) {
	c.calls.Add(1)
	c.at.Store(now)
	return RenewalReport{}, nil
}

func TestSweeper_RunOnce(t *testing.T) {
	blog := newTestBlog()
	ctx := context.Background()
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := blog.Create(ctx, "admin", PostInput{Title: "Scheduled", Content: "x", Status: model.PostScheduled, PublishAt: &due})
	if err != nil {
		t.Fatal(err)
	}
	subs := &countingSubscriptions{}
	fixed := due.Add(time.Hour)

	s := &Sweeper{Subscriptions: subs, Blog: blog, Interval: time.Hour, Now: func() time.Time { return fixed }}
	s.RunOnce(ctx)

	if subs.calls.Load() != 1 || !subs.at.Load().(time.Time).Equal(fixed) {
		t.Errorf("expected one renewal sweep at %v", fixed)
	}
	got, _ := blog.Get(ctx, p.ID)
	if got.Status != model.PostPublished {
		t.Errorf("expected post published, got %q", got.Status)
	}
}

func TestSweeper_Run_StopsOnCancel(t *testing.T) {
	subs := &countingSubscriptions{}
	s := &Sweeper{Subscriptions: subs, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	if subs.calls.Load() < 2 {
		t.Errorf("expected immediate and ticked sweeps, got %d", subs.calls.Load())
	}
}
