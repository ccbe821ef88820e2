package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the periodic maintenance jobs: subscription renewals and
// scheduled post publication.
type Sweeper struct {
	Subscriptions SubscriptionService
	Blog          BlogService
	Interval      time.Duration
	Now           func() time.Time
}

// RunOnce executes every job once at the current time.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if s.Subscriptions != nil {
		if _, err := s.Subscriptions.RenewDue(ctx, now); err != nil {
			slog.Error("renewal sweep failed", "error", err)
		}
	}
	if s.Blog != nil {
		if _, err := s.Blog.PublishDue(ctx, now); err != nil {
			slog.Error("publish sweep failed", "error", err)
		}
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
