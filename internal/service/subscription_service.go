package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/athena-pocket/backend/internal/metrics"
	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/pkg/payment"
)

// SubscribeRequest starts a subscription to a plan.
type SubscribeRequest struct {
	UserID string              `json:"-" validate:"required"`
	PlanID string              `json:"plan_id" validate:"required"`
	Email  string              `json:"email" validate:"required,email"`
	Name   string              `json:"name" validate:"max=100"`
	Method model.PaymentMethod `json:"method" validate:"required,oneof=stripe paypal"`
}

// RenewalReport summarises one RenewDue sweep.
type RenewalReport struct {
	Renewed int `json:"renewed"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// SubscriptionService manages plan subscriptions and their lifecycle.
type SubscriptionService interface {
	ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error)
	GetPlan(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	Subscribe(ctx context.Context, req SubscribeRequest) (*model.UserSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]*model.UserSubscription, error)
	Cancel(ctx context.Context, id, userID string) (*model.UserSubscription, error)
	Pause(ctx context.Context, id, userID string) (*model.UserSubscription, error)
	Resume(ctx context.Context, id, userID string) (*model.UserSubscription, error)
	ChangePlan(ctx context.Context, id, userID, planID string) (*model.UserSubscription, error)
	SetAutoRenew(ctx context.Context, id, userID string, autoRenew bool) (*model.UserSubscription, error)
	// RenewDue charges or expires every active subscription whose period ended by now.
	RenewDue(ctx context.Context, now time.Time) (RenewalReport, error)
}

type subscriptionService struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	payments PaymentService
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSubscriptionService creates a SubscriptionService. m may be nil.
func NewSubscriptionService(plans repository.PlanRepository, subs repository.SubscriptionRepository, payments PaymentService, m *metrics.Metrics) SubscriptionService {
	return &subscriptionService{plans: plans, subs: subs, payments: payments, metrics: m, now: time.Now}
}

func ptr(t time.Time) *time.Time { return &t }

// transition moves s to status `to`, stamping the matching timestamp once.
func transition(s *model.UserSubscription, to model.SubscriptionStatus, now time.Time) error {
	if !model.CanTransition(s.Status, to) {
		return &TransitionError{From: s.Status, To: to}
	}
	switch to {
	case model.SubscriptionActive:
		if s.StartedAt == nil {
			s.StartedAt = ptr(now)
		}
	case model.SubscriptionPaused:
		s.PausedAt = ptr(now)
	case model.SubscriptionCancelled:
		if s.CancelledAt == nil {
			s.CancelledAt = ptr(now)
		}
		s.AutoRenew = false
		s.NextBillingDate = nil
	case model.SubscriptionExpired:
		if s.ExpiredAt == nil {
			s.ExpiredAt = ptr(now)
		}
		s.AutoRenew = false
		s.NextBillingDate = nil
	}
	s.Status = to
	return nil
}

func startPeriod(s *model.UserSubscription, interval model.BillingInterval, start time.Time) {
	end := interval.Next(start)
	s.CurrentPeriodStart = ptr(start)
	s.CurrentPeriodEnd = ptr(end)
	if s.AutoRenew {
		s.NextBillingDate = ptr(end)
	} else {
		s.NextBillingDate = nil
	}
}

func (s *subscriptionService) ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	return s.plans.List(ctx)
}

func (s *subscriptionService) GetPlan(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	return s.plans.GetByID(ctx, id)
}

func (s *subscriptionService) ListByUser(ctx context.Context, userID string) ([]*model.UserSubscription, error) {
	return s.subs.ListByUser(ctx, userID)
}

func (s *subscriptionService) Subscribe(ctx context.Context, req SubscribeRequest) (*model.UserSubscription, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	sub := &model.UserSubscription{
		UserID:    req.UserID,
		PlanID:    plan.ID,
		Status:    model.SubscriptionPending,
		AutoRenew: true,
		Method:    req.Method,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrOpenSubscription) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	provider := payment.Provider(req.Method)
	gw, payErr := s.payments.CreateSubscription(ctx, provider, plan.ID, req.Email, req.Name)
	now := s.now().UTC()
	updated, err := s.subs.Update(ctx, sub.ID, func(x *model.UserSubscription) error {
		if payErr != nil {
			return transition(x, model.SubscriptionCancelled, now)
		}
		x.ProviderSubscriptionID = gw.ID
		if err := transition(x, model.SubscriptionActive, now); err != nil {
			return err
		}
		startPeriod(x, plan.Interval, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	s.metrics.ObserveSubscription(string(updated.Status))
	if payErr != nil {
		slog.Warn("subscription payment failed", "subscription_id", sub.ID, "error", payErr)
		return updated, payErr
	}
	slog.Info("subscription started", "subscription_id", updated.ID, "plan_id", plan.ID, "user_id", req.UserID)
	return updated, nil
}

// owned loads a subscription and checks it belongs to userID.
func (s *subscriptionService) owned(ctx context.Context, id, userID string) (*model.UserSubscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrForbidden
	}
	return sub, nil
}

// move applies a guarded status transition to a subscription owned by userID.
func (s *subscriptionService) move(ctx context.Context, id, userID string, to model.SubscriptionStatus) (*model.UserSubscription, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	updated, err := s.subs.Update(ctx, id, func(x *model.UserSubscription) error {
		return transition(x, to, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSubscription(string(to))
	return updated, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, id, userID string) (*model.UserSubscription, error) {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(sub.Status, model.SubscriptionCancelled) {
		return nil, &TransitionError{From: sub.Status, To: model.SubscriptionCancelled}
	}
	if sub.ProviderSubscriptionID != "" {
		// ゲートウェイ側の解約失敗はローカルの解約を妨げない
		if err := s.payments.CancelSubscription(ctx, payment.Provider(sub.Method), sub.ProviderSubscriptionID); err != nil {
			slog.Warn("gateway cancel failed", "subscription_id", id, "error", err)
		}
	}
	return s.move(ctx, id, userID, model.SubscriptionCancelled)
}

func (s *subscriptionService) Pause(ctx context.Context, id, userID string) (*model.UserSubscription, error) {
	return s.move(ctx, id, userID, model.SubscriptionPaused)
}

// Resume reactivates a paused subscription. The paused time is added to the
// current period so the subscriber keeps what they paid for.
func (s *subscriptionService) Resume(ctx context.Context, id, userID string) (*model.UserSubscription, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	updated, err := s.subs.Update(ctx, id, func(x *model.UserSubscription) error {
		pausedAt := x.PausedAt
		if err := transition(x, model.SubscriptionActive, now); err != nil {
			return err
		}
		if pausedAt != nil && x.CurrentPeriodEnd != nil {
			shift := now.Sub(*pausedAt)
			x.CurrentPeriodEnd = ptr(x.CurrentPeriodEnd.Add(shift))
			if x.AutoRenew {
				x.NextBillingDate = ptr(*x.CurrentPeriodEnd)
			}
		}
		x.PausedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSubscription(string(model.SubscriptionActive))
	return updated, nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, id, userID, planID string) (*model.UserSubscription, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	return s.subs.Update(ctx, id, func(x *model.UserSubscription) error {
		if x.Status != model.SubscriptionActive && x.Status != model.SubscriptionPaused {
			return &TransitionError{From: x.Status, To: x.Status, Op: "change the plan of"}
		}
		if x.PlanID == plan.ID {
			return ErrSamePlan
		}
		x.PlanID = plan.ID
		return nil
	})
}

func (s *subscriptionService) SetAutoRenew(ctx context.Context, id, userID string, autoRenew bool) (*model.UserSubscription, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.subs.Update(ctx, id, func(x *model.UserSubscription) error {
		if x.Status.Terminal() {
			return &TransitionError{From: x.Status, To: x.Status, Op: "change auto-renew of"}
		}
		x.AutoRenew = autoRenew
		if autoRenew && x.CurrentPeriodEnd != nil {
			x.NextBillingDate = ptr(*x.CurrentPeriodEnd)
		} else {
			x.NextBillingDate = nil
		}
		return nil
	})
}

func (s *subscriptionService) RenewDue(ctx context.Context, now time.Time) (RenewalReport, error) {
	var report RenewalReport
	active, err := s.subs.ListByStatus(ctx, model.SubscriptionActive)
	if err != nil {
		return report, err
	}
	for _, sub := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if sub.CurrentPeriodEnd == nil || now.Before(*sub.CurrentPeriodEnd) {
			continue
		}
		renewed, err := s.renew(ctx, sub, now)
		switch {
		case err != nil:
			report.Failed++
			slog.Error("subscription renewal failed", "subscription_id", sub.ID, "error", err)
		case renewed:
			report.Renewed++
		default:
			report.Expired++
		}
	}
	if report.Renewed+report.Expired+report.Failed > 0 {
		slog.Info("subscription renewal sweep", "renewed", report.Renewed, "expired", report.Expired, "failed", report.Failed)
	}
	return report, nil
}

// refundRenewal は課金後に更新が確定しなかった分を返金する。
// 冪等キーは購読 ID と期間の組。
func (s *subscriptionService) refundRenewal(ctx context.Context, sub *model.UserSubscription, capture *payment.Capture) {
	key := sub.ID + ":renewal"
	if sub.CurrentPeriodEnd != nil {
		key = sub.ID + ":" + sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	r, err := s.payments.Refund(context.WithoutCancel(ctx), capture.Provider, capture.TransactionID, key)
	if err != nil {
		slog.Error("renewal refund failed", "subscription_id", sub.ID, "transaction_id", capture.TransactionID, "error", err)
		return
	}
	slog.Warn("renewal charge refunded", "subscription_id", sub.ID, "refund_id", r.ID)
}

// renew charges one period. A decline or disabled auto-renew expires the
// subscription; renewed reports which happened.
func (s *subscriptionService) renew(ctx context.Context, sub *model.UserSubscription, now time.Time) (renewed bool, err error) {
	charged := false
	var plan *model.SubscriptionPlan
	var capture *payment.Capture
	if sub.AutoRenew {
		plan, err = s.plans.GetByID(ctx, sub.PlanID)
		if err != nil {
			return false, err
		}
		capture, err = s.payments.Charge(ctx, payment.Provider(sub.Method), plan.Price, plan.Currency, "renewal "+sub.ID)
		var pe *PaymentError
		switch {
		case err == nil:
			charged = true
		case errors.As(err, &pe) && pe.Declined():
			slog.Warn("renewal declined", "subscription_id", sub.ID)
		default:
			return false, err
		}
	}

	updated, err := s.subs.Update(ctx, sub.ID, func(x *model.UserSubscription) error {
		if x.Status != model.SubscriptionActive {
			return &TransitionError{From: x.Status, To: x.Status, Op: "renew"}
		}
		if !charged {
			return transition(x, model.SubscriptionExpired, now)
		}
		startPeriod(x, plan.Interval, *x.CurrentPeriodEnd)
		return nil
	})
	if err != nil {
		if charged {
			s.refundRenewal(ctx, sub, capture)
		}
		return false, err
	}
	s.metrics.ObserveSubscription(string(updated.Status))
	return charged, nil
}
