package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/athena-pocket/backend/internal/metrics"
	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/pkg/payment"
	"github.com/google/uuid"
)

// RewardInput describes a reward tier when creating or editing a goal.
// An existing ID keeps the tier's claimed count.
type RewardInput struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
	MinAmount   int64  `json:"min_amount" validate:"gt=0"`
	Limit       int    `json:"limit" validate:"gte=0"`
}

type MilestoneInput struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Title  string `json:"title" validate:"required,max=120"`
}

// GoalInput is the editable part of a DonationGoal.
type GoalInput struct {
	Title        string           `json:"title" validate:"required,max=200"`
	Description  string           `json:"description" validate:"max=10000"`
	Category     string           `json:"category" validate:"max=50"`
	TargetAmount int64            `json:"target_amount" validate:"gt=0"`
	Currency     string           `json:"currency" validate:"omitempty,len=3,alpha"`
	Deadline     time.Time        `json:"deadline" validate:"required"`
	Rewards      []RewardInput    `json:"rewards" validate:"dive"`
	Milestones   []MilestoneInput `json:"milestones" validate:"dive"`
}

// DonateRequest is a donation attempt. UserID is empty for guests.
type DonateRequest struct {
	GoalID     string              `json:"goal_id" validate:"required"`
	UserID     string              `json:"-"`
	DonorName  string              `json:"donor_name" validate:"required,max=100"`
	DonorEmail string              `json:"donor_email" validate:"required,email"`
	Amount     int64               `json:"amount"`
	Currency   string              `json:"currency" validate:"omitempty,len=3,alpha"`
	Message    string              `json:"message" validate:"max=1000"`
	Anonymous  bool                `json:"anonymous"`
	RewardID   string              `json:"reward_id"`
	Method     model.PaymentMethod `json:"method" validate:"required,oneof=stripe paypal"`
}

// DonationReceipt is the result of a successful donation.
type DonationReceipt struct {
	Donation *model.Donation    `json:"donation"`
	Progress model.GoalProgress `json:"progress"`
}

// DonationService manages goals and the donation ledger.
type DonationService interface {
	CreateGoal(ctx context.Context, in GoalInput) (*model.DonationGoal, error)
	UpdateGoal(ctx context.Context, id string, in GoalInput) (*model.DonationGoal, error)
	DeleteGoal(ctx context.Context, id string) error
	GetGoal(ctx context.Context, id string) (*model.DonationGoal, error)
	ListGoals(ctx context.Context) ([]*model.DonationGoal, error)
	Donate(ctx context.Context, req DonateRequest) (*DonationReceipt, error)
	GoalProgress(ctx context.Context, goalID string) (*model.GoalProgress, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Donation, error)
	ListByGoal(ctx context.Context, goalID string) ([]*model.Donation, error)
	Refund(ctx context.Context, donationID string) (*model.Donation, error)
}

type donationService struct {
	goals     repository.GoalRepository
	donations repository.DonationRepository
	payments  PaymentService
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewDonationService creates a DonationService. m may be nil.
func NewDonationService(goals repository.GoalRepository, donations repository.DonationRepository, payments PaymentService, m *metrics.Metrics) DonationService {
	return &donationService{goals: goals, donations: donations, payments: payments, metrics: m, now: time.Now}
}

// ---------------------------------------------------------------------------
// Goals
// ---------------------------------------------------------------------------

func (s *donationService) validateGoal(in *GoalInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Currency = strings.ToLower(in.Currency)
	if in.Currency == "" {
		in.Currency = "usd"
	}
	if err := validateStruct(in); err != nil {
		return err
	}
	if !in.Deadline.After(s.now()) {
		return invalidField("deadline", "future")
	}
	return nil
}

func buildRewards(in []RewardInput, existing []model.Reward) []model.Reward {
	claimed := make(map[string]int, len(existing))
	for _, r := range existing {
		claimed[r.ID] = r.Claimed
	}
	out := make([]model.Reward, 0, len(in))
	for _, r := range in {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, model.Reward{
			ID:          id,
			Title:       r.Title,
			Description: r.Description,
			MinAmount:   r.MinAmount,
			Limit:       r.Limit,
			Claimed:     claimed[id],
		})
	}
	return out
}

func buildMilestones(in []MilestoneInput) []model.Milestone {
	out := make([]model.Milestone, 0, len(in))
	for _, m := range in {
		out = append(out, model.Milestone{Amount: m.Amount, Title: m.Title})
	}
	return out
}

func (s *donationService) CreateGoal(ctx context.Context, in GoalInput) (*model.DonationGoal, error) {
	if err := s.validateGoal(&in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	g := &model.DonationGoal{
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		TargetAmount: in.TargetAmount,
		Currency:     in.Currency,
		Deadline:     in.Deadline.UTC(),
		Status:       model.GoalActive,
		Rewards:      buildRewards(in.Rewards, nil),
		Milestones:   buildMilestones(in.Milestones),
	}
	g.Refresh(now)
	if err := s.goals.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	slog.Info("goal created", "goal_id", g.ID, "target", g.TargetAmount)
	return g, nil
}

func (s *donationService) UpdateGoal(ctx context.Context, id string, in GoalInput) (*model.DonationGoal, error) {
	if err := s.validateGoal(&in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return s.goals.Update(ctx, id, func(g *model.DonationGoal) error {
		if g.Currency != in.Currency && g.CurrentAmount > 0 {
			return invalidField("currency", "immutable")
		}
		g.Title = in.Title
		g.Description = in.Description
		g.Category = in.Category
		g.TargetAmount = in.TargetAmount
		g.Currency = in.Currency
		g.Deadline = in.Deadline.UTC()
		g.Rewards = buildRewards(in.Rewards, g.Rewards)
		g.Milestones = buildMilestones(in.Milestones)
		g.Refresh(now)
		return nil
	})
}

func (s *donationService) DeleteGoal(ctx context.Context, id string) error {
	ds, err := s.donations.ListByGoal(ctx, id)
	if err != nil {
		return err
	}
	if len(ds) > 0 {
		return ErrGoalHasDonations
	}
	return s.goals.Delete(ctx, id)
}

// withStatus returns a copy whose status reflects now.
func (s *donationService) withStatus(g *model.DonationGoal) *model.DonationGoal {
	c := *g
	c.Status = g.StatusAt(s.now())
	return &c
}

func (s *donationService) GetGoal(ctx context.Context, id string) (*model.DonationGoal, error) {
	g, err := s.goals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withStatus(g), nil
}

func (s *donationService) ListGoals(ctx context.Context) ([]*model.DonationGoal, error) {
	goals, err := s.goals.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.DonationGoal, 0, len(goals))
	for _, g := range goals {
		out = append(out, s.withStatus(g))
	}
	return out, nil
}

func (s *donationService) GoalProgress(ctx context.Context, goalID string) (*model.GoalProgress, error) {
	g, err := s.goals.GetByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	p := g.Progress(s.now())
	return &p, nil
}

// ---------------------------------------------------------------------------
// Donations
// ---------------------------------------------------------------------------

// acceptCheck returns the guard applied to the goal before a donation is
// recorded. It runs once before charging and again under the ledger lock.
func (s *donationService) acceptCheck(req *DonateRequest) func(g *model.DonationGoal) error {
	return func(g *model.DonationGoal) error {
		if g.StatusAt(s.now()) == model.GoalExpired {
			return ErrGoalClosed
		}
		if req.Currency != g.Currency {
			return invalidField("currency", "mismatch")
		}
		if req.Amount > math.MaxInt64-g.CurrentAmount {
			return ErrAmountOverflow
		}
		if req.RewardID == "" {
			return nil
		}
		r := g.Reward(req.RewardID)
		if r == nil || !r.Available() || req.Amount < r.MinAmount {
			return ErrRewardUnavailable
		}
		return nil
	}
}

func (s *donationService) Donate(ctx context.Context, req DonateRequest) (*DonationReceipt, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	req.DonorEmail = strings.ToLower(strings.TrimSpace(req.DonorEmail))
	req.DonorName = strings.TrimSpace(req.DonorName)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	g, err := s.goals.GetByID(ctx, req.GoalID)
	if err != nil {
		return nil, err
	}
	req.Currency = strings.ToLower(req.Currency)
	if req.Currency == "" {
		req.Currency = g.Currency
	}
	check := s.acceptCheck(&req)
	if err := check(g); err != nil {
		return nil, err
	}

	provider := payment.Provider(req.Method)
	capture, err := s.payments.Charge(ctx, provider, req.Amount, req.Currency, "donation to "+g.Title)
	if err != nil {
		return nil, err
	}

	d := &model.Donation{
		ID:            uuid.NewString(),
		GoalID:        req.GoalID,
		UserID:        req.UserID,
		DonorName:     req.DonorName,
		DonorEmail:    req.DonorEmail,
		Anonymous:     req.Anonymous,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Message:       req.Message,
		RewardID:      req.RewardID,
		Method:        req.Method,
		OrderID:       capture.OrderID,
		TransactionID: capture.TransactionID,
		Status:        model.DonationCompleted,
	}
	updated, err := s.donations.Record(ctx, d, check)
	if err != nil {
		// 決済済みだが記録に失敗したので返金して整合性を保つ
		if _, rerr := s.payments.Refund(context.WithoutCancel(ctx), provider, capture.TransactionID, d.ID); rerr != nil {
			slog.Error("compensating refund failed", "transaction_id", capture.TransactionID, "error", rerr)
		} else {
			slog.Warn("donation not recorded, payment refunded", "transaction_id", capture.TransactionID, "error", err)
		}
		return nil, err
	}

	s.metrics.ObserveDonation(string(d.Method), string(d.Status), d.Currency, d.Amount)
	slog.Info("donation recorded", "donation_id", d.ID, "goal_id", d.GoalID, "amount", d.Amount, "method", d.Method)
	return &DonationReceipt{Donation: d, Progress: updated.Progress(s.now())}, nil
}

func (s *donationService) ListByUser(ctx context.Context, userID string) ([]*model.Donation, error) {
	return s.donations.ListByUser(ctx, userID)
}

func (s *donationService) ListByGoal(ctx context.Context, goalID string) ([]*model.Donation, error) {
	return s.donations.ListByGoal(ctx, goalID)
}

// Refund reverses a donation at the gateway and in the ledger. The donation
// ID is the gateway idempotency key, so a retried refund never pays out twice.
func (s *donationService) Refund(ctx context.Context, donationID string) (*model.Donation, error) {
	d, err := s.donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.Status == model.DonationRefunded {
		return nil, repository.ErrAlreadyRefunded
	}
	r, err := s.payments.Refund(ctx, payment.Provider(d.Method), d.TransactionID, d.ID)
	if err != nil {
		return nil, err
	}
	refunded, err := s.donations.MarkRefunded(ctx, d.ID, r.ID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRefunded) {
			return nil, err
		}
		return nil, fmt.Errorf("mark refunded: %w", err)
	}
	s.metrics.ObserveDonation(string(refunded.Method), string(refunded.Status), refunded.Currency, refunded.Amount)
	slog.Info("donation refunded", "donation_id", d.ID, "refund_id", r.ID)
	return refunded, nil
}
