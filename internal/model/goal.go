package model

import (
	"math"
	"time"
)

// GoalStatus is the lifecycle state of a DonationGoal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalExpired   GoalStatus = "expired"
)

// DonationGoal is a funding target with an amount raised to date and a deadline.
type DonationGoal struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description,omitempty"`
	Category      string      `json:"category,omitempty"`
	TargetAmount  int64       `json:"target_amount"`
	CurrentAmount int64       `json:"current_amount"`
	Currency      string      `json:"currency"`
	Deadline      time.Time   `json:"deadline"`
	Status        GoalStatus  `json:"status"`
	DonorCount    int         `json:"donor_count"`
	Rewards       []Reward    `json:"rewards"`
	Milestones    []Milestone `json:"milestones"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Reward is a tier offered to donors giving at least MinAmount.
type Reward struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	MinAmount   int64  `json:"min_amount"`
	Limit       int    `json:"limit"` // 0 = unlimited
	Claimed     int    `json:"claimed"`
}

// Available reports whether the reward still has stock.
func (r *Reward) Available() bool {
	return r.Limit == 0 || r.Claimed < r.Limit
}

// Milestone marks an intermediate amount on the way to the target.
type Milestone struct {
	Amount    int64      `json:"amount"`
	Title     string     `json:"title"`
	Reached   bool       `json:"reached"`
	ReachedAt *time.Time `json:"reached_at,omitempty"`
}

// GoalProgress is the derived progress view of a goal.
type GoalProgress struct {
	GoalID        string  `json:"goal_id"`
	Percentage    float64 `json:"percentage"` // clamped to [0, 100]
	CurrentAmount int64   `json:"current_amount"`
	TargetAmount  int64   `json:"target_amount"`
	DonationCount int     `json:"donation_count"`
	DaysLeft      int     `json:"days_left"`
	Completed     bool    `json:"completed"`
	Expired       bool    `json:"expired"`
}

// Reward returns the reward with the given id, or nil.
func (g *DonationGoal) Reward(id string) *Reward {
	for i := range g.Rewards {
		if g.Rewards[i].ID == id {
			return &g.Rewards[i]
		}
	}
	return nil
}

// Percentage returns current/target*100 clamped to [0, 100].
func (g *DonationGoal) Percentage() float64 {
	if g.TargetAmount <= 0 {
		return 0
	}
	p := float64(g.CurrentAmount) / float64(g.TargetAmount) * 100
	return math.Max(0, math.Min(100, p))
}

// DaysLeft returns the ceiling of the days remaining until the deadline, never negative.
func (g *DonationGoal) DaysLeft(now time.Time) int {
	d := g.Deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// StatusAt returns the status the goal has at now without mutating it.
func (g *DonationGoal) StatusAt(now time.Time) GoalStatus {
	if g.CurrentAmount >= g.TargetAmount {
		return GoalCompleted
	}
	if !g.Deadline.IsZero() && now.After(g.Deadline) {
		return GoalExpired
	}
	return GoalActive
}

// ApplyDonation adds a captured donation to the goal's totals and recomputes
// milestones and status. Over-funding is kept as-is.
func (g *DonationGoal) ApplyDonation(amount int64, rewardID string, now time.Time) {
	g.CurrentAmount += amount
	g.DonorCount++
	if rewardID != "" {
		if r := g.Reward(rewardID); r != nil {
			r.Claimed++
		}
	}
	g.recompute(now)
}

// RevertDonation removes a refunded donation from the goal's totals.
func (g *DonationGoal) RevertDonation(amount int64, rewardID string, now time.Time) {
	g.CurrentAmount -= amount
	if g.CurrentAmount < 0 {
		g.CurrentAmount = 0
	}
	if g.DonorCount > 0 {
		g.DonorCount--
	}
	if rewardID != "" {
		if r := g.Reward(rewardID); r != nil && r.Claimed > 0 {
			r.Claimed--
		}
	}
	g.recompute(now)
}

// Refresh recomputes milestones and status after the target or deadline changed.
func (g *DonationGoal) Refresh(now time.Time) {
	g.recompute(now)
}

func (g *DonationGoal) recompute(now time.Time) {
	for i := range g.Milestones {
		m := &g.Milestones[i]
		switch {
		case !m.Reached && g.CurrentAmount >= m.Amount:
			t := now
			m.Reached = true
			m.ReachedAt = &t
		case m.Reached && g.CurrentAmount < m.Amount:
			m.Reached = false
			m.ReachedAt = nil
		}
	}
	g.Status = g.StatusAt(now)
	g.UpdatedAt = now
}

// Progress returns the derived progress view at now.
func (g *DonationGoal) Progress(now time.Time) GoalProgress {
	status := g.StatusAt(now)
	return GoalProgress{
		GoalID:        g.ID,
		Percentage:    g.Percentage(),
		CurrentAmount: g.CurrentAmount,
		TargetAmount:  g.TargetAmount,
		DonationCount: g.DonorCount,
		DaysLeft:      g.DaysLeft(now),
		Completed:     status == GoalCompleted,
		Expired:       !g.Deadline.IsZero() && now.After(g.Deadline),
	}
}
