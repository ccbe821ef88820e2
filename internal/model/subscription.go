package model

import "time"

// BillingInterval is how often a plan is charged.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// Next returns the end of a billing period starting at t.
func (i BillingInterval) Next(t time.Time) time.Time {
	if i == IntervalYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// SubscriptionPlan is an entry of the plan catalog.
type SubscriptionPlan struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       int64           `json:"price"`
	Currency    string          `json:"currency"`
	Interval    BillingInterval `json:"interval"`
	Features    []string        `json:"features"`
	Capacity    string          `json:"capacity,omitempty"`
	Storage     string          `json:"storage,omitempty"`
	Support     string          `json:"support,omitempty"`
	Popular     bool            `json:"popular,omitempty"`
}

// SubscriptionStatus is the state of a UserSubscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionExpired
}

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionPending: {SubscriptionActive, SubscriptionCancelled},
	SubscriptionActive:  {SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired},
	SubscriptionPaused:  {SubscriptionActive, SubscriptionCancelled, SubscriptionExpired},
}

// CanTransition reports whether from → to is a legal move. Same-state moves are not.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, s := range subscriptionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UserSubscription is a user's subscription to a plan.
type UserSubscription struct {
	ID                     string             `json:"id"`
	UserID                 string             `json:"user_id"`
	PlanID                 string             `json:"plan_id"`
	Status                 SubscriptionStatus `json:"status"`
	AutoRenew              bool               `json:"auto_renew"`
	Method                 PaymentMethod      `json:"method"`
	ProviderSubscriptionID string             `json:"provider_subscription_id,omitempty"`
	StartedAt              *time.Time         `json:"started_at,omitempty"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	NextBillingDate        *time.Time         `json:"next_billing_date,omitempty"`
	PausedAt               *time.Time         `json:"paused_at,omitempty"`
	CancelledAt            *time.Time         `json:"cancelled_at,omitempty"`
	ExpiredAt              *time.Time         `json:"expired_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// DefaultPlans seeds the plan catalog on first start.
var DefaultPlans = []SubscriptionPlan{
	{
		ID: "basic-monthly", Name: "Basic", Price: 499, Currency: "usd", Interval: IntervalMonthly,
		Features: []string{"Community access", "Monthly newsletter"},
		Capacity: "1 member", Storage: "1 GB", Support: "Community",
	},
	{
		ID: "pro-monthly", Name: "Pro", Price: 1499, Currency: "usd", Interval: IntervalMonthly,
		Features: []string{"Everything in Basic", "Early access to posts", "Supporter badge"},
		Capacity: "3 members", Storage: "10 GB", Support: "Email", Popular: true,
	},
	{
		ID: "pro-yearly", Name: "Pro (yearly)", Price: 14990, Currency: "usd", Interval: IntervalYearly,
		Features: []string{"Everything in Pro", "Two months free"},
		Capacity: "3 members", Storage: "10 GB", Support: "Email",
	},
	{
		ID: "team-yearly", Name: "Team", Price: 49990, Currency: "usd", Interval: IntervalYearly,
		Features: []string{"Everything in Pro", "Team workspace", "Priority support"},
		Capacity: "Unlimited", Storage: "100 GB", Support: "Priority",
	},
}
