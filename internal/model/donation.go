package model

import "time"

// PaymentMethod identifies which (simulated) processor handled a payment.
type PaymentMethod string

const (
	MethodStripe PaymentMethod = "stripe"
	MethodPayPal PaymentMethod = "paypal"
)

// DonationStatus is the settlement state of a donation.
type DonationStatus string

const (
	DonationCompleted DonationStatus = "completed"
	DonationRefunded  DonationStatus = "refunded"
)

// Donation is a single captured donation towards a goal.
type Donation struct {
	ID            string         `json:"id"`
	GoalID        string         `json:"goal_id"`
	UserID        string         `json:"user_id,omitempty"` // empty for guests
	DonorName     string         `json:"donor_name,omitempty"`
	DonorEmail    string         `json:"donor_email,omitempty"`
	Anonymous     bool           `json:"anonymous"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Message       string         `json:"message,omitempty"`
	RewardID      string         `json:"reward_id,omitempty"`
	Method        PaymentMethod  `json:"method"`
	OrderID       string         `json:"order_id,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Status        DonationStatus `json:"status"`
	RefundID      string         `json:"refund_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Public returns a copy safe to show on public goal pages.
func (d *Donation) Public() *Donation {
	c := *d
	c.DonorEmail = ""
	if c.Anonymous {
		c.DonorName = "Anonymous"
		c.UserID = ""
	}
	return &c
}
