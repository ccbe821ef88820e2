// Package payment defines the gateway abstraction used for donations and
// subscriptions, plus in-process simulators for Stripe-like and PayPal-like
// gateways.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

var (
	// ErrDeclined は決済が拒否された場合のエラー
	ErrDeclined = errors.New("payment: declined")
	// ErrOrderNotFound は存在しない注文 ID の場合のエラー
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrTransactionNotFound は存在しない取引 ID の場合のエラー
	ErrTransactionNotFound = errors.New("payment: transaction not found")
	// ErrAlreadyRefunded は返金済み取引への別キーでの返金要求
	ErrAlreadyRefunded = errors.New("payment: transaction already refunded")
	// ErrSubscriptionNotFound は存在しない、または解約済みの定期課金
	ErrSubscriptionNotFound = errors.New("payment: subscription not found")
	ErrIdempotencyKeyReused = errors.New("payment: idempotency key reused for a different transaction")
	ErrUnknownProvider      = errors.New("payment: unknown provider")
	ErrInvalidAmount        = errors.New("payment: amount must be greater than zero")
)

// OrderStatus is the state of an order at the gateway.
type OrderStatus string

const (
	OrderCreated  OrderStatus = "created"
	OrderCaptured OrderStatus = "captured"
	OrderDeclined OrderStatus = "declined"
)

// Order is an authorised intent to charge Amount (minor units).
type Order struct {
	ID          string      `json:"id"`
	Provider    Provider    `json:"provider"`
	Amount      int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Description string      `json:"description,omitempty"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Capture is a settled charge.
type Capture struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Provider      Provider  `json:"provider"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	CapturedAt    time.Time `json:"captured_at"`
}

// Refund reverses a capture in full.
type Refund struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

// Subscription is a recurring billing agreement at the gateway.
type Subscription struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"plan_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Processor is the gateway contract.
type Processor interface {
	Provider() Provider
	CreateOrder(ctx context.Context, amount int64, currency, description string) (*Order, error)
	// CapturePayment returns either a capture with a non-empty TransactionID or an error, never both.
	CapturePayment(ctx context.Context, orderID string) (*Capture, error)
	CreateSubscription(ctx context.Context, planID, email, name string) (*Subscription, error)
	Refund(ctx context.Context, transactionID, idempotencyKey string) (*Refund, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// Processors maps a provider to its processor.
type Processors map[Provider]Processor

// Get returns the processor for p.
func (ps Processors) Get(p Provider) (Processor, error) {
	proc, ok := ps[p]
	if !ok || proc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
	return proc, nil
}
