package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/athena-pocket/backend/internal/metrics"
	"github.com/athena-pocket/backend/pkg/payment"
)

// PaymentService routes gateway calls to the processor of the requested
// provider. Every failure is returned as a *PaymentError.
type PaymentService interface {
	CreateOrder(ctx context.Context, provider payment.Provider, amount int64, currency, description string) (*payment.Order, error)
	Capture(ctx context.Context, provider payment.Provider, orderID string) (*payment.Capture, error)
	// Charge creates an order and captures it.
	Charge(ctx context.Context, provider payment.Provider, amount int64, currency, description string) (*payment.Capture, error)
	Refund(ctx context.Context, provider payment.Provider, transactionID, idempotencyKey string) (*payment.Refund, error)
	CreateSubscription(ctx context.Context, provider payment.Provider, planID, email, name string) (*payment.Subscription, error)
	CancelSubscription(ctx context.Context, provider payment.Provider, subscriptionID string) error
}

type paymentService struct {
	processors payment.Processors
	metrics    *metrics.Metrics
}

// NewPaymentService creates a PaymentService. m may be nil.
func NewPaymentService(processors payment.Processors, m *metrics.Metrics) PaymentService {
	return &paymentService{processors: processors, metrics: m}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, payment.ErrDeclined):
		return metrics.OutcomeDeclined
	default:
		return metrics.OutcomeError
	}
}

// call resolves the processor, runs fn and records the outcome.
func (s *paymentService) call(ctx context.Context, provider payment.Provider, op string, fn func(p payment.Processor) error) error {
	p, err := s.processors.Get(provider)
	if err != nil {
		return &PaymentError{Provider: provider, Operation: op, Err: err}
	}
	start := time.Now()
	err = fn(p)
	s.metrics.ObservePayment(string(provider), op, outcomeOf(err), time.Since(start))
	if err != nil {
		slog.Warn("payment call failed", "provider", provider, "operation", op, "error", err)
		return &PaymentError{Provider: provider, Operation: op, Err: err}
	}
	return nil
}

func (s *paymentService) CreateOrder(ctx context.Context, provider payment.Provider, amount int64, currency, description string) (*payment.Order, error) {
	var o *payment.Order
	err := s.call(ctx, provider, "order", func(p payment.Processor) (err error) {
		o, err = p.CreateOrder(ctx, amount, currency, description)
		return err
	})
	return o, err
}

func (s *paymentService) Capture(ctx context.Context, provider payment.Provider, orderID string) (*payment.Capture, error) {
	var c *payment.Capture
	err := s.call(ctx, provider, "capture", func(p payment.Processor) (err error) {
		c, err = p.CapturePayment(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *paymentService) Charge(ctx context.Context, provider payment.Provider, amount int64, currency, description string) (*payment.Capture, error) {
	o, err := s.CreateOrder(ctx, provider, amount, currency, description)
	if err != nil {
		return nil, err
	}
	return s.Capture(ctx, provider, o.ID)
}

func (s *paymentService) Refund(ctx context.Context, provider payment.Provider, transactionID, idempotencyKey string) (*payment.Refund, error) {
	var r *payment.Refund
	err := s.call(ctx, provider, "refund", func(p payment.Processor) (err error) {
		r, err = p.Refund(ctx, transactionID, idempotencyKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *paymentService) CreateSubscription(ctx context.Context, provider payment.Provider, planID, email, name string) (*payment.Subscription, error) {
	var sub *payment.Subscription
	err := s.call(ctx, provider, "subscription", func(p payment.Processor) (err error) {
		sub, err = p.CreateSubscription(ctx, planID, email, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *paymentService) CancelSubscription(ctx context.Context, provider payment.Provider, subscriptionID string) error {
	return s.call(ctx, provider, "cancel", func(p payment.Processor) error {
		return p.CancelSubscription(ctx, subscriptionID)
	})
}
