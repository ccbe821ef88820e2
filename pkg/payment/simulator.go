package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idScheme formats gateway identifiers.
type idScheme struct {
	order, transaction, subscription, refund func() string
}

func compactID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

var stripeIDs = idScheme{
	order:        func() string { return "pi_" + compactID(24) },
	transaction:  func() string { return "ch_" + compactID(24) },
	subscription: func() string { return "sub_" + compactID(24) },
	refund:       func() string { return "re_" + compactID(24) },
}

var paypalIDs = idScheme{
	order:        func() string { return "PAYPAL-" + strings.ToUpper(compactID(17)) },
	transaction:  func() string { return "CAPTURE-" + strings.ToUpper(compactID(17)) },
	subscription: func() string { return "I-" + strings.ToUpper(compactID(12)) },
	refund:       func() string { return "REFUND-" + strings.ToUpper(compactID(17)) },
}

// Simulator is an in-memory Processor. Without a StateStore its state lives
// for the lifetime of the value.
type Simulator struct {
	provider Provider
	ids      idScheme
	latency  Latency
	outcome  Outcome
	now      func() time.Time
	store    StateStore

	mu           sync.Mutex
	loaded       bool
	orders       map[string]*Order
	captures     map[string]*Capture // by order ID
	transactions map[string]*Capture // by transaction ID
	refundsByTx  map[string]*Refund
	refundsByKey map[string]*Refund
	subs         map[string]*Subscription
}

// Option configures a Simulator.
type Option func(*Simulator)

func WithLatency(l Latency) Option { return func(s *Simulator) { s.latency = l } }

func WithOutcome(o Outcome) Option { return func(s *Simulator) { s.outcome = o } }

func newSimulator(p Provider, ids idScheme, opts []Option) *Simulator {
	s := &Simulator{
		provider:     p,
		ids:          ids,
		latency:      DefaultLatency(),
		outcome:      Probability(DefaultSuccessRate, uint64(time.Now().UnixNano())),
		now:          time.Now,
		orders:       make(map[string]*Order),
		captures:     make(map[string]*Capture),
		transactions: make(map[string]*Capture),
		refundsByTx:  make(map[string]*Refund),
		refundsByKey: make(map[string]*Refund),
		subs:         make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStripeSimulator returns a simulator issuing Stripe-style identifiers.
func NewStripeSimulator(opts ...Option) *Simulator {
	return newSimulator(ProviderStripe, stripeIDs, opts)
}

// NewPayPalSimulator returns a simulator issuing PayPal-style identifiers.
func NewPayPalSimulator(opts ...Option) *Simulator {
	return newSimulator(ProviderPayPal, paypalIDs, opts)
}

func (s *Simulator) Provider() Provider { return s.provider }

func (s *Simulator) CreateOrder(ctx context.Context, amount int64, currency, description string) (*Order, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := wait(ctx, s.latency.Order); err != nil {
		return nil, err
	}
	o := &Order{
		ID:          s.ids.order(),
		Provider:    s.provider,
		Amount:      amount,
		Currency:    strings.ToLower(currency),
		Description: description,
		Status:      OrderCreated,
		CreatedAt:   s.now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.orders[o.ID] = o
	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	out := *o
	return &out, nil
}

// settled returns the final result of an order that has already been
// captured or declined. ok is false while the order is still open.
func (s *Simulator) settled(orderID string) (*Capture, bool, error) {
	o, found := s.orders[orderID]
	if !found {
		return nil, true, ErrOrderNotFound
	}
	switch o.Status {
	case OrderCaptured:
		cp := *s.captures[orderID]
		return &cp, true, nil
	case OrderDeclined:
		return nil, true, fmt.Errorf("%s capture %s: %w", s.provider, orderID, ErrDeclined)
	}
	return nil, false, nil
}

// CapturePayment settles an order. A settled order keeps its first result.
func (s *Simulator) CapturePayment(ctx context.Context, orderID string) (*Capture, error) {
	s.mu.Lock()
	if err := s.ensureLoaded(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	c, ok, err := s.settled(orderID)
	s.mu.Unlock()
	if ok {
		return c, err
	}

	if err := wait(ctx, s.latency.Capture); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 待機中に別リクエストが確定させた場合はその結果を返す
	if c, ok, err := s.settled(orderID); ok {
		return c, err
	}
	o := s.orders[orderID]
	if !s.outcome.Succeed() {
		o.Status = OrderDeclined
		if err := s.persist(ctx); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s capture %s: %w", s.provider, orderID, ErrDeclined)
	}
	o.Status = OrderCaptured
	capture := &Capture{
		OrderID:       orderID,
		TransactionID: s.ids.transaction(),
		Provider:      s.provider,
		Amount:        o.Amount,
		Currency:      o.Currency,
		CapturedAt:    s.now().UTC(),
	}
	s.captures[orderID] = capture
	s.transactions[capture.TransactionID] = capture
	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	out := *capture
	return &out, nil
}

func (s *Simulator) CreateSubscription(ctx context.Context, planID, email, name string) (*Subscription, error) {
	if err := wait(ctx, s.latency.Subscription); err != nil {
		return nil, err
	}
	if !s.outcome.Succeed() {
		return nil, fmt.Errorf("%s subscription %s: %w", s.provider, planID, ErrDeclined)
	}
	sub := &Subscription{
		ID:        s.ids.subscription(),
		PlanID:    planID,
		Email:     email,
		Name:      name,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.subs[sub.ID] = sub
	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	out := *sub
	return &out, nil
}

// Refund reverses a capture. Repeating a refund with the same idempotency
// key returns the original refund.
func (s *Simulator) Refund(ctx context.Context, transactionID, idempotencyKey string) (*Refund, error) {
	s.mu.Lock()
	if err := s.ensureLoaded(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r, ok := s.refundsByKey[idempotencyKey]; ok && idempotencyKey != "" {
		s.mu.Unlock()
		if r.TransactionID != transactionID {
			return nil, ErrIdempotencyKeyReused
		}
		out := *r
		return &out, nil
	}
	_, found := s.transactions[transactionID]
	s.mu.Unlock()
	if !found {
		return nil, ErrTransactionNotFound
	}

	if err := wait(ctx, s.latency.Refund); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.refundsByKey[idempotencyKey]; ok && idempotencyKey != "" && r.TransactionID == transactionID {
		out := *r
		return &out, nil
	}
	if _, ok := s.refundsByTx[transactionID]; ok {
		return nil, ErrAlreadyRefunded
	}
	c := s.transactions[transactionID]
	r := &Refund{
		ID:            s.ids.refund(),
		TransactionID: transactionID,
		Amount:        c.Amount,
		Currency:      c.Currency,
		CreatedAt:     s.now().UTC(),
	}
	s.refundsByTx[transactionID] = r
	if idempotencyKey != "" {
		s.refundsByKey[idempotencyKey] = r
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

func (s *Simulator) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if err := wait(ctx, s.latency.Cancel); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	sub, ok := s.subs[subscriptionID]
	if !ok || !sub.Active {
		return fmt.Errorf("%s cancel %s: %w", s.provider, subscriptionID, ErrSubscriptionNotFound)
	}
	sub.Active = false
	return s.persist(ctx)
}
