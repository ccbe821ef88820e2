package payment

import (
	"context"
	"fmt"
	"sort"
)

// State is a snapshot of everything a simulator has settled.
type State struct {
	Orders        []*Order        `json:"orders"`
	Captures      []*Capture      `json:"captures"`
	Refunds       []RefundRecord  `json:"refunds"`
	Subscriptions []*Subscription `json:"subscriptions"`
}

// RefundRecord is a refund together with the idempotency key it was issued under.
type RefundRecord struct {
	Refund
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// StateStore persists simulator state so captures can still be refunded
// after a restart.
type StateStore interface {
	// LoadState returns nil, nil when nothing has been saved for p yet.
	LoadState(ctx context.Context, p Provider) (*State, error)
	SaveState(ctx context.Context, p Provider, st *State) error
}

// WithStateStore makes the simulator load its state lazily from store and
// save it after every change.
func WithStateStore(store StateStore) Option { return func(s *Simulator) { s.store = store } }

// ensureLoaded reads the stored state once. Caller holds s.mu.
func (s *Simulator) ensureLoaded(ctx context.Context) error {
	if s.store == nil || s.loaded {
		return nil
	}
	st, err := s.store.LoadState(ctx, s.provider)
	if err != nil {
		return fmt.Errorf("%s load state: %w", s.provider, err)
	}
	if st != nil {
		s.restore(st)
	}
	s.loaded = true
	return nil
}

// persist saves the current state. Caller holds s.mu.
func (s *Simulator) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveState(ctx, s.provider, s.snapshot()); err != nil {
		return fmt.Errorf("%s save state: %w", s.provider, err)
	}
	return nil
}

func (s *Simulator) restore(st *State) {
	for _, o := range st.Orders {
		s.orders[o.ID] = o
	}
	for _, c := range st.Captures {
		s.captures[c.OrderID] = c
		s.transactions[c.TransactionID] = c
	}
	for i := range st.Refunds {
		rec := st.Refunds[i]
		r := rec.Refund
		s.refundsByTx[r.TransactionID] = &r
		if rec.IdempotencyKey != "" {
			s.refundsByKey[rec.IdempotencyKey] = &r
		}
	}
	for _, sub := range st.Subscriptions {
		s.subs[sub.ID] = sub
	}
}

func (s *Simulator) snapshot() *State {
	st := &State{
		Orders:        make([]*Order, 0, len(s.orders)),
		Captures:      make([]*Capture, 0, len(s.captures)),
		Refunds:       make([]RefundRecord, 0, len(s.refundsByTx)),
		Subscriptions: make([]*Subscription, 0, len(s.subs)),
	}
	for _, o := range s.orders {
		st.Orders = append(st.Orders, o)
	}
	for _, c := range s.captures {
		st.Captures = append(st.Captures, c)
	}
	keys := make(map[string]string, len(s.refundsByKey))
	for k, r := range s.refundsByKey {
		keys[r.ID] = k
	}
	for _, r := range s.refundsByTx {
		st.Refunds = append(st.Refunds, RefundRecord{Refund: *r, IdempotencyKey: keys[r.ID]})
	}
	for _, sub := range s.subs {
		st.Subscriptions = append(st.Subscriptions, sub)
	}

	sort.Slice(st.Orders, func(i, j int) bool { return st.Orders[i].CreatedAt.Before(st.Orders[j].CreatedAt) })
	sort.Slice(st.Captures, func(i, j int) bool { return st.Captures[i].CapturedAt.Before(st.Captures[j].CapturedAt) })
	sort.Slice(st.Refunds, func(i, j int) bool { return st.Refunds[i].CreatedAt.Before(st.Refunds[j].CreatedAt) })
	sort.Slice(st.Subscriptions, func(i, j int) bool { return st.Subscriptions[i].CreatedAt.Before(st.Subscriptions[j].CreatedAt) })
	return st
}
