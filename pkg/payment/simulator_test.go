package payment

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instant(o Outcome) []Option {
	return []Option{WithLatency(Latency{}), WithOutcome(o)}
}

func capture(t *testing.T, sim *Simulator, amount int64) *Capture {
	t.Helper()
	ctx := context.Background()
	o, err := sim.CreateOrder(ctx, amount, "usd", "donation")
	require.NoError(t, err)
	c, err := sim.CapturePayment(ctx, o.ID)
	require.NoError(t, err)
	return c
}

func TestSimulator_IDPrefixes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		sim                   *Simulator
		order, tx, sub, refnd string
	}{
		{NewStripeSimulator(instant(Always())...), "pi_", "ch_", "sub_", "re_"},
		{NewPayPalSimulator(instant(Always())...), "PAYPAL-", "CAPTURE-", "I-", "REFUND-"},
	}
	for _, tc := range cases {
		t.Run(string(tc.sim.Provider()), func(t *testing.T) {
			o, err := tc.sim.CreateOrder(ctx, 500, "USD", "test")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(o.ID, tc.order), o.ID)
			assert.Equal(t, "usd", o.Currency)

			c, err := tc.sim.CapturePayment(ctx, o.ID)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(c.TransactionID, tc.tx), c.TransactionID)

			s, err := tc.sim.CreateSubscription(ctx, "basic-monthly", "a@example.com", "A")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(s.ID, tc.sub), s.ID)

			r, err := tc.sim.Refund(ctx, c.TransactionID, "k1")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(r.ID, tc.refnd), r.ID)
		})
	}
}

func TestSimulator_CaptureIsExclusive(t *testing.T) {
	ctx := context.Background()
	sim := NewStripeSimulator(WithLatency(Latency{}), WithOutcome(Probability(0.5, 42)))
	for i := 0; i < 200; i++ {
		o, err := sim.CreateOrder(ctx, 100, "usd", "")
		require.NoError(t, err)
		c, err := sim.CapturePayment(ctx, o.ID)
		if err != nil {
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrDeclined)
			continue
		}
		require.NotNil(t, c)
		assert.NotEmpty(t, c.TransactionID)
	}
}

func TestSimulator_CaptureDoesNotReroll(t *testing.T) {
	ctx := context.Background()
	calls := 0
	flip := OutcomeFunc(func() bool {
		calls++
		return calls == 1
	})
	sim := NewPayPalSimulator(instant(flip)...)
	o, _ := sim.CreateOrder(ctx, 100, "usd", "")

	first, err := sim.CapturePayment(ctx, o.ID)
	require.NoError(t, err)
	second, err := sim.CapturePayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, 1, calls)

	declined := NewStripeSimulator(instant(Never())...)
	o2, _ := declined.CreateOrder(ctx, 100, "usd", "")
	_, err = declined.CapturePayment(ctx, o2.ID)
	assert.ErrorIs(t, err, ErrDeclined)
	_, err = declined.CapturePayment(ctx, o2.ID)
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestSimulator_ConcurrentCaptureSingleTransaction(t *testing.T) {
	ctx := context.Background()
	sim := NewStripeSimulator(WithLatency(Latency{Capture: 5 * time.Millisecond}), WithOutcome(Always()))
	o, _ := sim.CreateOrder(ctx, 100, "usd", "")

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := sim.CapturePayment(ctx, o.ID)
			if err == nil {
				ids[i] = c.TransactionID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.NotEmpty(t, ids[0])
}

func TestSimulator_UnknownOrder(t *testing.T) {
	sim := NewStripeSimulator(instant(Always())...)
	_, err := sim.CapturePayment(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSimulator_CreateOrderRejectsNonPositive(t *testing.T) {
	sim := NewStripeSimulator(instant(Always())...)
	_, err := sim.CreateOrder(context.Background(), 0, "usd", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSimulator_RefundIdempotency(t *testing.T) {
	ctx := context.Background()
	sim := NewStripeSimulator(instant(Always())...)
	c := capture(t, sim, 700)

	r1, err := sim.Refund(ctx, c.TransactionID, "donation-1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), r1.Amount)

	r2, err := sim.Refund(ctx, c.TransactionID, "donation-1")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)

	_, err = sim.Refund(ctx, c.TransactionID, "other-key")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	_, err = sim.Refund(ctx, "ch_missing", "donation-2")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = sim.Refund(ctx, "ch_other", "donation-1")
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
}

func TestSimulator_SubscriptionFailurePath(t *testing.T) {
	ctx := context.Background()
	sim := NewPayPalSimulator(instant(Never())...)
	s, err := sim.CreateSubscription(ctx, "pro-monthly", "a@example.com", "A")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestSimulator_CancelSubscription(t *testing.T) {
	ctx := context.Background()
	sim := NewStripeSimulator(instant(Always())...)
	s, err := sim.CreateSubscription(ctx, "pro-monthly", "a@example.com", "A")
	require.NoError(t, err)

	require.NoError(t, sim.CancelSubscription(ctx, s.ID))
	assert.ErrorIs(t, sim.CancelSubscription(ctx, s.ID), ErrSubscriptionNotFound)
	assert.ErrorIs(t, sim.CancelSubscription(ctx, "sub_missing"), ErrSubscriptionNotFound)
}

func TestSimulator_HonoursContext(t *testing.T) {
	sim := NewStripeSimulator(WithOutcome(Always()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sim.CreateOrder(ctx, 100, "usd", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestProbability_Deterministic(t *testing.T) {
	a := Probability(0.3, 7)
	b := Probability(0.3, 7)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Succeed(), b.Succeed())
	}
	assert.False(t, Probability(0, 1).Succeed())
	assert.True(t, Probability(1, 1).Succeed())
}

func TestLatency_Scale(t *testing.T) {
	l := DefaultLatency().Scale(0.5)
	assert.Equal(t, 750*time.Millisecond, l.Capture)
	assert.Equal(t, Latency{}, DefaultLatency().Scale(0))
}

func TestProcessors_Get(t *testing.T) {
	ps := Processors{ProviderStripe: NewStripeSimulator(instant(Always())...)}
	p, err := ps.Get(ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, p.Provider())
	_, err = ps.Get(ProviderPayPal)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

// jsonStateStore は保存のたびに JSON を通す StateStore
type jsonStateStore struct {
	mu    sync.Mutex
	data  map[Provider][]byte
	saves int
}

func (m *jsonStateStore) LoadState(_ context.Context, p Provider) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[p]
	if !ok {
		return nil, nil
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *jsonStateStore) SaveState(_ context.Context, p Provider, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[Provider][]byte)
	}
	m.data[p] = raw
	m.saves++
	return nil
}

func TestSimulator_StateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := &jsonStateStore{}
	opts := append(instant(Always()), WithStateStore(store))

	first := NewStripeSimulator(opts...)
	c1 := capture(t, first, 700)
	c2 := capture(t, first, 300)
	r1, err := first.Refund(ctx, c1.TransactionID, "donation-1")
	require.NoError(t, err)
	sub, err := first.CreateSubscription(ctx, "pro-monthly", "a@example.com", "A")
	require.NoError(t, err)
	assert.Greater(t, store.saves, 0)

	second := NewStripeSimulator(opts...)

	// 再起動後も同じキーの返金は元の返金を返す
	again, err := second.Refund(ctx, c1.TransactionID, "donation-1")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, again.ID)

	_, err = second.Refund(ctx, c1.TransactionID, "donation-9")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	r2, err := second.Refund(ctx, c2.TransactionID, "donation-2")
	require.NoError(t, err)
	assert.Equal(t, int64(300), r2.Amount)

	// 確定済みの注文は再キャプチャしても同じ取引を返す
	c1again, err := second.CapturePayment(ctx, c1.OrderID)
	require.NoError(t, err)
	assert.Equal(t, c1.TransactionID, c1again.TransactionID)

	require.NoError(t, second.CancelSubscription(ctx, sub.ID))

	third := NewStripeSimulator(opts...)
	assert.ErrorIs(t, third.CancelSubscription(ctx, sub.ID), ErrSubscriptionNotFound)
	_, err = third.Refund(ctx, c2.TransactionID, "donation-3")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
}

func TestSimulator_StateIsPerProvider(t *testing.T) {
	ctx := context.Background()
	store := &jsonStateStore{}
	stripe := NewStripeSimulator(append(instant(Always()), WithStateStore(store))...)
	c := capture(t, stripe, 500)

	paypal := NewPayPalSimulator(append(instant(Always()), WithStateStore(store))...)
	_, err := paypal.Refund(ctx, c.TransactionID, "k")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
