package payment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Outcome decides whether a simulated charge succeeds.
type Outcome interface {
	Succeed() bool
}

// OutcomeFunc adapts a function to Outcome.
type OutcomeFunc func() bool

func (f OutcomeFunc) Succeed() bool { return f() }

// Always succeeds.
func Always() Outcome { return OutcomeFunc(func() bool { return true }) }

// Never succeeds.
func Never() Outcome { return OutcomeFunc(func() bool { return false }) }

// DefaultSuccessRate is the success probability used when none is configured.
const DefaultSuccessRate = 0.9

type probability struct {
	mu  sync.Mutex
	p   float64
	rng *rand.Rand
}

// Probability succeeds with probability p using a deterministic source seeded with seed.
func Probability(p float64, seed uint64) Outcome {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &probability{p: p, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (o *probability) Succeed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Float64() < o.p
}

// Latency holds the simulated delay of each gateway call.
type Latency struct {
	Order        time.Duration
	Capture      time.Duration
	Subscription time.Duration
	Refund       time.Duration
	Cancel       time.Duration
}

// DefaultLatency mirrors the delays of a typical hosted checkout.
func DefaultLatency() Latency {
	return Latency{
		Order:        time.Second,
		Capture:      1500 * time.Millisecond,
		Subscription: 2 * time.Second,
		Refund:       time.Second,
		Cancel:       time.Second,
	}
}

// Scale multiplies every delay by f. f <= 0 disables delays.
func (l Latency) Scale(f float64) Latency {
	if f <= 0 {
		return Latency{}
	}
	mul := func(d time.Duration) time.Duration { return time.Duration(float64(d) * f) }
	return Latency{
		Order:        mul(l.Order),
		Capture:      mul(l.Capture),
		Subscription: mul(l.Subscription),
		Refund:       mul(l.Refund),
		Cancel:       mul(l.Cancel),
	}
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
