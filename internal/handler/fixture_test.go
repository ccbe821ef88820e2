package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/internal/service"
	"github.com/athena-pocket/backend/internal/storage"
	"github.com/athena-pocket/backend/pkg/auth"
	"github.com/athena-pocket/backend/pkg/payment"
)

// services は in-memory storage とゼロ遅延の決済シミュレータで組み立てたサービス群
type services struct {
	approve       *atomic.Bool
	ledger        *repository.KVLedgerRepository
	payments      service.PaymentService
	donations     service.DonationService
	badges        service.BadgeService
	subscriptions service.SubscriptionService
	blog          service.BlogService
}

func newServices(t *testing.T) *services {
	t.Helper()
	approve := &atomic.Bool{}
	approve.Store(true)
	opts := []payment.Option{payment.WithLatency(payment.Latency{}), payment.WithOutcome(payment.OutcomeFunc(approve.Load))}
	payments := service.NewPaymentService(payment.Processors{
		payment.ProviderStripe: payment.NewStripeSimulator(opts...),
		payment.ProviderPayPal: payment.NewPayPalSimulator(opts...),
	}, nil)

	store := storage.NewMemoryStorage()
	ledger := repository.NewKVLedgerRepository(store)
	return &services{
		approve:       approve,
		ledger:        ledger,
		payments:      payments,
		donations:     service.NewDonationService(ledger, ledger.Donations(), payments, nil),
		badges:        service.NewBadgeService(ledger.Donations()),
		subscriptions: service.NewSubscriptionService(repository.NewKVPlanRepository(store, model.DefaultPlans), repository.NewKVSubscriptionRepository(store), payments, nil),
		blog:          service.NewBlogService(repository.NewKVBlogRepository(store)),
	}
}

func (s *services) seedGoal(t *testing.T, target int64) *model.DonationGoal {
	t.Helper()
	g, err := s.donations.CreateGoal(context.Background(), service.GoalInput{
		Title:        "Community server",
		TargetAmount: target,
		Currency:     "usd",
		Deadline:     time.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed goal: %v", err)
	}
	return g
}

// serve はリクエストを mux に流す。userID が空でなければ認証済みとして扱う
func serve(mux http.Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]any](t, rec)["error"].(string)
}
