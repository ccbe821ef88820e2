package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athena-pocket/backend/internal/config"
	"github.com/athena-pocket/backend/internal/handler"
	"github.com/athena-pocket/backend/internal/logging"
	"github.com/athena-pocket/backend/internal/metrics"
	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/internal/service"
	"github.com/athena-pocket/backend/internal/storage"
	"github.com/athena-pocket/backend/pkg/auth"
	"github.com/athena-pocket/backend/pkg/payment"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pingers は複数のバックエンドをまとめてヘルスチェックする
type pingers []repository.DB

func (ps pingers) Ping(ctx context.Context) error {
	for _, p := range ps {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		slog.Warn("using in-memory storage; data is lost on restart")
		return storage.NewMemoryStorage(), func() {}, nil
	case config.StorageRedis:
		s, err := storage.NewRedisStorage(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := storage.NewLocalStorage(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

// repositories は構成に応じて選ばれた永続化層
type repositories struct {
	users         repository.UserRepository
	goals         repository.GoalRepository
	donations     repository.DonationRepository
	plans         repository.PlanRepository
	subscriptions repository.SubscriptionRepository
	blog          repository.BlogRepository
}

// newRepositories は KV ストアを既定とし、pool があればユーザー・台帳・購読を PostgreSQL に置く
func newRepositories(store storage.Storage, pool *pgxpool.Pool) repositories {
	repos := repositories{
		plans: repository.NewKVPlanRepository(store, model.DefaultPlans),
		blog:  repository.NewKVBlogRepository(store),
	}
	if pool != nil {
		ledger := repository.NewPgLedgerRepository(pool)
		repos.users = repository.NewPgUserRepository(pool)
		repos.goals = ledger
		repos.donations = ledger.Donations()
		repos.subscriptions = repository.NewPgSubscriptionRepository(pool)
		return repos
	}
	ledger := repository.NewKVLedgerRepository(store)
	repos.users = repository.NewKVUserRepository(store)
	repos.goals = ledger
	repos.donations = ledger.Donations()
	repos.subscriptions = repository.NewKVSubscriptionRepository(store)
	return repos
}

// newProcessors はゲートウェイ状態を store に保存し、再起動後も返金できるようにする
func newProcessors(cfg *config.Config, store storage.Storage) payment.Processors {
	latency := payment.WithLatency(payment.DefaultLatency().Scale(cfg.PaymentLatencyScale))
	state := payment.WithStateStore(repository.NewKVPaymentStateRepository(store))
	return payment.Processors{
		payment.ProviderStripe: payment.NewStripeSimulator(latency, state,
			payment.WithOutcome(payment.Probability(cfg.PaymentSuccessRate, cfg.PaymentSeed))),
		payment.ProviderPayPal: payment.NewPayPalSimulator(latency, state,
			payment.WithOutcome(payment.Probability(cfg.PaymentSuccessRate, cfg.PaymentSeed+1))),
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("INFO", os.Stderr)
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		logging.Fatal("failed to open storage", "driver", cfg.StorageDriver, "error", err)
	}
	defer closeStore()
	health := pingers{store}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logging.Fatal("failed to connect to database", "error", err)
		}
		defer pool.Close()
		health = append(health, pool)
	}
	repos := newRepositories(store, pool)

	m := metrics.New()
	paymentService := service.NewPaymentService(newProcessors(cfg, store), m)
	authService := service.NewAuthService(repos.users)
	adminUserService := service.NewAdminUserService(repos.users)
	donationService := service.NewDonationService(repos.goals, repos.donations, paymentService, m)
	badgeService := service.NewBadgeService(repos.donations)
	subscriptionService := service.NewSubscriptionService(repos.plans, repos.subscriptions, paymentService, m)
	blogService := service.NewBlogService(repos.blog)

	if cfg.AdminEmail != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPasswordHash); err != nil {
			logging.Fatal("failed to provision admin", "error", err)
		}
	}

	sweeper := &service.Sweeper{Subscriptions: subscriptionService, Blog: blogService, Interval: cfg.SweepInterval}
	go sweeper.Run(ctx)

	sessionSecret := auth.SessionSecretBytes(cfg.SessionSecret)

	// 認証必要エンドポイント
	wrapAuth := func(next http.Handler) http.Handler {
		if cfg.AuthRequired {
			return auth.RequireAuth(sessionSecret)(next)
		}
		return auth.DevAuth(next)
	}
	optionalAuth := auth.OptionalAuth(sessionSecret)
	roles := func(ctx context.Context, userID string) (string, error) {
		if !cfg.AuthRequired && userID == auth.DevUserID {
			return auth.RoleAdmin, nil
		}
		return authService.Role(ctx, userID)
	}
	wrapAdmin := func(next http.Handler) http.Handler {
		return wrapAuth(auth.RequireAdmin(roles)(next))
	}

	h := handler.New(health, cfg.FrontendURL)
	authHandler := handler.NewAuthHandler(authService, handler.AuthConfig{
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		BackendURL:         cfg.BackendURL,
		SessionSecret:      cfg.SessionSecret,
		FrontendURL:        cfg.FrontendURL,
		SecureCookies:      cfg.SecureCookies(),
	})
	providersHandler := handler.NewProvidersHandler(handler.ProvidersConfig{
		Google:      cfg.GoogleEnabled(),
		GitHub:      cfg.GitHubEnabled(),
		EnableEmail: cfg.EnableEmailLogin,
	})
	meHandler := handler.NewMeHandler(authService)
	adminUserHandler := handler.NewAdminUserHandler(adminUserService)
	goalHandler := handler.NewGoalHandler(donationService)
	donationHandler := handler.NewDonationHandler(donationService, badgeService)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	blogHandler := handler.NewBlogHandler(blogService, roles)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	mux.Handle("GET /metrics", m.Handler())

	// 認証
	mux.HandleFunc("GET /api/auth/providers", providersHandler.Providers)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/google/login", authHandler.GoogleLoginURL)
	mux.HandleFunc("GET /api/auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("GET /api/auth/github/login", authHandler.GitHubLoginURL)
	mux.HandleFunc("GET /api/auth/github/callback", authHandler.GitHubCallback)
	mux.Handle("GET /api/me", wrapAuth(http.HandlerFunc(meHandler.Me)))

	// 寄付目標（一覧・詳細は認証不要）
	mux.HandleFunc("GET /api/goals", goalHandler.List)
	mux.HandleFunc("GET /api/goals/{id}", goalHandler.Get)
	mux.HandleFunc("GET /api/goals/{id}/progress", goalHandler.Progress)
	mux.HandleFunc("GET /api/goals/{id}/donors", donationHandler.Donors)
	mux.Handle("POST /api/goals", wrapAdmin(http.HandlerFunc(goalHandler.Create)))
	mux.Handle("PUT /api/goals/{id}", wrapAdmin(http.HandlerFunc(goalHandler.Update)))
	mux.Handle("DELETE /api/goals/{id}", wrapAdmin(http.HandlerFunc(goalHandler.Delete)))

	// 寄付
	mux.Handle("POST /api/goals/{id}/donations", optionalAuth(http.HandlerFunc(donationHandler.Donate)))
	mux.Handle("GET /api/goals/{id}/donations", wrapAdmin(http.HandlerFunc(donationHandler.ListByGoal)))
	mux.Handle("POST /api/admin/donations/{id}/refund", wrapAdmin(http.HandlerFunc(donationHandler.Refund)))
	mux.Handle("GET /api/me/donations", wrapAuth(http.HandlerFunc(donationHandler.Mine)))
	mux.Handle("GET /api/me/badges", wrapAuth(http.HandlerFunc(donationHandler.Badges)))

	// 定期購読
	mux.HandleFunc("GET /api/plans", subscriptionHandler.Plans)
	mux.Handle("GET /api/me/subscriptions", wrapAuth(http.HandlerFunc(subscriptionHandler.List)))
	mux.Handle("POST /api/me/subscriptions", wrapAuth(http.HandlerFunc(subscriptionHandler.Subscribe)))
	mux.Handle("POST /api/me/subscriptions/{id}/cancel", wrapAuth(http.HandlerFunc(subscriptionHandler.Cancel)))
	mux.Handle("POST /api/me/subscriptions/{id}/pause", wrapAuth(http.HandlerFunc(subscriptionHandler.Pause)))
	mux.Handle("POST /api/me/subscriptions/{id}/resume", wrapAuth(http.HandlerFunc(subscriptionHandler.Resume)))
	mux.Handle("PUT /api/me/subscriptions/{id}/plan", wrapAuth(http.HandlerFunc(subscriptionHandler.ChangePlan)))
	mux.Handle("PUT /api/me/subscriptions/{id}/auto-renew", wrapAuth(http.HandlerFunc(subscriptionHandler.SetAutoRenew)))

	// 決済（生のフロー）
	mux.HandleFunc("POST /api/payments/orders", paymentHandler.CreateOrder)
	mux.HandleFunc("POST /api/payments/orders/{id}/capture", paymentHandler.Capture)
	mux.Handle("POST /api/admin/payments/refunds", wrapAdmin(http.HandlerFunc(paymentHandler.Refund)))

	// ブログ
	mux.Handle("GET /api/posts", optionalAuth(http.HandlerFunc(blogHandler.List)))
	mux.HandleFunc("GET /api/posts/search", blogHandler.Search)
	mux.Handle("GET /api/posts/{slug}", optionalAuth(http.HandlerFunc(blogHandler.Get)))
	mux.Handle("POST /api/posts", wrapAdmin(http.HandlerFunc(blogHandler.Create)))
	mux.Handle("PUT /api/posts/{id}", wrapAdmin(http.HandlerFunc(blogHandler.Update)))
	mux.Handle("DELETE /api/posts/{id}", wrapAdmin(http.HandlerFunc(blogHandler.Delete)))
	mux.Handle("POST /api/posts/{id}/view", optionalAuth(http.HandlerFunc(blogHandler.View)))
	mux.Handle("POST /api/posts/{id}/vote", wrapAuth(http.HandlerFunc(blogHandler.Vote)))

	// Admin routes
	mux.Handle("GET /api/admin/users", wrapAdmin(http.HandlerFunc(adminUserHandler.List)))
	mux.Handle("PATCH /api/admin/users/{id}/verify", wrapAdmin(http.HandlerFunc(adminUserHandler.Verify)))

	rateLimiter := handler.NewRateLimiter(ctx, cfg.RateLimitRPM)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.RequestLogger(m)(handler.SecurityHeaders(h.CORS(rateLimiter.Middleware(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// 決済シミュレータの遅延を含むため長めに取る
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "storage", cfg.StorageDriver, "postgres", pool != nil, "auth_required", cfg.AuthRequired)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
