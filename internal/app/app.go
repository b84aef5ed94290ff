// Package app wires the cafe API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/yumyard-cafe/internal/domain/assistant"
	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
	"github.com/xenking/yumyard-cafe/internal/domain/session"
	"github.com/xenking/yumyard-cafe/internal/handler"
	"github.com/xenking/yumyard-cafe/internal/llm"
	"github.com/xenking/yumyard-cafe/internal/storage/postgres"
	redisstore "github.com/xenking/yumyard-cafe/internal/storage/redis"
	"github.com/xenking/yumyard-cafe/pkg/health"
	"github.com/xenking/yumyard-cafe/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Sessions and rate limits live in Redis when configured.
	var (
		sessions session.Store = session.NewMemoryStore()
		limiter  httpmiddleware.Limiter
	)
	if cfg.RedisURL != "" {
		rdb, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		store := redisstore.NewSessionStore(rdb, cfg.SessionTTL)
		sessions = store
		limiter = redisstore.NewRateLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(store))
	} else {
		lg.Warn("No Redis configured, sessions are kept in memory")
	}

	// Repositories.
	menuRepo := postgres.NewMenuRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	tokenRepo := postgres.NewLoginTokenRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	tx := postgres.NewTransactor(pool)

	// Order codes: warm the bloom filter with the codes already issued.
	codes := order.NewCodeGenerator(orderRepo)
	issued, err := orderRepo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list order codes")
	}
	codes.Warm(issued)

	// Order events go through pg_notify so every replica's feed sees them.
	broker := order.NewBroker()
	go func() {
		if err := postgres.Listen(ctx, pool, broker); err != nil {
			lg.Error("Order feed listener stopped", zap.Error(err))
		}
	}()

	// Domain services.
	roles := cfg.Roles()
	customers := customer.NewReconciler(customerRepo, roles)
	orders, err := order.NewService(orderRepo, customers, tx, codes, order.Config{
		Payee:          order.Payee{VPA: cfg.UPI.VPA, Name: cfg.UPI.Name},
		Publisher:      postgres.NewNotifier(pool),
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	menuSvc := menu.NewService(menuRepo)

	signer, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, roles)
	if err != nil {
		return errors.Wrap(err, "create token signer")
	}
	authSvc := auth.NewService(tokenRepo, customers, signer, auth.NewBcryptHasher(0))

	coupons := coupon.DefaultCatalog()
	if cfg.Assistant.APIKey == "" {
		lg.Warn("Assistant API key not set, chat requests will fail")
	}
	assistantSvc := assistant.NewService(
		llm.New(cfg.Assistant, m.TracerProvider()),
		sessions, menuSvc, orders, coupons,
	)

	// HTTP handlers.
	h := handler.New(handler.Config{ExposeLoginCodes: cfg.ExposeLoginCodes}, handler.Deps{
		Menu:      menuSvc,
		Orders:    orders,
		Customers: customers,
		Auth:      authSvc,
		Tokens:    signer,
		Sender:    handler.LogSender{},
		Sessions:  sessions,
		Assistant: assistantSvc,
		Coupons:   coupons,
		Feed:      broker,
	})
	if cfg.ExposeLoginCodes {
		lg.Warn("Login codes are returned in API responses")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// No WriteTimeout: /api/orders/feed is a long-lived stream.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.SessionHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{handler.SessionHeader, httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				Limiter: limiter,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("cafe-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
			h.Authenticate,
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
