package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"github.com/xenking/bookstore-checkout/internal/bookapi"
	"github.com/xenking/bookstore-checkout/internal/checkout"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/handler"
	"github.com/xenking/bookstore-checkout/internal/returns"
	"github.com/xenking/bookstore-checkout/internal/snapshot"
	"github.com/xenking/bookstore-checkout/internal/storage/postgres"
	"github.com/xenking/bookstore-checkout/internal/store"
	"github.com/xenking/bookstore-checkout/pkg/health"
	"github.com/xenking/bookstore-checkout/pkg/httpmiddleware"
)

const serviceName = "bookstore-bff"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("upstream", cfg.Upstream.URL),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Snapshot store: Redis when configured, otherwise process memory.
	var (
		snapStore    store.Store
		limiterStore limiter.Store
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		var err error
		if limiterStore, err = httpmiddleware.NewRedisLimiterStore(rdb); err != nil {
			return errors.Wrap(err, "create rate limit store")
		}
		snapStore = store.NewRedis(rdb, cfg.Snapshot.Retention)
		lg.Info("Using Redis snapshot store", zap.String("redis", cfg.Redis.Addr))
	} else {
		snapStore = store.NewMemory(cfg.Snapshot.Retention)
		lg.Info("Using in-memory snapshot store")
	}
	healthSvc.AddReadinessCheck("store", 2*time.Second, health.PingCheck(snapStore))

	// Quote journal: PostgreSQL when configured.
	var journal order.Journal = order.NopJournal{}
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		journal = postgres.NewJournal(pool)
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
		lg.Info("Quote journal enabled")
	}

	api, err := bookapi.New(cfg.Upstream.URL, bookapi.Options{
		Timeout:        cfg.Upstream.Timeout,
		ReadAttempts:   cfg.Upstream.ReadAttempts,
		RetryBackoff:   cfg.Upstream.RetryBackoff,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create upstream client")
	}

	metrics, err := checkout.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}
	snaps := snapshot.NewSet(snapStore, snapshot.WithMaxAge(cfg.Snapshot.MaxAge))
	h := handler.New(
		checkout.NewService(api, snaps, journal, metrics),
		returns.NewService(api, snaps, journal),
	)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Mount(router, api)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	routeFinder := httpmiddleware.MakeRouteFinder(router)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout submission may wait on a refetch after a rejection.
		WriteTimeout:   3*cfg.Upstream.Timeout + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Store:  limiterStore,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
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
