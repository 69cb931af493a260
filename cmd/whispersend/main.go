package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/whispersend/backend/internal/api"
	"github.com/whispersend/backend/internal/auth"
	"github.com/whispersend/backend/internal/cache"
	"github.com/whispersend/backend/internal/catalog"
	"github.com/whispersend/backend/internal/client"
	"github.com/whispersend/backend/internal/config"
	"github.com/whispersend/backend/internal/ledger"
	"github.com/whispersend/backend/internal/migrations"
	"github.com/whispersend/backend/internal/refund"
	"github.com/whispersend/backend/internal/scheduler"
	"github.com/whispersend/backend/internal/service"
)

const maxRefundBackoff = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("whispersend stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("whispersend starting",
		"addr", cfg.Server.Address,
		"ledger", ledgerKind(cfg),
		"redis", cfg.Redis.Enabled,
		"refund_interval", cfg.Refunds.Interval,
	)

	led, store, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	kv, queue, closeRedis, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	sender, err := service.NewSender(
		led,
		client.NewWebhookClient(cfg.Webhook.URL, cfg.Webhook.Timeout),
		kv,
		queue,
		service.SenderConfig{
			TextMax:        cfg.Messages.TextMax,
			AliasMax:       cfg.Messages.AliasMax,
			InflightTTL:    cfg.Messages.InflightTTL,
			SignOutDelay:   cfg.Auth.SignOutDelay,
			RefundAttempts: uint64(cfg.Refunds.InlineAttempts),
			RefundBase:     cfg.Refunds.InlineBase,
		},
	)
	if err != nil {
		return err
	}

	worker, err := refund.NewWorker(queue, led, refund.WorkerConfig{
		BatchSize:   cfg.Refunds.BatchSize,
		MaxAttempts: cfg.Refunds.MaxAttempts,
		BaseDelay:   cfg.Refunds.Interval,
		MaxDelay:    maxRefundBackoff,
	}, ledger.IsPermanent)
	if err != nil {
		return err
	}

	sched, err := scheduler.New("refunds", cfg.Refunds.Interval, worker.Tick)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	h := api.NewHandler(api.Deps{
		Sender:   sender,
		Reader:   service.NewReader(led, time.Local),
		Verifier: auth.NewVerifier([]byte(cfg.Auth.JWTSecret), kv).WithIdleTimeout(kv, cfg.Auth.IdleTimeout),
		Catalog:  store,
		Refunds:  queue,
		Worker:   sched,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// openLedger returns a nil catalog store in hosted-backend mode.
func openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, catalog.Store, func(), error) {
	if cfg.Ledger.UsesBaaS() {
		return ledger.NewBaaSLedger(cfg.Ledger.BaaSURL, cfg.Ledger.BaaSAPIKey, cfg.Ledger.Timeout), nil, func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.Ledger.PostgresURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.Ledger.Timeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}

	closeFn := func() {
		if err := db.Close(); err != nil {
			slog.Error("postgres close failed", "err", err)
		}
	}
	return ledger.NewPostgresLedger(db), catalog.NewPostgresStore(db), closeFn, nil
}

type keyValue interface {
	cache.Locker
	cache.Revocations
	cache.Activity
}

func openCache(ctx context.Context, cfg *config.Config) (keyValue, refund.Queue, func(), error) {
	if !cfg.Redis.Enabled {
		slog.Warn("redis disabled: in-flight tokens, sign-outs and queued refunds are kept in memory only")
		return cache.NewMemoryCache(), refund.NewMemoryQueue(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Error("redis close failed", "err", err)
		}
	}
	return cache.NewRedisCache(rdb), refund.NewRedisQueue(rdb), closeFn, nil
}

func ledgerKind(cfg *config.Config) string {
	if cfg.Ledger.UsesBaaS() {
		return "baas"
	}
	return "postgres"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
