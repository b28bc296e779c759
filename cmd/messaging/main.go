package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeventeLantos/delivery-tracker/internal/api"
	"github.com/LeventeLantos/delivery-tracker/internal/channel"
	"github.com/LeventeLantos/delivery-tracker/internal/config"
	"github.com/LeventeLantos/delivery-tracker/internal/model"
	"github.com/LeventeLantos/delivery-tracker/internal/queue"
	"github.com/LeventeLantos/delivery-tracker/internal/repo"
	"github.com/LeventeLantos/delivery-tracker/internal/scheduler"
	"github.com/LeventeLantos/delivery-tracker/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("delivery tracker exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	messages, records, closeDB, err := openStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	retryQueue, closeQueue, err := openQueue(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeQueue()

	gateway := channel.NewHTTPAdapter(cfg.Gateway.URL, cfg.Gateway.Timeout)
	adapter := channel.NewRouter().
		Handle(model.ChannelSMS, gateway).
		Handle(model.ChannelEmail, gateway).
		Handle(model.ChannelPhone, gateway).
		Handle(model.ChannelWebChat, channel.InApp{})

	tracker := service.New(messages, records, retryQueue, adapter, service.Options{
		MaxRetries: cfg.Delivery.MaxRetries,
		Backoff: service.Backoff{
			Initial:    cfg.Delivery.InitialDelay,
			Multiplier: cfg.Delivery.Multiplier,
		},
		AttemptTimeout: cfg.Delivery.AttemptTimeout,
		BatchSize:      cfg.Scheduler.BatchSize,
		Concurrency:    cfg.Scheduler.Concurrency,
		StaleAfter:     cfg.Delivery.StaleAfter,
		ContentMax:     cfg.Delivery.ContentMax,
	})

	if _, err := tracker.Recover(ctx); err != nil {
		return fmt.Errorf("recover pending deliveries: %w", err)
	}

	sched, err := scheduler.New("retry-sweep", cfg.Scheduler.Interval, tracker.Sweep)
	if err != nil {
		return err
	}
	if cfg.Scheduler.AutoStart {
		sched.Start()
	}
	defer sched.Stop()

	slog.Info("delivery tracker starting",
		"addr", cfg.Server.Address,
		"interval", cfg.Scheduler.Interval.String(),
		"batch", cfg.Scheduler.BatchSize,
		"postgres", cfg.Database.PostgresURL != "",
		"redis", cfg.Redis.Enabled,
	)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(api.NewHandler(sched, tracker, cfg.Webhook.Secret))),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return runServer(ctx, srv)
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (repo.MessageRepository, repo.RecordStore, func(), error) {
	if cfg.PostgresURL == "" {
		slog.Warn("POSTGRES_URL not set, delivery records are kept in memory")
		return repo.NewMemoryMessageRepo(), repo.NewMemoryRecordStore(), func() {}, nil
	}

	db, err := repo.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repo.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return repo.NewPostgresMessageRepo(db), repo.NewPostgresRecordStore(db), closeWith(db), nil
}

func openQueue(ctx context.Context, cfg config.RedisConfig) (queue.RetryQueue, func(), error) {
	if !cfg.Enabled {
		return queue.NewMemoryQueue(), func() {}, nil
	}

	rdb, err := queue.NewRedisClient(ctx, cfg.Address, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return queue.NewRedisQueue(rdb, cfg.KeyPrefix), func() { _ = rdb.Close() }, nil
}

func closeWith(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Error("closing database", "err", err)
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
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
