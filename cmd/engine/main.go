// Command engine runs the event-driven workflow engine as a standalone
// process: it wires configuration, logging, storage, the driver factory,
// the workflow registry, the dispatcher, and the scheduler together, then
// blocks until SIGINT/SIGTERM.
//
// This is intentionally thin (§1 places the HTTP/TUI surface out of
// scope): it exercises the full stack end to end without providing any
// API of its own beyond a Prometheus /metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synthframe/engine/engine/condition"
	"github.com/synthframe/engine/engine/dispatcher"
	"github.com/synthframe/engine/engine/driver"
	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/infra/cache"
	"github.com/synthframe/engine/engine/metrics"
	"github.com/synthframe/engine/engine/registry"
	"github.com/synthframe/engine/engine/resolver"
	"github.com/synthframe/engine/engine/scheduler"
	"github.com/synthframe/engine/engine/storage"
	"github.com/synthframe/engine/engine/storage/memory"
	"github.com/synthframe/engine/engine/storage/postgres"
	"github.com/synthframe/engine/pkg/config"
	"github.com/synthframe/engine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := config.NewManager()
	cfg, err := mgr.Load(ctx,
		config.NewDefaultProvider(),
		config.NewFileProvider(os.Getenv("ENGINE_CONFIG_FILE")),
		config.NewEnvProvider(),
	)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.Log.Level),
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})
	ctx = logger.ContextWithLogger(ctx, log)

	st, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building storage: %w", err)
	}
	defer closeStorage()

	wfRegistry := registry.New(log.With("component", "registry"))
	evaluator, err := condition.NewCELEvaluator(
		condition.WithCostLimit(cfg.Condition.CostLimit),
		condition.WithCacheSize(cfg.Condition.CacheSize),
	)
	if err != nil {
		return fmt.Errorf("building condition evaluator: %w", err)
	}
	if err := registerReferenceWorkflow(wfRegistry, evaluator); err != nil {
		return fmt.Errorf("registering reference workflow: %w", err)
	}
	res := resolver.New(wfRegistry, log.With("component", "resolver"))
	// The real LLM driver is out of scope (§1); the stub keeps every
	// driver-calling path (workflow bodies, the scheduler's
	// interpretation step) exercised end to end.
	createDriver := driver.NewStubFactory(&driver.StubDriver{})

	promReg := prometheus.NewRegistry()
	mx := metrics.New(promReg)

	eng := dispatcher.New(res, st, createDriver,
		dispatcher.WithConcurrency(cfg.Engine.Concurrency),
		dispatcher.WithLogger(log.With("component", "dispatcher")),
		dispatcher.WithMetrics(mx),
	)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	defer eng.Stop()

	dedupeLock, closeLock, err := buildDedupeLock(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building dedupe lock: %w", err)
	}
	defer closeLock()

	tz, err := time.LoadLocation(cfg.Scheduler.DefaultTZ)
	if err != nil {
		log.Warn("unknown scheduler default timezone, falling back to UTC",
			"timezone", cfg.Scheduler.DefaultTZ, "error", err)
		tz = time.UTC
	}

	sched := scheduler.New(st, createDriver, func(ev event.SystemEvent) { eng.EmitEvent(ev) },
		scheduler.WithLogger(log.With("component", "scheduler")),
		scheduler.WithTimezone(tz),
		scheduler.WithSweepInterval(cfg.Scheduler.SweepInterval),
		scheduler.WithMaxTimerDelay(cfg.Scheduler.MaxTimerDelay),
		scheduler.WithDedupeLock(dedupeLock),
		scheduler.WithMetrics(mx),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	metricsServer := &http.Server{
		Addr:        metricsAddr(),
		Handler:     promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Info("metrics endpoint listening", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	log.Info("engine started", "concurrency", cfg.Engine.Concurrency, "storage", cfg.Storage.Driver)
	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown error", "error", err)
	}
	return nil
}

func metricsAddr() string {
	if addr := os.Getenv("ENGINE_METRICS_ADDR"); addr != "" {
		return addr
	}
	return ":9090"
}

// buildStorage selects the Storage backend named by cfg.Storage.Driver.
// "postgres" applies pending migrations (when AutoMigrate is set) before
// opening the pool; anything else falls back to the in-memory fixture,
// suitable for local runs and demos.
func buildStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	if cfg.Storage.Driver != "postgres" {
		return memory.New(), func() {}, nil
	}

	pgCfg := &postgres.Config{
		ConnString:      cfg.Storage.ConnString,
		Host:            cfg.Storage.Host,
		Port:            cfg.Storage.Port,
		User:            cfg.Storage.User,
		Password:        cfg.Storage.Password,
		DBName:          cfg.Storage.DBName,
		SSLMode:         cfg.Storage.SSLMode,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Storage.ConnMaxIdleTime,
	}
	if cfg.Storage.AutoMigrate {
		if err := postgres.ApplyMigrationsWithLock(ctx, postgres.DSNFor(pgCfg)); err != nil {
			return nil, nil, fmt.Errorf("applying migrations: %w", err)
		}
	}
	store, err := postgres.NewStore(ctx, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	repo := postgres.NewRepo(store.Pool())
	return repo, func() { _ = store.Close(ctx) }, nil
}

// buildDedupeLock wires a Redis-backed LockManager guarding the
// scheduler's dedupe-key cancellation path (§4.6 Dedup) when more than
// one engine process might share the same Postgres-backed storage.
// With the in-memory storage fixture there is only ever one process, so
// no distributed lock is needed.
func buildDedupeLock(ctx context.Context, cfg *config.Config) (cache.LockManager, func(), error) {
	if cfg.Storage.Driver != "postgres" || cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	host, port, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis address %q: %w", cfg.Redis.Addr, err)
	}
	client, err := cache.NewRedis(ctx, &cache.Config{
		Host:     host,
		Port:     port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	lock, err := cache.NewRedisLockManager(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("building lock manager: %w", err)
	}
	return lock, func() { _ = client.Close() }, nil
}
