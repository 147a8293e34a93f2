package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/drivescore/internal/adapters/cache"
	"github.com/okian/drivescore/internal/adapters/http/api"
	"github.com/okian/drivescore/internal/adapters/http/swagger"
	"github.com/okian/drivescore/internal/adapters/llm"
	"github.com/okian/drivescore/internal/adapters/repository"
	app "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/internal/config"
	"github.com/okian/drivescore/internal/domain/questionnaire"
	"github.com/okian/drivescore/internal/domain/session"
	"github.com/okian/drivescore/internal/domain/statistics"
	"github.com/okian/drivescore/pkg/logger"
	"github.com/okian/drivescore/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// HTTP server timeout constants. The write timeout leaves room for the
// collaborator budget on submit.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 75 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, closeStores, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newHandler mounts the API docs and business routes behind CORS.
func newHandler(svc *app.Service) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, api.WithLogger(logger.Named("api"))).Register(mux)
	return api.CORS(mux)
}

// buildService wires the stores and collaborator named by cfg. The returned
// func releases connections the service does not own.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, func(), error) {
	results, err := resultStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	sessions, closeSessions, err := sessionStore(ctx, cfg)
	if err != nil {
		_ = results.Close()
		return nil, nil, err
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithQuestionnaire(questionnaire.NewFileProvider(cfg.Path(cfg.QuestionnairePath))),
		app.WithResultStore(results),
		app.WithSessionStore(sessions),
		app.WithStatisticsPersister(statisticsStore(cfg)),
	}
	if cfg.LLMAPIKey != "" {
		opts = append(opts, app.WithAnalyzer(llm.NewClient(cfg.LLMAPIKey,
			llm.WithBaseURL(cfg.LLMBaseURL),
			llm.WithModel(cfg.LLMModel),
			llm.WithTemperature(cfg.LLMTemperature),
			llm.WithTimeout(cfg.LLMTimeout()),
		)))
	} else {
		log.Warn(ctx, "llm_api_key not set; analyses use the built-in fallback")
	}

	log.Info(ctx, "stores configured",
		logger.String("results_backend", cfg.ResultsBackend),
		logger.String("session_backend", cfg.SessionBackend),
	)
	return app.New(opts...), closeSessions, nil
}

func resultStore(ctx context.Context, cfg *config.Config) (repository.ResultStore, error) {
	switch cfg.ResultsBackend {
	case config.BackendSQLite:
		store, err := repository.NewResultSQLite(ctx, cfg.Path(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite results: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		return repository.NewResultMemory(), nil
	default:
		return repository.NewResultFiles(cfg.Path(cfg.ResultsDir)), nil
	}
}

func statisticsStore(cfg *config.Config) statistics.Persister {
	if cfg.ResultsBackend == config.BackendMemory {
		return repository.NewStatisticsMemory()
	}
	return repository.NewStatisticsFile(cfg.Path(cfg.StatisticsPath))
}

func sessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.SessionBackend != config.BackendRedis {
		return session.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	return cache.NewSessionStore(client, cache.WithTTL(cfg.SessionTTL())), func() { _ = client.Close() }, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater keeps the active session gauge current.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	n, err := svc.ActiveSessions(ctx)
	if err != nil {
		logger.Get().Debug(ctx, "counting sessions failed", logger.Error(err))
		return
	}
	metrics.UpdateActiveSessions(n)
}
