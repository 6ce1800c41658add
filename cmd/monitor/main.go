package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/httpapi"
	"github.com/hamed0406/uptimemonitor/internal/incident"
	"github.com/hamed0406/uptimemonitor/internal/logging"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/recorder"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
	"github.com/hamed0406/uptimemonitor/internal/repo/postgres"
	"github.com/hamed0406/uptimemonitor/internal/repo/rediscache"
	"github.com/hamed0406/uptimemonitor/internal/repo/sqlite"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

type store interface {
	repo.TargetSource
	repo.HistoryStore
	repo.IncidentStore
	repo.Pruner
	Add(ctx context.Context, t *domain.Target) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	for i := range cfg.Targets {
		t := cfg.Targets[i]
		if err := st.Add(ctx, &t); err != nil {
			logger.Fatal("seed_target_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		}
	}
	if len(cfg.Targets) > 0 {
		logger.Info("targets_seeded", zap.Int("count", len(cfg.Targets)))
	}

	var history repo.HistoryStore = st
	if cfg.RedisURL != "" {
		cache, err := rediscache.New(ctx, cfg.RedisURL, st, logger)
		if err != nil {
			logger.Warn("redis_unavailable", zap.Error(err))
		} else {
			defer cache.Close()
			history = cache
			logger.Info("redis_cache_enabled")
		}
	}

	var channels notify.Multi
	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		channels = append(channels, s)
	}
	if w := notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Method, cfg.Webhook.Headers, cfg.Webhook.Timeout); w != nil {
		channels = append(channels, w)
	}
	if e := notify.NewEmail(cfg.Email); e != nil {
		channels = append(channels, e)
	}
	if len(channels) == 0 {
		logger.Warn("notify_no_channels")
	}
	dispatcher := notify.NewDispatcher(channels, notify.DispatcherConfig{
		QueueSize: cfg.NotifyQueue,
		Attempts:  cfg.NotifyAttempts,
		Backoff:   time.Second,
		PerMinute: cfg.NotifyRPM,
	}, logger)

	rec := recorder.New(history, cfg.DegradedAfter, logger)
	tracker := incident.NewTracker(st, dispatcher, logger)
	sched := scheduler.New(logger, st, rec, tracker, scheduler.ExecutorFactory(cfg.RetryBackoff), cfg.Tick, cfg.MaxConcurrentChecks)
	janitor := scheduler.NewJanitor(st, scheduler.JanitorConfig{KeepHistory: cfg.KeepHistory, KeepIncidents: cfg.KeepIncidents}, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sched.Run(ctx) }()
	go func() { defer wg.Done(); _ = janitor.Run(ctx) }()

	var srv *http.Server
	if cfg.Addr != "" {
		api := httpapi.NewServer(logger, sched, rec, history, st)
		api.Notify = dispatcher
		srv = &http.Server{Addr: cfg.Addr, Handler: api.Router(120, 60), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("api_listen", zap.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api_listen_error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	wg.Wait()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notify_drain_incomplete", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.StoreSQLite:
		sq, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sq, func() { _ = sq.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}
