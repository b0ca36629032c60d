package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sportsync/internal/api"
	"sportsync/internal/bot"
	"sportsync/internal/cache"
	"sportsync/internal/config"
	"sportsync/internal/database"
	"sportsync/internal/domain"
	"sportsync/internal/events"
	"sportsync/internal/jobs"
	"sportsync/internal/logging"
	"sportsync/internal/metrics"
	"sportsync/internal/notify"
	"sportsync/internal/provider"
	"sportsync/internal/scheduler"
	"sportsync/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(baseLogger, "syncd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database, baseLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer cache.Close(redisClient)
	}

	responseCache := initCache(redisClient, baseLogger)

	client := provider.NewClient(db, responseCache, baseLogger)
	if err := client.Configure(ctx, cfg.Provider); err != nil {
		return err
	}

	syncService := syncer.NewService(client, db, responseCache, cfg.Sync, baseLogger)
	if err := syncService.ApplyActiveLeagues(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to apply active leagues")
	}

	bus := events.NewEventBus(baseLogger)
	tg := initTelegram(cfg, bus, logger, baseLogger)

	engine, err := initEngine(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	queue := jobs.NewQueue(db, engine, bus, cfg.Jobs, baseLogger)
	if n, err := queue.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("job recovery failed")
	} else if n > 0 {
		logger.Info().Int("requeued", n).Msg("pending jobs recovered")
	}

	pool := jobs.NewPool(queue, jobs.NewProcessor(syncService, baseLogger), cfg.Jobs, baseLogger)
	pool.Start(ctx)
	defer pool.Stop()

	if tg != nil && cfg.Notify.Telegram.Commands {
		go bot.NewBot(tg, queue, cfg.Notify.Telegram, baseLogger).Start(ctx)
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(queue, database.NewBackupService(db, cfg.Backup, baseLogger), cfg.Scheduler, cfg.Jobs.RetentionDays, baseLogger)
		if err != nil {
			return err
		}
		sched.PruneRequestLogs(db)
		sched.Start()
		defer sched.Stop()
	}

	go watchConfig(ctx, configPath, client, logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(cfg.API, api.Deps{
			Jobs:     queue,
			Sync:     syncService,
			Provider: client,
			Store:    db,
			Checks:   healthChecks(db, redisClient),
		}, baseLogger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
				stop()
			}
		}()
	}

	logger.Info().
		Str("driver", db.Driver()).
		Bool("redis", redisClient != nil).
		Int("workers", cfg.Jobs.Concurrency).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Msg("sync engine started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	client := cache.NewRedisClient(cfg.Redis)
	if err := cache.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initCache prefers redis and falls back to process memory while redis is
// unreachable.
func initCache(client *redis.Client, logger *zerolog.Logger) domain.Cache {
	memory := cache.NewMemoryCache()
	if client == nil {
		return memory
	}
	return cache.NewFailoverCache(cache.NewRedisCache(client, "sportsync:"), memory, logger)
}

func initEngine(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) (jobs.Engine, error) {
	if client == nil {
		logger.Warn().Msg("redis unavailable, jobs queue is process-local")
		return jobs.NewMemoryEngine(), nil
	}
	return jobs.NewRedisEngine(client, cfg.Jobs.QueuePrefix)
}

// initTelegram connects the bot and subscribes operator alerts. It returns
// nil when telegram is disabled or unreachable.
func initTelegram(cfg *config.Config, bus *events.EventBus, logger, base *zerolog.Logger) *bot.BotWrapper {
	tg := cfg.Notify.Telegram
	if !tg.Enabled {
		return nil
	}
	tgBot, err := bot.Connect(tg.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram disabled")
		return nil
	}
	notify.NewAlerter(tgBot, tg, base).Subscribe(bus)
	logger.Info().Int("chats", len(tg.ChatIDs)).Bool("commands", tg.Commands).Msg("telegram alerts enabled")
	return tgBot
}

func healthChecks(db *database.DB, client *redis.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{"database": db.Ping}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, client) }
	}
	return checks
}

// watchConfig re-applies provider settings when the config file changes.
// Everything else needs a restart.
func watchConfig(ctx context.Context, path string, client *provider.Client, logger *zerolog.Logger) {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		if err := client.Configure(ctx, cfg.Provider); err != nil {
			logger.Error().Err(err).Msg("failed to apply reloaded provider config")
			return
		}
		logger.Info().Msg("provider config reloaded")
	}, func(err error) {
		logger.Warn().Err(err).Msg("config reload skipped")
	})
	if err != nil {
		logger.Warn().Err(err).Msg("config watcher disabled")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
