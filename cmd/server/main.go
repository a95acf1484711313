package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spotbot/internal/auth"
	"github.com/spotbot/internal/config"
	"github.com/spotbot/internal/handler"
	"github.com/spotbot/internal/kafka"
	"github.com/spotbot/internal/metrics"
	"github.com/spotbot/internal/notify"
	"github.com/spotbot/internal/postgres"
	"github.com/spotbot/internal/redis"
	"github.com/spotbot/internal/service"
	"github.com/spotbot/internal/sqlite"
	"github.com/spotbot/internal/storage"
	"github.com/spotbot/internal/websocket"
	"github.com/spotbot/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	anchor, err := cfg.Season.AnchorTime()
	if err != nil {
		logger.Error("invalid season configuration", "error", err)
		os.Exit(1)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
	}

	// WebSocket hub doubles as the in-process announcement sink
	wsHub := websocket.NewHub(logger)
	wsHub.SetMetrics(recorder)
	go wsHub.Run()

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger), wsHub}
	var announcer *notify.KafkaNotifier
	if cfg.Kafka.Enabled && cfg.Kafka.AnnounceTopic != "" {
		announcer, err = notify.NewKafkaNotifier(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka announcer, continuing without it", "error", err)
		} else {
			notifiers = append(notifiers, announcer)
			defer announcer.Close()
		}
	}

	clock := service.NewSeasonClock(anchor, cfg.Season.LengthDays, time.Now)
	engine := service.NewEngine(
		clock,
		service.NewLedger(store, clock, &cfg.Leaderboard, logger),
		service.NewBonusAssigner(seededSource()),
		service.NewRing(store, seededSource(), time.Now, logger),
		notify.NewFanout(notifiers...),
		logger,
	)
	engine.SetMetrics(recorder)

	httpHandler := handler.NewHandler(engine, wsHub, auth.NewAllowList(cfg.Auth.AdminIDs), logger)
	httpHandler.AddReadinessCheck("store", store.Ping)
	if recorder != nil {
		httpHandler.SetMetrics(recorder, cfg.Metrics.Path)
	}

	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		cache, err := redis.NewCache(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, bonus pairs will not survive restarts", "error", err)
		} else {
			defer cache.Close()
			engine.SetCache(cache)
			httpHandler.AddReadinessCheck("redis", cache.Ping)
		}
	}

	scheduler := worker.NewScheduler(engine, clock, &cfg.Scheduler, logger)
	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// Kafka consumer for inbound chat events
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		dispatcher := kafka.NewDispatcher(engine, recorder, logger)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, dispatcher, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "season_id", clock.CurrentSeasonID())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := scheduler.Stop(); err != nil {
		logger.Error("failed to stop scheduler", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	wsHub.Stop()

	logger.Info("server stopped")
}

// openStore connects the configured backend and prepares its schema
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		logger.Info("opening SQLite store", "path", cfg.SQLite.Path)
		return sqlite.Open(cfg.SQLite.Path)
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func seededSource() mrand.Source {
	var seed [16]byte
	_, _ = rand.Read(seed[:])
	return mrand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))
}
