// Command bot runs the gift exchange bot: it receives Telegram updates by
// long polling or webhook and serves a health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gift-circle/internal/assign"
	"gift-circle/internal/bot"
	"gift-circle/internal/config"
	"gift-circle/internal/db"
	"gift-circle/internal/logging"
	"gift-circle/internal/relay"
	"gift-circle/internal/server"
	"gift-circle/internal/session"
	"gift-circle/internal/store"
	"gift-circle/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, pinger, closeStore, err := openStore(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, closeSessions, err := openSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	api, err := telegram.Connect(cfg.BotToken)
	if err != nil {
		return err
	}
	logger.Info("telegram connected", zap.String("bot", api.Self.UserName))

	notifier := telegram.NewNotifier(api)
	scheduler := relay.NewScheduler(notifier, logger, relay.WithWindow(cfg.RelayMinDelay, cfg.RelayMaxDelay))
	engine := assign.NewEngine(assign.WithMaxAttempts(cfg.AssignmentMaxAttempts))
	b := bot.New(st, sessions, engine, scheduler, notifier, logger)
	adapter := telegram.NewAdapter(api, b, logger, cfg.MaxConcurrentUpdates)

	serverOpts := server.Options{DB: pinger, Logger: logger, WebhookSecret: cfg.WebhookSecret}
	var updates <-chan tgbotapi.Update
	if cfg.UsesWebhook() {
		ch := make(chan tgbotapi.Update, cfg.MaxConcurrentUpdates)
		serverOpts.Updates = ch
		updates = ch
		if err := telegram.RegisterWebhook(api, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			return err
		}
		logger.Info("receiving updates by webhook")
	} else {
		polled, err := telegram.StartPolling(api)
		if err != nil {
			return err
		}
		updates = polled
		logger.Info("receiving updates by long polling")
	}

	srv := server.New(serverOpts)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	// Shutdown stops the update producer and closes its channel; the adapter
	// then drains whatever was already accepted and returns.
	g.Go(func() error {
		<-gctx.Done()
		if !cfg.UsesWebhook() {
			api.StopReceivingUpdates()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.CloseUpdates()
		return err
	})
	g.Go(func() error {
		return adapter.Run(ctx, updates)
	})

	err = g.Wait()
	if pending := scheduler.Pending(); pending > 0 {
		logger.Warn("relay notifications dropped at shutdown", zap.Int64("pending", pending))
	}
	logger.Info("bot stopped")
	return err
}

// openStore returns the game store and, for database backends, the handle
// the health check pings.
func openStore(cfg config.Database, logger *zap.Logger) (store.Store, server.Pinger, func(), error) {
	if cfg.DBDriver == config.StoreMemory {
		logger.Warn("games are kept in memory and lost on restart")
		return store.NewMemoryStore(), nil, func() {}, nil
	}
	conn, err := db.Open(db.OptionsFrom(cfg))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() { _ = sqlDB.Close() }
	if cfg.DBAutoMigrate {
		if err := db.Migrate(conn); err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("database ready", zap.String("driver", cfg.DBDriver))
	return store.NewGormStore(conn), sqlDB, closeFn, nil
}

func openSessions(ctx context.Context, cfg config.Config, logger *zap.Logger) (session.Store, func(), error) {
	if cfg.SessionBackend == config.SessionRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info("sessions kept in redis", zap.String("addr", cfg.RedisAddr))
		return session.NewRedisStore(rdb, cfg.SessionIdleTTL), func() { _ = rdb.Close() }, nil
	}

	sessions := session.NewMemoryStore()
	sweeper, err := session.StartSweeper(sessions, cfg.SessionSweepSchedule, cfg.SessionIdleTTL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("session sweeper: %w", err)
	}
	return sessions, func() { <-sweeper.Stop().Done() }, nil
}
