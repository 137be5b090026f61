package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/adapter/i18n"
	"github.com/escalopa/mushaf-overlay/internal/adapter/quranapi"
	"github.com/escalopa/mushaf-overlay/internal/adapter/redis"
	"github.com/escalopa/mushaf-overlay/internal/adapter/sqlite"
	"github.com/escalopa/mushaf-overlay/internal/adapter/telegram"
	"github.com/escalopa/mushaf-overlay/internal/application"
	"github.com/escalopa/mushaf-overlay/internal/compositor"
	"github.com/escalopa/mushaf-overlay/internal/config"
	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
	"github.com/escalopa/mushaf-overlay/internal/viewport"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateBot(); err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	i18nService, err := i18n.NewI18n(cfg.App.LocalesDir)
	if err != nil {
		return err
	}

	palette, err := compositor.NewPalette(cfg.Palette)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}

	index, err := pageindex.Default()
	if err != nil {
		return err
	}
	index = index.WithLogger(logger)

	client, err := redis.Connect(cfg.Redis.URI)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("redis connected")

	text := redis.NewCachedTextSource(
		client,
		quranapi.NewTextClient(cfg.TextAPI.BaseURL, quranapi.WithTimeout(cfg.TextAPI.Timeout)),
		cfg.Redis.TTL,
		logger,
	)

	deps := application.Deps{
		Index:       index,
		Source:      text,
		Palette:     palette,
		LoadTimeout: cfg.App.LoadTimeout,
	}

	switch cfg.Store.Driver {
	case config.DriverAPI:
		deps.Store = quranapi.NewHighlightClient(cfg.QuranAPI.BaseURL, cfg.QuranAPI.APIKey)
	default:
		store, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(context.Background()); err != nil {
			return err
		}
		deps.Store = store
		deps.Annotations = store
	}
	logger.Info("highlight store ready", zap.String("driver", cfg.Store.Driver))

	service := application.NewMushafService(deps, redis.NewSessionStore(client, cfg.Redis.TTL),
		application.WithServiceLogger(logger),
		application.WithDefaultScript(domain.ScriptID(cfg.App.DefaultScript)),
		application.WithDefaultLanguage(domain.Language(cfg.App.DefaultLanguage)),
		application.WithSessionOptions(
			application.WithLogger(logger),
			application.WithPrefetch(cfg.App.Prefetch),
			application.WithTracker(
				viewport.WithThreshold(cfg.Viewport.Threshold),
				viewport.WithGrace(cfg.Viewport.Grace),
				viewport.WithJumpSettle(cfg.Viewport.JumpSettle),
			),
		),
	)

	bot, err := telegram.NewBot(cfg.Telegram.Token, service, i18nService, logger)
	if err != nil {
		return err
	}

	return serve(bot, logger)
}

// serve runs the bot until it fails or the process is asked to stop
func serve(bot domain.BotPort, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting bot")
		if err := bot.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("received shutdown signal, stopping bot")
		cancel()
		if err := bot.Stop(); err != nil {
			logger.Error("stop bot", zap.Error(err))
		}
	case err := <-errChan:
		logger.Error("bot error", zap.Error(err))
		return err
	}

	logger.Info("bot stopped")
	return nil
}
