package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/api"
	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/usecase"
	"github.com/raidenlabs/inbox-bridge/internal/conf"
	"github.com/raidenlabs/inbox-bridge/internal/data"
	"github.com/raidenlabs/inbox-bridge/internal/infra/driver"
	"github.com/raidenlabs/inbox-bridge/internal/infra/openai"
	"github.com/raidenlabs/inbox-bridge/internal/server"
	"github.com/raidenlabs/inbox-bridge/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := conf.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if os.Getenv("DEBUG") == "true" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OpenAI.APIKey == "" {
		logger.Fatal("OPENAI_API_KEY is required")
	}

	// Storage
	settingsRepo, err := data.NewSettingsRepo(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open settings store", zap.Error(err))
	}
	defer settingsRepo.Close()

	messageRepo, err := data.NewMessageRepo(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open message store", zap.Error(err))
	}
	defer messageRepo.Close()

	rateLimitRepo, err := data.NewRateLimitRepo(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open rate limit store", zap.Error(err))
	}
	defer rateLimitRepo.Close()

	profileRepo, err := data.NewProfileRepo(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open profile store", zap.Error(err))
	}
	defer profileRepo.Close()

	// External collaborators
	extractor := driver.NewClient(cfg.Driver.BaseURL, cfg.Driver.WSURL, cfg.Driver.Timeout, logger)
	defer extractor.Close()

	generator := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.Timeout, logger)

	// Usecases
	diffEngine := usecase.NewDiffEngine(cfg.Engine.EphemeralMarkers)
	dedup := usecase.NewDedupTracker(logger)
	tracked := usecase.NewTrackedSet(settingsRepo, logger)

	tiers := usecase.DefaultTierLimits()
	for name, t := range cfg.RateLimit.Tiers {
		tiers[name] = domain.TierLimits{
			Window:      t.Window,
			MaxRequests: t.MaxRequests,
			Cooldown:    t.Cooldown,
		}
	}
	limiter := usecase.NewRateLimiter(rateLimitRepo, tiers, logger)

	replyUC := usecase.NewReplyUsecase(generator, settingsRepo, messageRepo, profileRepo, usecase.DefaultReplyConfig(), logger)
	profileUC := usecase.NewProfileUsecase(generator, profileRepo, logger)

	// Fanout + engine
	hub := server.NewHub(logger)
	guard := service.NewFetchGuard(extractor, cfg.Engine.FetchTimeout, logger)

	engine := service.NewEngine(
		extractor, guard, diffEngine, dedup, tracked, limiter, replyUC, profileUC,
		settingsRepo, messageRepo, hub,
		service.Config{
			Debounce:            cfg.Engine.Debounce,
			HistoryLimit:        cfg.Engine.HistoryLimit,
			StarterHistoryLimit: cfg.Engine.StarterHistoryLimit,
			ProfileHistoryLimit: cfg.Engine.ProfileHistoryLimit,
			SendPause:           cfg.Engine.SendPause,
			Tier:                cfg.RateLimit.Tier,
			StopGrace:           cfg.Engine.StopGrace,
		},
		logger,
	)
	if err := engine.Start(); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}

	apiServer := api.NewServer(engine, settingsRepo, hub, cfg.RateLimit.Tier, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		engine.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		apiServer.Stop(ctx)
	}()

	logger.Info("starting inbox bridge", zap.String("addr", cfg.Server.Addr))
	if err := apiServer.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api server error", zap.Error(err))
	}
}
