package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/meridianpay/risk-engine/internal/api/rest"
	"github.com/meridianpay/risk-engine/internal/domain/values"
	"github.com/meridianpay/risk-engine/internal/infrastructure/cache"
	"github.com/meridianpay/risk-engine/internal/infrastructure/config"
	"github.com/meridianpay/risk-engine/internal/infrastructure/database"
	"github.com/meridianpay/risk-engine/internal/infrastructure/events"
	"github.com/meridianpay/risk-engine/internal/infrastructure/telemetry"
	"github.com/meridianpay/risk-engine/internal/service/fraud"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("risk-engine: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	slog.SetDefault(logger)

	zlog, err := newZapLogger(cfg)
	if err != nil {
		return fmt.Errorf("setup infrastructure logger: %w", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Initialize(ctx, &cfg.Telemetry, cfg.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	pool, err := database.NewPool(ctx, &cfg.Database, zlog)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(&cfg.Redis, zlog)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisCache.Close()

	historyRepo := database.NewHistoryRepository(pool)
	analysisRepo := database.NewAnalysisRepository(pool)
	auditRepo := database.NewAuditRepository(pool, zlog)
	duplicates := cache.NewDuplicateCache(redisCache, zlog)

	bus := events.NewBus(zlog)
	defer bus.Close()

	hub := events.NewHub(bus, fraud.AlertTopic, zlog)
	go hub.Run()
	defer hub.Stop()

	alertFeed, cancelAlerts := bus.Subscribe(fraud.AlertTopic)
	defer cancelAlerts()
	go func() {
		for range alertFeed {
			alertsPublished.Inc()
		}
	}()

	thresholds, err := thresholdsFromConfig(&cfg.Fraud)
	if err != nil {
		return err
	}

	service, err := fraud.NewService(
		thresholds,
		historyRepo,
		duplicates,
		modelFromConfig(&cfg.Fraud),
		auditRepo,
		bus,
		analysisRepo,
		logger,
	)
	if err != nil {
		return fmt.Errorf("assemble fraud service: %w", err)
	}

	handler := rest.NewHandler(service, analysisRepo, logger)
	server := rest.NewServer(cfg, rest.ServerDeps{
		Handler:   handler,
		AlertFeed: hub,
		Extra:     []rest.Middleware{instrumentHTTP()},
	}, logger)

	logger.Info("starting risk engine",
		slog.String("version", cfg.Version),
		slog.String("environment", cfg.Environment),
	)
	return server.Start(ctx)
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// thresholdsFromConfig overlays configured values on the engine defaults.
// Fields the configuration does not expose keep their defaults.
func thresholdsFromConfig(fc *config.FraudConfig) (*fraud.Thresholds, error) {
	highValue, err := values.NewMoneyFromFloat(fc.HighValueAmount, fc.HighValueCurrency)
	if err != nil {
		return nil, fmt.Errorf("fraud.high_value_amount: %w", err)
	}
	minDeposit, err := values.NewMoneyFromFloat(fc.MuleMinDeposit, fc.HighValueCurrency)
	if err != nil {
		return nil, fmt.Errorf("fraud.mule_min_deposit: %w", err)
	}

	t := fraud.DefaultThresholds()
	t.BlockScore = fc.BlockScore
	t.ChallengeScore = fc.ChallengeScore
	t.ReviewScore = fc.ReviewScore
	t.EnhancedChallengeScore = fc.EnhancedChallengeScore
	t.EnhancedReviewScore = fc.EnhancedReviewScore
	t.HighValueAmount = highValue
	t.VelocityWindow = fc.VelocityWindow
	t.VelocityCount = fc.VelocityCount
	t.RapidWindow = fc.RapidWindow
	t.RapidGap = fc.RapidGap
	t.MuleWindow = fc.MuleWindow
	t.MuleRatio = fc.MuleRatio
	t.MuleMinDeposit = minDeposit
	t.MaxTravelSpeedKmh = fc.MaxTravelSpeedKmh
	t.HistoryLookback = fc.HistoryLookback
	t.ModelTimeout = fc.ModelTimeout
	return t, nil
}

func modelFromConfig(fc *config.FraudConfig) fraud.RiskModel {
	if fc.ModelKind == "noop" {
		return fraud.NewNoopModel()
	}
	return fraud.NewHeuristicModel()
}
