package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/availability"
	"courtbook/internal/catalog"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/export"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/mq"
	"courtbook/internal/repository"
	"courtbook/internal/service"
	"courtbook/internal/slots"
	"courtbook/internal/timeutil"
	"courtbook/internal/worker"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	provider := buildCatalog(cfg)
	operating, err := timeutil.ParseWindow(cfg.Booking.OpenTime, cfg.Booking.CloseTime)
	if err != nil {
		return fmt.Errorf("invalid operating hours: %w", err)
	}

	clock := timeutil.RealClock{Location: cfg.Location()}
	checker := availability.NewChecker(provider, db)
	generator := slots.NewGenerator(checker, clock, cfg.Booking.SlotGranularityMin, operating)

	eventBus := events.NewEventBus()

	bookings, err := service.NewBookingService(
		db, provider, checker, generator, eventBus,
		cfg.Booking.Atomicity, cfg.Booking.WaitlistTTL(), clock, &logger,
	)
	if err != nil {
		return fmt.Errorf("init booking service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher := initPublisher(cfg, eventBus, &logger)
	if publisher != nil {
		defer publisher.Close()
	}

	rateLimits := initRateLimits(cfg, &logger)

	sweeper := worker.NewExpirySweeper(bookings, cfg.Booking.SweepInterval(), worker.DefaultRetryPolicy(), &logger)
	go sweeper.Start(ctx)

	exporter := export.NewExporter(db, provider, cfg.Exports.Path)

	server := api.NewServer(cfg.API, bookings, provider, exporter, rateLimits, cfg.Monitoring.PrometheusEnabled, &logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info().Msg("server stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func buildCatalog(cfg *config.Config) catalog.Provider {
	static := catalog.NewStaticProvider(cfg.Courts, cfg.Equipment, cfg.Coaches, cfg.PricingRules)
	if ttl := cfg.Booking.CatalogCacheTTL(); ttl > 0 {
		return catalog.NewCachedProvider(static, ttl)
	}
	return static
}

func initPublisher(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *mq.Publisher {
	if !cfg.AMQP.Enabled || cfg.AMQP.URL == "" {
		return nil
	}

	publisher, err := mq.NewPublisher(cfg.AMQP, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp connection failed, continuing without queue")
		return nil
	}

	publisher.Bind(bus)
	logger.Info().Str("queue", cfg.AMQP.Queue).Msg("amqp connected")
	return publisher
}

func initRateLimits(cfg *config.Config, logger *zerolog.Logger) repository.RateLimitRepository {
	memory := repository.NewMemoryRateLimitRepository()
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-memory rate limits")
		_ = repository.Close(client)
		return memory
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return repository.NewFailoverRateLimitRepository(repository.NewRedisRateLimitRepository(client), memory, logger)
}
