package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/alert"
	"github.com/SergeiKhy/url-analytics/internal/config"
	"github.com/SergeiKhy/url-analytics/internal/enrich"
	"github.com/SergeiKhy/url-analytics/internal/handler"
	"github.com/SergeiKhy/url-analytics/internal/maintenance"
	"github.com/SergeiKhy/url-analytics/internal/middleware"
	"github.com/SergeiKhy/url-analytics/internal/queue"
	"github.com/SergeiKhy/url-analytics/internal/repository"
	"github.com/SergeiKhy/url-analytics/internal/service"
	"github.com/SergeiKhy/url-analytics/internal/shortcode"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.String("config", "", "path to a config file (.env, yaml, json); defaults to ./.env")
	rebuild := pflag.Bool("rebuild-rollups", false, "recompute click counts and rollups from raw events and exit")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var alerts alert.Reporter = alert.Nop{}
	if cfg.Sentry.DSN != "" {
		reporter, flush, err := alert.NewSentry(cfg.Sentry.DSN, cfg.App.Env, logger)
		if err != nil {
			logger.Fatal("Failed to init Sentry", zap.Error(err))
		}
		defer flush()
		alerts = reporter
		logger.Info("Sentry alerting enabled")
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := db.Migrate(logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	linkRepo := repository.NewLinkRepository(db)
	clickRepo := repository.NewClickRepository(db)

	deriver, closeGeo := newDeriver(cfg, logger)
	defer closeGeo()

	processor := service.NewClickProcessor(clickRepo, deriver, service.ClickProcessorConfig{
		Workers:         cfg.Aggregator.Workers,
		BufferSize:      cfg.Aggregator.BufferSize,
		MaxRetryElapsed: cfg.Aggregator.MaxRetryElapsed,
	}, alerts, logger)

	if *rebuild {
		if err := processor.RebuildRollups(ctx); err != nil {
			logger.Fatal("Failed to rebuild rollups", zap.Error(err))
		}
		return
	}

	redis, err := repository.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	cacheRepo := repository.NewCacheRepository(redis)

	resolver, err := service.NewResolver(linkRepo, cacheRepo, service.ResolverConfig{
		CodeLength:    cfg.Shortener.CodeLength,
		LocalSize:     cfg.Cache.LocalSize,
		RedisTTL:      cfg.Cache.RedisTTL,
		LookupTimeout: cfg.Resolver.LookupTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create resolver", zap.Error(err))
	}

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		if err := resolver.ListenInvalidations(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Invalidation listener stopped", zap.Error(err))
		}
	}()

	linkService := service.NewLinkService(linkRepo, resolver, shortcode.NewGenerator(cfg.Shortener.CodeLength), service.LinkServiceConfig{
		MaxAttempts:    cfg.Shortener.MaxAttempts,
		BlockedDomains: cfg.Shortener.BlockedDomains,
	}, alerts, logger)
	statsService := service.NewStatsService(linkRepo, clickRepo, logger)

	processor.Start()

	var recorder service.ClickRecorder = processor
	var publisher *queue.KafkaPublisher
	var consumer *queue.KafkaConsumer
	if cfg.Aggregator.Transport == "kafka" {
		if len(cfg.Kafka.Brokers) == 0 {
			logger.Fatal("Kafka transport selected but kafka.brokers is empty")
		}
		publisher = queue.NewKafkaPublisher(cfg.Kafka, logger)
		consumer = queue.NewKafkaConsumer(cfg.Kafka, processor, logger)
		recorder = publisher

		background.Add(1)
		go func() {
			defer background.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Click consumer failed", zap.Error(err))
				alerts.Report(ctx, err, map[string]string{"component": "kafka_consumer"})
			}
		}()
		logger.Info("Kafka click transport enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	retention := maintenance.NewScheduler(logger, clickRepo, cfg.Retention.Schedule, cfg.Retention.Window)
	if err := retention.Start(ctx); err != nil {
		logger.Fatal("Failed to start retention scheduler", zap.Error(err))
	}

	var auth middleware.ChainAuthenticator
	if cfg.Auth.JWTSecret != "" {
		auth = append(auth, middleware.NewJWTAuthenticator(cfg.Auth.JWTSecret))
		logger.Info("JWT authentication enabled")
	}
	if len(cfg.Auth.APIKeys) > 0 {
		auth = append(auth, middleware.NewAPIKeyAuthenticator(cfg.Auth.APIKeys))
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}
	if len(auth) == 0 {
		logger.Warn("No authenticator configured, every /api request will be rejected")
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Close()

	router := handler.NewRouter(linkService, statsService, recorder, auth, rateLimiter, cfg.App.BaseURL, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to flush click publisher", zap.Error(err))
		}
	}
	background.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Warn("Failed to close click consumer", zap.Error(err))
		}
	}
	processor.Stop()

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	return logger
}

// newDeriver uses the MaxMind database when geoip.db_path is set; without it
// every country and city is Unknown.
func newDeriver(cfg *config.Config, logger *zap.Logger) (*enrich.Deriver, func()) {
	if cfg.GeoIP.DBPath == "" {
		return enrich.NewDeriver(nil, nil, logger), func() {}
	}

	geo, err := enrich.OpenMaxMind(cfg.GeoIP.DBPath)
	if err != nil {
		logger.Warn("GeoIP database unavailable, locations disabled", zap.String("path", cfg.GeoIP.DBPath), zap.Error(err))
		return enrich.NewDeriver(nil, nil, logger), func() {}
	}
	logger.Info("GeoIP database loaded", zap.String("path", cfg.GeoIP.DBPath))
	return enrich.NewDeriver(geo, nil, logger), func() { _ = geo.Close() }
}
