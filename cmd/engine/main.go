package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Victor-armando18/service-pricing/internal/api"
	"github.com/Victor-armando18/service-pricing/internal/config"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/cache"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/diff"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/events"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/jsonlogic"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/mysql"
	"github.com/Victor-armando18/service-pricing/internal/interfaces"
	"github.com/Victor-armando18/service-pricing/internal/usecase"
	"github.com/Victor-armando18/service-pricing/internal/usecase/preview"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := cfg.Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("pricing engine stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsonlogic.Register()

	engineCfg, err := cfg.EngineConfig(logger)
	if err != nil {
		return err
	}
	registry := engine.DefaultActionRegistry()
	eng := engine.NewEngine(engineCfg, registry)

	var (
		source interfaces.RuleSource
		store  interfaces.RuleStore
	)
	switch cfg.Rules.Source {
	case config.SourceMySQL:
		db, err := mysql.Open(ctx, cfg.MySQL.DSN, cfg.MySQL.Retries, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := mysql.AutoMigrateRules(ctx, cfg.MySQL.Retries, db); err != nil {
			return err
		}
		repo := mysql.NewRuleRepository(db)
		source, store = repo, repo
	default:
		source = infrastructure.NewFileRuleLoader(cfg.Rules.Dir)
	}

	if cfg.Redis.Addr != "" {
		client := cache.NewRedisClient(cfg.Redis.Addr)
		defer client.Close()
		source = cache.NewRuleCache(source, client, cfg.Redis.TTL, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("rule cache enabled")
	}

	var sink interfaces.ResultSink = events.Discard{}
	if len(cfg.Kafka.Brokers) > 0 {
		writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer writer.Close()
		sink = events.NewKafkaSink(writer)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event publishing enabled")
	}

	pricing := usecase.NewPricingService(source, eng, sink, usecase.PricingOptions{
		DefaultVersion: cfg.Rules.Version,
		Workers:        cfg.Server.BatchWorkers,
		Logger:         logger,
	})
	handler := &api.Handler{
		Pricing:        pricing,
		Buybox:         usecase.NewBuyboxService(cfg.Buybox.Weights, sink, logger),
		Preview:        preview.New(engineCfg, registry, &diff.Differ{}),
		Rules:          store,
		DefaultVersion: cfg.Rules.Version,
		Log:            logger,
	}

	e := newServer(cfg, logger)
	var guard echo.MiddlewareFunc
	if cfg.Server.JWTSecret != "" {
		guard = echojwt.JWT([]byte(cfg.Server.JWTSecret))
	}
	// Endpoints de mutação de regras protegidos por JWT quando há segredo
	handler.Register(e, guard)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Str("rules", cfg.Rules.Source).Msg("pricing engine listening")
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down")
	return e.Shutdown(shutdownCtx)
}

func newServer(cfg config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("requestId", v.RequestID).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/health" },
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.Server.RatePerSecond),
			Burst:     cfg.Server.RateBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	}))
	return e
}
