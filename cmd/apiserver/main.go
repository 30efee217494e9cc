// API server entry point for the TODA franchise service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appFranchise "github.com/turtacn/toda-franchise/internal/application/franchise"
	"github.com/turtacn/toda-franchise/internal/config"
	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/postgres"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/redis"
	"github.com/turtacn/toda-franchise/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/turtacn/toda-franchise/internal/interfaces/http"
	"github.com/turtacn/toda-franchise/internal/interfaces/http/handlers"
	"github.com/turtacn/toda-franchise/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	rateSheetCacheTTL = 10 * time.Minute
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logging.Sync(logger)
	logger.Info("starting franchise API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("addr", cfg.Server.Addr()),
	)

	cal, err := calendar.Load(cfg.Franchise.Timezone)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Monitoring.Prometheus.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
		ConstLabels:          map[string]string{"service": "apiserver"},
	}, logger.Named("metrics"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	// PostgreSQL
	conn, err := postgres.NewConnection(cfg.Database.Postgres, logger.Named("postgres"))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()
	if cfg.Database.Postgres.AutoMigrate {
		if err := conn.RunMigrations(); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	collector.RegisterDBStats(conn.DB(), cfg.Database.Postgres.DBName)

	franchiseRepo := repositories.NewPostgresFranchiseRepo(conn, logger)
	assocRepo := repositories.NewPostgresAssociationRepo(conn, logger)
	sheetRepo := repositories.NewPostgresRateSheetRepo(conn, logger)

	checkers := []handlers.HealthChecker{&postgresHealthAdapter{conn: conn}}
	var (
		sheets   ratesheet.SheetFinder = sheetRepo
		invalids []appFranchise.Invalidator
		lcOpts   = []appFranchise.Option{
			appFranchise.WithMetrics(appMetrics),
			appFranchise.WithLogger(logger.Named("lifecycle")),
		}
	)

	// Redis: rate sheet cache and transition locks
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(ctx, cfg.Redis, logger.Named("redis"))
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		checkers = append(checkers, &redisHealthAdapter{client: rc})

		cached := appFranchise.NewCachedSheetFinder(sheetRepo, redis.NewRedisCache(rc, logger), rateSheetCacheTTL, appMetrics, logger)
		sheets = cached
		invalids = append(invalids, cached)

		if cfg.Lock.Enabled {
			factory := redis.NewLockFactory(rc, logger,
				redis.WithLockTTL(cfg.Lock.TTL),
				redis.WithRetryDelay(cfg.Lock.RetryDelay),
				redis.WithRetryCount(cfg.Lock.RetryCount),
			)
			lcOpts = append(lcOpts, appFranchise.WithLocker(appFranchise.NewRedisLocker(factory)))
		}
	}

	// Kafka: lifecycle events
	if cfg.Messaging.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Messaging.Kafka, logger.Named("kafka"))
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer producer.Close()
		lcOpts = append(lcOpts, appFranchise.WithPublisher(kafka.NewEventPublisher(producer)))
	}

	window := franchise.Window{
		Before: cfg.Franchise.EnableRenewBeforeExpiryDays,
		After:  cfg.Franchise.EnableRenewAfterExpiryDays,
	}
	machine := approval.NewMachine(cal, approval.Policy{ExpiryAfterApprovalDays: cfg.Franchise.ExpiryAfterApprovalDays})
	franchiseSvc := franchise.NewService(franchiseRepo, assocRepo, machine, cal, window, logger.Named("franchise"))
	sheetSvc := appFranchise.NewRateSheetService(
		ratesheet.NewService(sheetRepo, repositories.NewPostgresUsageChecker(conn), logger.Named("ratesheet")),
		invalids...,
	)
	clock := calendar.SystemClock()

	lifecycle, err := appFranchise.NewLifecycleService(franchiseSvc, ratesheet.NewResolver(sheets, cal), clock, lcOpts...)
	if err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.Server.AllowedOrigins
	}
	routerCfg := httpserver.RouterConfig{
		FranchiseHandler:   handlers.NewFranchiseHandler(lifecycle, franchiseSvc, clock, logger.Named("http")),
		RateSheetHandler:   handlers.NewRateSheetHandler(sheetSvc, logger.Named("http")),
		AssociationHandler: handlers.NewAssociationHandler(assocRepo, logger.Named("http")),
		HealthHandler:      handlers.NewHealthHandler(version, logger, appMetrics, checkers...),
		CORS:               &cors,
		Logging:            middleware.DefaultLoggingConfig(),
		Logger:             logger,
	}
	if cfg.Monitoring.Prometheus.Enabled {
		routerCfg.HTTPMetrics = appMetrics
		routerCfg.MetricsPath = cfg.Monitoring.Prometheus.Path
		routerCfg.MetricsServer = collector.Handler()
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// loadConfig reads the file when it exists and falls back to the
// environment otherwise.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	fmt.Fprintf(os.Stderr, "config file %s not found, reading environment\n", path)
	return config.LoadFromEnv()
}
