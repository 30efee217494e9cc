// Worker entry point: consumes franchise lifecycle events and notifies
// owners. Messages that keep failing are parked on the dead-letter topic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	appFranchise "github.com/turtacn/toda-franchise/internal/application/franchise"
	"github.com/turtacn/toda-franchise/internal/config"
	"github.com/turtacn/toda-franchise/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/toda-franchise/internal/interfaces/http/handlers"
)

var version = "dev"

const (
	defaultWorkerConfigPath = "configs/config.yaml"
	defaultHealthAddr       = ":8081"
	drainTimeout            = 30 * time.Second
)

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file")
	healthAddr := flag.String("health-addr", defaultHealthAddr, "listen address for health and metrics")
	ensureTopics := flag.Bool("ensure-topics", false, "create the franchise topics before consuming")
	flag.Parse()

	if err := run(*configPath, *healthAddr, *ensureTopics); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, healthAddr string, ensureTopics bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Messaging.Kafka.Enabled {
		return errors.New("messaging.kafka.enabled is false, nothing to consume")
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	topics := []string{kafka.TopicStatusChanged, kafka.TopicIssued}
	logger.Info("starting franchise worker",
		logging.String("version", version),
		logging.Any("topics", topics),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ensureTopics {
		tm, err := kafka.NewTopicManager(cfg.Messaging.Kafka.Brokers, logger.Named("topics"))
		if err != nil {
			return err
		}
		err = tm.EnsureTopics(ctx, kafka.DefaultTopics())
		tm.Close()
		if err != nil {
			return fmt.Errorf("failed to ensure topics: %w", err)
		}
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:       cfg.Monitoring.Prometheus.Namespace,
		EnableGoMetrics: true,
		ConstLabels:     map[string]string{"service": "worker"},
	}, logger.Named("metrics"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	dlq, err := kafka.NewProducer(cfg.Messaging.Kafka, logger.Named("dlq"))
	if err != nil {
		return fmt.Errorf("failed to create dead-letter producer: %w", err)
	}
	defer dlq.Close()

	consumer, err := kafka.NewConsumer(cfg.Messaging.Kafka, topics, kafka.RetryConfig{
		MaxRetries:      3,
		RetryBackoff:    time.Second,
		MaxRetryBackoff: 10 * time.Second,
	}, dlq, logger.Named("consumer"))
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	handle := appFranchise.StatusEventHandler(appFranchise.NewLogNotifier(logger.Named("notify")), appMetrics, logger)
	for _, t := range topics {
		consumer.Subscribe(t, handle)
	}

	healthSrv := startHealthServer(healthAddr, cfg, collector, appMetrics, logger)

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	logger.Info("consumer started")

	<-ctx.Done()
	logger.Info("received shutdown signal, draining")

	done := make(chan error, 1)
	go func() { done <- consumer.Close() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Error("consumer close error", logging.Err(err))
		}
	case <-time.After(drainTimeout):
		logger.Warn("drain timeout exceeded, forcing exit")
	}

	consumed, processed, deadLettered := consumer.Stats()
	logger.Info("worker stopped",
		logging.Int64("consumed", consumed),
		logging.Int64("processed", processed),
		logging.Int64("dead_lettered", deadLettered),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return healthSrv.Shutdown(shutdownCtx)
}

// startHealthServer exposes liveness, readiness and metrics for the probes.
func startHealthServer(addr string, cfg *config.Config, collector prometheus.MetricsCollector, recorder handlers.HealthRecorder, logger logging.Logger) *http.Server {
	health := handlers.NewHealthHandler(version, logger, recorder)

	r := chi.NewRouter()
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	if cfg.Monitoring.Prometheus.Enabled {
		path := cfg.Monitoring.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, collector.Handler())
	}

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("health server listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}
