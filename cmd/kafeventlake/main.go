// Command kafeventlake normalizes JSON events received over HTTP or Kafka
// into per-event-type warehouse tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafeventlake/internal/config"
	"github.com/jittakal/kafeventlake/internal/config/dto"
	"github.com/jittakal/kafeventlake/internal/kafka"
	"github.com/jittakal/kafeventlake/internal/observability"
	"github.com/jittakal/kafeventlake/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" {
		cfgPath = "config/application.yaml"
	}

	cfg, err := config.NewLoader().Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:   cfg.Observability.Logging.Level,
		Format:  cfg.Observability.Logging.Format,
		Output:  cfg.Observability.Logging.Output,
		Service: cfg.Application.Name,
	})
	logger.Info("starting kafeventlake",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"ingest", cfg.Ingest.Enabled,
		"kafka", cfg.Kafka.Enabled,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	a := buildApp(cfg, logger, metrics)
	addCleanup("catalog", a.catalog.Close)

	health := server.NewComponents()
	health.Register("catalog", func(ctx context.Context) error {
		_, err := a.catalog.Catalog(ctx)
		return err
	})

	opsServer := server.NewServer(server.Config{
		HealthPort:     cfg.Observability.Health.Port,
		LivenessPath:   cfg.Observability.Health.LivenessPath,
		ReadinessPath:  cfg.Observability.Health.ReadinessPath,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPort:    cfg.Observability.Metrics.Port,
		MetricsPath:    cfg.Observability.Metrics.Path,
	}, health, registry, logger)
	if err := opsServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ingest *server.IngestServer
	if cfg.Ingest.Enabled {
		ingest = server.NewIngestServer(server.IngestConfig{
			Port:         cfg.Ingest.Port,
			MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
			Timeout:      time.Duration(cfg.Ingest.TimeoutSeconds) * time.Second,
			TokenHashes:  cfg.Ingest.TokenHashes,
		}, a.handler, logger, metrics)
		if err := ingest.Start(); err != nil {
			return fmt.Errorf("failed to start ingest server: %w", err)
		}
	}

	consumeCtx, cancelConsume := context.WithCancel(context.Background())
	defer cancelConsume()

	var wg sync.WaitGroup
	consumeErr := make(chan error, 1)
	if cfg.Kafka.Enabled {
		processor, err := newKafkaProcessor(consumeCtx, cfg, a, logger, metrics, addCleanup)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := processor.Run(consumeCtx); err != nil {
				consumeErr <- err
			}
		}()
	}

	logger.Info("application started successfully")

	select {
	case <-ctx.Done():
		logger.Info("received termination signal")
	case err := <-consumeErr:
		logger.Error("consume error", "error", err)
	}

	logger.Info("initiating graceful shutdown")
	health.MarkStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer cancel()

	if ingest != nil {
		if err := ingest.Shutdown(shutdownCtx); err != nil {
			logger.Error("ingest server shutdown failed", "error", err)
		}
	}

	cancelConsume()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("grace period elapsed before the consumer stopped")
	}

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("application stopped successfully")
	return nil
}

func newKafkaProcessor(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	a *app,
	logger *slog.Logger,
	metrics *observability.Metrics,
	addCleanup func(string, func() error),
) (*kafka.Processor, error) {
	security := kafka.SecurityConfig{
		Protocol:           cfg.Kafka.SecurityProtocol,
		SASLMechanism:      cfg.Kafka.SASLMechanism,
		SASLUsername:       cfg.Kafka.SASLUsername,
		SASLPassword:       cfg.Kafka.SASLPassword,
		AWSRegion:          cfg.Kafka.AWSRegion,
		InsecureSkipVerify: cfg.Kafka.TLSInsecureSkipVerify,
	}

	consumer, err := kafka.NewSaramaConsumer(kafka.ConsumerConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		Security:            security,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	addCleanup("kafka-consumer", consumer.Close)

	processorID := cfg.Application.Name
	if host, err := os.Hostname(); err == nil {
		processorID += "@" + host
	}
	dlq, err := kafka.NewDLQPublisher(cfg.Kafka.BootstrapServers, security, kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
	}, logger, metrics, processorID)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	addCleanup("dlq-publisher", dlq.Close)

	if err := consumer.Subscribe(ctx, cfg.Kafka.Consumer.Topics); err != nil {
		return nil, fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	return kafka.NewProcessor(consumer, a.handler, dlq, logger), nil
}
