// Command eventgen sends mock API events to stdout, the ingest API or a
// Kafka topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jittakal/kafeventlake/internal/generator"
	"github.com/jittakal/kafeventlake/internal/kafka"
)

var (
	sinkName    = flag.String("sink", getEnv("EVENTGEN_SINK", "stdout"), "Destination: stdout, http or kafka")
	count       = flag.Int("count", 10, "Number of events to send; 0 runs until interrupted")
	interval    = flag.Duration("interval", 0, "Delay between events")
	seed        = flag.Int64("seed", 0, "Random seed; 0 picks a random sequence")
	eventTypes  = flag.String("event-types", "", "Comma-separated event types to pick from")
	url         = flag.String("url", getEnv("EVENTGEN_URL", "http://localhost:8000/v1/events"), "Ingest API URL (http sink)")
	token       = flag.String("token", os.Getenv("EVENTGEN_TOKEN"), "Bearer token (http sink)")
	brokers     = flag.String("brokers", getEnv("EVENTGEN_BROKERS", "localhost:9092"), "Comma-separated Kafka brokers (kafka sink)")
	topic       = flag.String("topic", getEnv("EVENTGEN_TOPIC", "events"), "Kafka topic (kafka sink)")
	cloudEvents = flag.Bool("cloudevents", false, "Wrap Kafka messages in a CloudEvents envelope")
	logLevel    = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger, err := initLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sink, err := newSink()
	if err != nil {
		logger.Fatal("Failed to create sink", zap.String("sink", *sinkName), zap.Error(err))
	}
	defer sink.Close()

	var opts []generator.Option
	if *seed != 0 {
		opts = append(opts, generator.WithSeed(*seed))
	}
	if *eventTypes != "" {
		opts = append(opts, generator.WithEventTypes(splitList(*eventTypes)...))
	}
	gen := generator.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sent, failed := produce(ctx, gen, sink, *count, *interval, logger)
	logger.Info("Event generation finished",
		zap.String("sink", *sinkName),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
}

// produce sends count events, or until ctx ends when count is zero.
func produce(ctx context.Context, gen *generator.Generator, sink generator.Sink, count int, interval time.Duration, logger *zap.Logger) (sent, failed int) {
	for i := 0; count == 0 || i < count; i++ {
		if ctx.Err() != nil {
			return sent, failed
		}
		e := gen.Event()
		if err := sink.Send(ctx, e); err != nil {
			failed++
			logger.Error("Failed to send event", zap.Any("eventId", e["event_id"]), zap.Error(err))
		} else {
			sent++
			logger.Debug("Sent event", zap.Any("eventId", e["event_id"]), zap.Any("eventType", e["event_type"]))
		}
		if interval > 0 {
			select {
			case <-ctx.Done():
				return sent, failed
			case <-time.After(interval):
			}
		}
	}
	return sent, failed
}

func newSink() (generator.Sink, error) {
	switch *sinkName {
	case "stdout":
		return generator.NewWriterSink(os.Stdout), nil
	case "http":
		return generator.NewHTTPSink(*url, *token, 30*time.Second), nil
	case "kafka":
		producer, err := kafka.NewSyncProducer(splitList(*brokers), kafka.SecurityConfig{
			Protocol:      getEnv("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT"),
			SASLMechanism: os.Getenv("KAFKA_SASL_MECHANISM"),
			SASLUsername:  os.Getenv("KAFKA_SASL_USERNAME"),
			SASLPassword:  os.Getenv("KAFKA_SASL_PASSWORD"),
			AWSRegion:     os.Getenv("AWS_REGION"),
		})
		if err != nil {
			return nil, err
		}
		return generator.NewKafkaSink(producer, *topic, *cloudEvents), nil
	default:
		return nil, fmt.Errorf("unknown sink %q (supported: stdout, http, kafka)", *sinkName)
	}
}

// initLogger builds a zap logger writing to stderr so stdout carries only
// events.
func initLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if level == "debug" {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = parseLogLevel(level)
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}

func parseLogLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
