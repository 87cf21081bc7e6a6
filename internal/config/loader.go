// Package config loads the service configuration from a YAML file and
// APP_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/kafeventlake/internal/config/dto"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only values containing ${...} are expanded.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafeventlake")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Ingest defaults
	l.v.SetDefault("ingest.enabled", true)
	l.v.SetDefault("ingest.port", 8000)
	l.v.SetDefault("ingest.max_body_bytes", 1<<20)
	l.v.SetDefault("ingest.timeout_seconds", 30)

	// Kafka defaults
	l.v.SetDefault("kafka.enabled", false)
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")

	// Catalog defaults
	l.v.SetDefault("catalog.metadata.backend", "sqlite")
	l.v.SetDefault("catalog.metadata.sqlite.path", "/tmp/kafeventlake/catalog.db")
	l.v.SetDefault("catalog.metadata.postgres.max_conns", 10)
	l.v.SetDefault("catalog.metadata.postgres.min_conns", 1)
	l.v.SetDefault("catalog.metadata.postgres.max_conn_lifetime_minutes", 60)
	l.v.SetDefault("catalog.warehouse.backend", "file")
	l.v.SetDefault("catalog.warehouse.base_path", "warehouse")
	l.v.SetDefault("catalog.warehouse.format", "parquet")
	l.v.SetDefault("catalog.warehouse.bucket_count", 16)
	l.v.SetDefault("catalog.warehouse.file.base_path", "/tmp/kafeventlake/data")
	l.v.SetDefault("catalog.warehouse.s3.use_path_style", false)
	l.v.SetDefault("catalog.warehouse.s3.sse_enabled", true)

	// Pipeline defaults
	l.v.SetDefault("pipeline.table_prefix", "events_")
	l.v.SetDefault("pipeline.error_table", "error_logs")
	l.v.SetDefault("pipeline.strict_flatten", false)
	l.v.SetDefault("pipeline.compression.codec", "gzip")
	l.v.SetDefault("pipeline.compression.level", 6)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if !config.Ingest.Enabled && !config.Kafka.Enabled {
		return errors.New("at least one of ingest.enabled or kafka.enabled must be true")
	}

	if config.Kafka.Enabled {
		if len(config.Kafka.BootstrapServers) == 0 {
			return errors.New("kafka.bootstrap_servers is required")
		}
		if len(config.Kafka.Consumer.Topics) == 0 {
			return errors.New("kafka.consumer.topics is required")
		}
		if config.Kafka.Consumer.GroupID == "" {
			return errors.New("kafka.consumer.group_id is required")
		}
	}

	if err := config.Catalog.Metadata.Validate(); err != nil {
		return fmt.Errorf("catalog.metadata: %w", err)
	}
	if err := config.Catalog.Warehouse.Validate(); err != nil {
		return fmt.Errorf("catalog.warehouse: %w", err)
	}

	if config.Pipeline.TablePrefix == "" {
		return errors.New("pipeline.table_prefix is required")
	}
	if config.Pipeline.ErrorTable == "" {
		return errors.New("pipeline.error_table is required")
	}
	switch config.Pipeline.Compression.Codec {
	case "gzip", "zstd":
	default:
		return fmt.Errorf("unsupported compression codec: %s", config.Pipeline.Compression.Codec)
	}

	for _, p := range []struct {
		name string
		port int
		used bool
	}{
		{"ingest", config.Ingest.Port, config.Ingest.Enabled},
		{"metrics", config.Observability.Metrics.Port, config.Observability.Metrics.Enabled},
		{"health", config.Observability.Health.Port, true},
	} {
		if p.used && (p.port < 1 || p.port > 65535) {
			return fmt.Errorf("invalid %s port: %d", p.name, p.port)
		}
	}

	return nil
}
