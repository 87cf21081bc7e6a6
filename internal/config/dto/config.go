// Package dto holds the configuration structures decoded by the loader.
package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IngestConfig contains the HTTP ingest API settings. TokenHashes are
// bcrypt hashes of accepted bearer tokens; when empty the API is open.
type IngestConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	TokenHashes    []string `mapstructure:"token_hashes"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	Enabled               bool           `mapstructure:"enabled"`
	BootstrapServers      []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol      string         `mapstructure:"security_protocol"`
	SASLMechanism         string         `mapstructure:"sasl_mechanism"`
	SASLUsername          string         `mapstructure:"sasl_username"`
	SASLPassword          string         `mapstructure:"sasl_password"`
	AWSRegion             string         `mapstructure:"aws_region"`
	TLSInsecureSkipVerify bool           `mapstructure:"tls_insecure_skip_verify"`
	Consumer              ConsumerConfig `mapstructure:"consumer"`
	DLQ                   DLQConfig      `mapstructure:"dlq"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// CatalogConfig contains the table catalog configuration: where table
// metadata lives and where data files are written.
type CatalogConfig struct {
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Tables    TablesConfig    `mapstructure:"tables"`
}

// MetadataConfig selects the metadata store.
type MetadataConfig struct {
	Backend  string         `mapstructure:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite metadata store settings
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL metadata store settings
type PostgresConfig struct {
	URL                    string `mapstructure:"url"`
	MaxConns               int    `mapstructure:"max_conns"`
	MinConns               int    `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// WarehouseConfig contains the data file storage settings
type WarehouseConfig struct {
	Backend     string      `mapstructure:"backend"`
	BasePath    string      `mapstructure:"base_path"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	BucketCount int         `mapstructure:"bucket_count"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// TablesConfig lists the event types whose tables are registered at startup.
type TablesConfig struct {
	EventTypes []string `mapstructure:"event_types"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// PipelineConfig contains normalization settings
type PipelineConfig struct {
	TablePrefix   string            `mapstructure:"table_prefix"`
	ErrorTable    string            `mapstructure:"error_table"`
	StrictFlatten bool              `mapstructure:"strict_flatten"`
	Compression   CompressionConfig `mapstructure:"compression"`
}

// CompressionConfig configures the payload compressor.
type CompressionConfig struct {
	Codec string `mapstructure:"codec"`
	Level int    `mapstructure:"level"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// GracePeriod returns the shutdown grace period.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}

// Validate validates the warehouse backend and format.
func (c *WarehouseConfig) Validate() error {
	var err error
	switch c.Backend {
	case "s3":
		err = c.S3.Validate()
	case "azure":
		err = c.Azure.Validate()
	case "gcs":
		err = c.GCS.Validate()
	case "file":
		err = c.File.Validate()
	default:
		return fmt.Errorf("unsupported warehouse backend: %s", c.Backend)
	}
	if err != nil {
		return err
	}
	if c.Format != "parquet" && c.Format != "avro" {
		return fmt.Errorf("unsupported warehouse format: %s", c.Format)
	}
	if c.BucketCount < 0 {
		return fmt.Errorf("bucket count must not be negative: %d", c.BucketCount)
	}
	return nil
}

// Validate validates the metadata store selection.
func (c *MetadataConfig) Validate() error {
	switch c.Backend {
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		if c.Postgres.URL == "" {
			return fmt.Errorf("postgres url is required")
		}
	default:
		return fmt.Errorf("unsupported metadata backend: %s", c.Backend)
	}
	return nil
}
