package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/kafeventlake/internal/errors"
	pkgstorage "github.com/jittakal/kafeventlake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.ObjectStore = (*GCSStore)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// GCSStore implements storage.ObjectStore for Google Cloud Storage.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	logger  *slog.Logger
	metrics MetricsCollector
}

// clientOptions picks the authentication method: default credentials,
// inline JSON, or a credentials file, in that order of precedence.
func (cfg GCSConfig) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.UseDefaultCredential:
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

// NewGCSStore creates a new Google Cloud Storage object store.
func NewGCSStore(ctx context.Context, cfg GCSConfig, logger *slog.Logger, metrics MetricsCollector) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS store created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"default_credentials", cfg.UseDefaultCredential,
	)

	return &GCSStore{
		client:  client,
		bucket:  cfg.Bucket,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Backend returns "gcs".
func (s *GCSStore) Backend() string { return "gcs" }

// Put uploads body to gs://bucket/key.
func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	startTime := time.Now()
	objectPath := ObjectKey(key)
	uri := fmt.Sprintf("gs://%s/%s", s.bucket, objectPath)

	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = "application/octet-stream"
	}

	n, err := io.Copy(w, body)
	if err != nil {
		w.Close()
		s.storageError("upload")
		return "", &errors.StorageError{Operation: "upload", Path: uri, Err: err}
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		s.storageError("close")
		return "", &errors.StorageError{Operation: "upload", Path: uri, Err: err}
	}

	duration := time.Since(startTime)
	s.logger.Debug("wrote object to GCS",
		"bucket", s.bucket,
		"object", objectPath,
		"bytes_written", n,
		"duration_ms", duration.Milliseconds(),
	)

	if s.metrics != nil {
		s.metrics.IncObjectsWritten("gcs", "success")
		s.metrics.ObserveObjectSize("gcs", float64(n))
		s.metrics.ObserveStorageWriteDuration("gcs", duration.Seconds())
	}
	return uri, nil
}

func (s *GCSStore) storageError(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("gcs", op)
	}
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	s.logger.Info("closing GCS store")
	return s.client.Close()
}
