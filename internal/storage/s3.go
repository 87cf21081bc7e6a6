package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.ObjectStore = (*S3Store)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// S3Store implements storage.ObjectStore for AWS S3 (or any S3-compatible
// endpoint) with multipart uploads and optional server-side encryption.
type S3Store struct {
	uploader    *manager.Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *slog.Logger
	metrics     MetricsCollector
}

// NewS3Store creates a new S3 object store.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) (*S3Store, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	logger.Info("S3 store created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Store{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// Backend returns "s3".
func (s *S3Store) Backend() string { return "s3" }

// Put uploads body to s3://bucket/key.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	startTime := time.Now()
	s3Key := ObjectKey(key)

	input := s.putInput(s3Key, body, contentType)

	result, err := s.uploader.Upload(ctx, input)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncStorageErrors("s3", "upload")
		}
		return "", &errors.StorageError{Operation: "upload", Path: s.uri(s3Key), Err: err}
	}

	duration := time.Since(startTime)
	s.logger.Debug("wrote object to S3",
		"bucket", s.bucket,
		"key", s3Key,
		"location", result.Location,
		"duration_ms", duration.Milliseconds(),
	)

	if s.metrics != nil {
		s.metrics.IncObjectsWritten("s3", "success")
		s.metrics.ObserveStorageWriteDuration("s3", duration.Seconds())
	}
	return s.uri(s3Key), nil
}

func (s *S3Store) putInput(key string, body io.Reader, contentType string) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if s.sseEnabled {
		if s.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(s.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}
	return input
}

func (s *S3Store) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Close closes the S3 store.
func (s *S3Store) Close() error {
	s.logger.Info("closing S3 store")
	return nil
}
