package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.ObjectStore = (*AzureStore)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// connectionString builds an account-key connection string, pointing at
// Endpoint when set (e.g. Azurite) and at the public cloud otherwise.
func (cfg AzureConfig) connectionString() string {
	if cfg.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		cfg.AccountName, cfg.AccountKey)
}

// AzureStore implements storage.ObjectStore for Azure Blob Storage.
type AzureStore struct {
	client        *azblob.Client
	containerName string
	logger        *slog.Logger
	metrics       MetricsCollector
}

// NewAzureStore creates a new Azure Blob object store.
func NewAzureStore(cfg AzureConfig, logger *slog.Logger, metrics MetricsCollector) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.connectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure store created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
	)

	return &AzureStore{
		client:        client,
		containerName: cfg.ContainerName,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Backend returns "azure".
func (s *AzureStore) Backend() string { return "azure" }

// Put streams body to the container under key.
func (s *AzureStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	startTime := time.Now()
	blobPath := ObjectKey(key)
	uri := fmt.Sprintf("azure://%s/%s", s.containerName, blobPath)

	var opts *azblob.UploadStreamOptions
	if contentType != "" {
		opts = &azblob.UploadStreamOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		}
	}

	if _, err := s.client.UploadStream(ctx, s.containerName, blobPath, body, opts); err != nil {
		if s.metrics != nil {
			s.metrics.IncStorageErrors("azure", "upload")
		}
		return "", &errors.StorageError{Operation: "upload", Path: uri, Err: err}
	}

	duration := time.Since(startTime)
	s.logger.Debug("wrote object to Azure Blob",
		"container", s.containerName,
		"blob", blobPath,
		"duration_ms", duration.Milliseconds(),
	)

	if s.metrics != nil {
		s.metrics.IncObjectsWritten("azure", "success")
		s.metrics.ObserveStorageWriteDuration("azure", duration.Seconds())
	}
	return uri, nil
}

// Close closes the Azure store.
func (s *AzureStore) Close() error {
	s.logger.Info("Azure store closed")
	return nil
}
