package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.ObjectStore = (*FileStore)(nil)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncObjectsWritten(backend, status string)
	ObserveObjectSize(backend string, size float64)
	ObserveStorageWriteDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileStore implements storage.ObjectStore on the local filesystem.
// Objects are written to a temporary file and renamed into place, so a
// reader never observes a partial object.
type FileStore struct {
	basePath string
	logger   *slog.Logger
	metrics  MetricsCollector
	mu       sync.RWMutex
	closed   bool
}

// NewFileStore creates a new filesystem object store.
func NewFileStore(config FileConfig, logger *slog.Logger, metrics MetricsCollector) (*FileStore, error) {
	basePath := strings.TrimPrefix(config.BasePath, "file://")
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("filesystem store created", "base_path", basePath)

	return &FileStore{
		basePath: basePath,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Backend returns "file".
func (s *FileStore) Backend() string { return "file" }

// Put writes body to basePath/key.
func (s *FileStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", errors.ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	startTime := time.Now()
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(ObjectKey(key)))
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		s.storageError("mkdir")
		return "", &errors.StorageError{Operation: "create", Path: dir, Err: err}
	}

	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		s.storageError("create")
		return "", &errors.StorageError{Operation: "create", Path: tmp, Err: err}
	}

	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		s.storageError("write")
		return "", &errors.StorageError{Operation: "write", Path: fullPath, Err: err}
	}

	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		s.storageError("rename")
		return "", &errors.StorageError{Operation: "rename", Path: fullPath, Err: err}
	}

	duration := time.Since(startTime)
	s.logger.Debug("wrote object to file",
		"path", fullPath,
		"content_type", contentType,
		"size", n,
		"duration_ms", duration.Milliseconds(),
	)

	if s.metrics != nil {
		s.metrics.IncObjectsWritten("file", "success")
		s.metrics.ObserveObjectSize("file", float64(n))
		s.metrics.ObserveStorageWriteDuration("file", duration.Seconds())
	}
	return fullPath, nil
}

// Close closes the store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.logger.Info("closing filesystem store")
	return nil
}

func (s *FileStore) storageError(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("file", op)
	}
}

// ObjectKey strips a protocol://bucket/ prefix and leading slashes from a
// path, leaving the key within the bucket.
// Example: "s3://bucket/a/b.parquet" becomes "a/b.parquet".
func ObjectKey(path string) string {
	if i := strings.Index(path, "://"); i >= 0 {
		rest := path[i+3:]
		if path[:i] == "file" {
			return strings.TrimPrefix(rest, "/")
		}
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 2 {
			rest = parts[1]
		} else {
			rest = ""
		}
		path = rest
	}
	return strings.TrimPrefix(path, "/")
}

// DataFileName returns a timestamped, collision-free data file name:
// events_YYYYMMDD_HHMMSS_<id>.<ext>.
func DataFileName(now time.Time, ext string) string {
	return fmt.Sprintf("events_%s_%s%s", now.UTC().Format("20060102_150405"), uuid.NewString()[:8], ext)
}
