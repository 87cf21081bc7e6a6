package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jittakal/kafeventlake/internal/catalog"
	"github.com/jittakal/kafeventlake/internal/compress"
	"github.com/jittakal/kafeventlake/internal/config/dto"
	"github.com/jittakal/kafeventlake/internal/encoder"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/internal/flatten"
	"github.com/jittakal/kafeventlake/internal/observability"
	"github.com/jittakal/kafeventlake/internal/pipeline"
	"github.com/jittakal/kafeventlake/internal/record"
	"github.com/jittakal/kafeventlake/internal/router"
	"github.com/jittakal/kafeventlake/internal/storage"
	"github.com/jittakal/kafeventlake/internal/validator"
	pkgencoder "github.com/jittakal/kafeventlake/pkg/encoder"
	pkgstorage "github.com/jittakal/kafeventlake/pkg/storage"
	"github.com/jittakal/kafeventlake/pkg/table"
)

// app holds the wired event pipeline.
type app struct {
	handler *pipeline.Handler
	catalog *catalog.Cache
}

// buildApp wires the catalog, error sink and handler. The catalog opens
// lazily on first use, so a backend outage at startup does not stop the
// process.
func buildApp(cfg *dto.ApplicationConfig, logger *slog.Logger, metrics *observability.Metrics) *app {
	// The compressor records its failures through the error sink, which
	// writes through the catalog, whose manifests use the compressor. The
	// loader runs after all three exist.
	var compressor *compress.Compressor

	cache := catalog.NewCache(func(ctx context.Context) (table.Catalog, error) {
		w, err := openWarehouse(ctx, cfg, compressor, logger, metrics)
		if err != nil {
			return nil, err
		}
		return w, nil
	}, logger, metrics)

	sink := errorsink.New(cache, logger,
		errorsink.WithTable(cfg.Pipeline.ErrorTable),
		errorsink.WithMetrics(metrics),
	)
	compressor = compress.New(sink,
		compress.WithCodec(compress.Codec(cfg.Pipeline.Compression.Codec)),
		compress.WithLevel(cfg.Pipeline.Compression.Level),
	)

	var flattenOpts []flatten.Option
	if cfg.Pipeline.StrictFlatten {
		flattenOpts = append(flattenOpts, flatten.WithCollisionCheck())
	}
	builder := record.NewBuilder(flatten.New(sink, flattenOpts...), sink)
	writer := router.NewWriter(cache, sink, cfg.Pipeline.TablePrefix, logger, metrics)

	handler := pipeline.NewHandler(
		validator.NewEventValidator(sink),
		builder,
		writer,
		sink,
		logger,
		pipeline.WithMetrics(metrics),
	)
	return &app{handler: handler, catalog: cache}
}

// openWarehouse opens the metadata store and object store, registers the
// known tables and returns the warehouse catalog.
func openWarehouse(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	compressor *compress.Compressor,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*catalog.Warehouse, error) {
	wh := cfg.Catalog.Warehouse

	format := pkgencoder.FileFormat(wh.Format)
	enc, err := encoder.NewFactory(format, wh.Compression, compressor).CreateEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	store, err := openMetadataStore(ctx, cfg.Catalog.Metadata)
	if err != nil {
		return nil, err
	}

	eventTypes := cfg.Catalog.Tables.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = catalog.DefaultEventTypes
	}
	tables := catalog.KnownTables(cfg.Pipeline.TablePrefix, cfg.Pipeline.ErrorTable, eventTypes)
	if err := store.RegisterTables(ctx, tables); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to register tables: %w", err)
	}

	objects, err := openObjectStore(ctx, wh, logger, metrics)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("warehouse catalog opened",
		"metadata_backend", cfg.Catalog.Metadata.Backend,
		"warehouse_backend", objects.Backend(),
		"format", enc.Format(),
		"tables", len(tables),
	)

	return catalog.NewWarehouse(catalog.WarehouseConfig{
		Store:      store,
		Objects:    objects,
		Router:     storage.NewRouter(wh.BasePath, wh.BucketCount),
		Encoder:    enc,
		Compressor: compressor,
		Logger:     logger,
	}), nil
}

func openMetadataStore(ctx context.Context, cfg dto.MetadataConfig) (catalog.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := catalog.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite catalog: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := catalog.NewPostgresStore(ctx, catalog.PostgresConfig{
			URL:             cfg.Postgres.URL,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: time.Duration(cfg.Postgres.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres catalog: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s (supported: sqlite, postgres)", cfg.Backend)
	}
}

func openObjectStore(
	ctx context.Context,
	cfg dto.WarehouseConfig,
	logger *slog.Logger,
	metrics storage.MetricsCollector,
) (pkgstorage.ObjectStore, error) {
	var (
		objects pkgstorage.ObjectStore
		err     error
	)
	switch cfg.Backend {
	case "file":
		objects, err = storage.NewFileStore(storage.FileConfig{BasePath: cfg.File.BasePath}, logger, metrics)
	case "s3":
		objects, err = storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		}, logger, metrics)
	case "azure":
		key := cfg.Azure.AccountKey
		if key == "" {
			key = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")
		}
		objects, err = storage.NewAzureStore(storage.AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    key,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		}, logger, metrics)
	case "gcs":
		creds := cfg.GCS.CredentialsJSON
		if creds == "" {
			creds = os.Getenv("GCP_CREDENTIALS_JSON")
		}
		objects, err = storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      creds,
			Endpoint:             cfg.GCS.Endpoint,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported warehouse backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s object store: %w", cfg.Backend, err)
	}
	return objects, nil
}
