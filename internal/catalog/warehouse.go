package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/storage"
	"github.com/jittakal/kafeventlake/pkg/encoder"
	pkgstorage "github.com/jittakal/kafeventlake/pkg/storage"
	"github.com/jittakal/kafeventlake/pkg/table"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ table.Catalog = (*Warehouse)(nil)
	_ table.Table   = (*WarehouseTable)(nil)
)

// Compressor compresses manifest files.
type Compressor interface {
	Compress(ctx context.Context, data []byte) ([]byte, error)
}

// Warehouse is a catalog of append-only tables stored as partitioned data
// files in an object store.
type Warehouse struct {
	store      Store
	objects    pkgstorage.ObjectStore
	router     pkgstorage.Router
	encoder    encoder.Encoder
	compressor Compressor
	logger     *slog.Logger
	now        func() time.Time
}

// WarehouseConfig holds the warehouse collaborators.
type WarehouseConfig struct {
	Store      Store
	Objects    pkgstorage.ObjectStore
	Router     pkgstorage.Router
	Encoder    encoder.Encoder
	Compressor Compressor
	Logger     *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewWarehouse creates a warehouse catalog.
func NewWarehouse(cfg WarehouseConfig) *Warehouse {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Warehouse{
		store:      cfg.Store,
		objects:    cfg.Objects,
		router:     cfg.Router,
		encoder:    cfg.Encoder,
		compressor: cfg.Compressor,
		logger:     cfg.Logger,
		now:        now,
	}
}

// LoadTable returns a handle for a registered table.
func (w *Warehouse) LoadTable(ctx context.Context, name string) (table.Table, error) {
	ok, err := w.store.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}
	return &WarehouseTable{name: name, w: w}, nil
}

// Close closes the metadata store and the object store.
func (w *Warehouse) Close() error {
	storeErr := w.store.Close()
	if err := w.objects.Close(); err != nil {
		return err
	}
	return storeErr
}

// WarehouseTable appends batches to one warehouse table.
type WarehouseTable struct {
	name string
	w    *Warehouse
}

// Name returns the table name.
func (t *WarehouseTable) Name() string { return t.name }

// Append writes one data file per partition touched by the batch, each
// followed by a gzip JSON manifest and a data file log entry.
func (t *WarehouseTable) Append(ctx context.Context, batch *table.Batch) error {
	var (
		dirs   []string
		groups = make(map[string][]int)
	)
	for i := 0; i < batch.NumRows(); i++ {
		dir := t.w.router.Route(t.name, batch.Row(i))
		if _, ok := groups[dir]; !ok {
			dirs = append(dirs, dir)
		}
		groups[dir] = append(groups[dir], i)
	}

	for _, dir := range dirs {
		if err := t.appendFile(ctx, dir, batch.Select(groups[dir])); err != nil {
			return err
		}
	}
	return nil
}

// manifest is the sidecar written next to each table append.
type manifest struct {
	Table       string           `json:"table"`
	DataFile    string           `json:"data_file"`
	Format      string           `json:"format"`
	Partition   string           `json:"partition"`
	RecordCount int              `json:"record_count"`
	SizeBytes   int64            `json:"size_bytes"`
	Columns     []manifestColumn `json:"columns"`
	CreatedAt   time.Time        `json:"created_at"`
}

type manifestColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (t *WarehouseTable) appendFile(ctx context.Context, dir string, batch *table.Batch) error {
	now := t.w.now().UTC()
	enc := t.w.encoder

	var buf bytes.Buffer
	stats, err := enc.Encode(ctx, &buf, batch)
	if err != nil {
		return fmt.Errorf("failed to encode %s data file: %w", enc.Format(), err)
	}

	uri, err := t.w.objects.Put(ctx, dir+storage.DataFileName(now, enc.FileExtension()), &buf, enc.ContentType())
	if err != nil {
		return err
	}

	m := manifest{
		Table:       t.name,
		DataFile:    uri,
		Format:      string(enc.Format()),
		Partition:   partitionOf(dir),
		RecordCount: stats.RecordCount,
		SizeBytes:   stats.SizeBytes,
		Columns:     make([]manifestColumn, len(batch.Columns)),
		CreatedAt:   now,
	}
	for i, c := range batch.Columns {
		m.Columns[i] = manifestColumn{Name: c.Name, Type: c.Kind.String()}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	gz, err := t.w.compressor.Compress(ctx, raw)
	if err != nil {
		return err
	}

	manifestKey := t.w.router.MetadataPath(t.name) + uuid.NewString() + ".manifest.json.gz"
	manifestURI, err := t.w.objects.Put(ctx, manifestKey, bytes.NewReader(gz), "application/gzip")
	if err != nil {
		return err
	}

	if err := t.w.store.RecordDataFile(ctx, DataFile{
		Table:        t.name,
		Path:         uri,
		Format:       m.Format,
		Partition:    m.Partition,
		RecordCount:  stats.RecordCount,
		SizeBytes:    stats.SizeBytes,
		ManifestPath: manifestURI,
		CreatedAt:    now,
	}); err != nil {
		return err
	}

	t.w.logger.Debug("appended data file",
		"table", t.name,
		"path", uri,
		"records", stats.RecordCount,
		"bytes", stats.SizeBytes,
	)
	return nil
}

// partitionOf returns the partition part of a data directory, e.g.
// "dt=2024-03-15/user_bucket=3".
func partitionOf(dir string) string {
	if i := strings.Index(dir, "/data/"); i >= 0 {
		dir = dir[i+len("/data/"):]
	}
	return strings.TrimSuffix(dir, "/")
}
