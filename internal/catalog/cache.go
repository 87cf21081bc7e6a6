package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/pkg/table"
)

// Ensure implementation satisfies interface at compile time.
var _ table.Catalog = (*Cache)(nil)

// MetricsCollector receives catalog metrics.
type MetricsCollector interface {
	IncTableLoads(table, status string)
}

// Loader opens the underlying catalog.
type Loader func(ctx context.Context) (table.Catalog, error)

// Cache lazily opens a catalog on first use and caches table handles.
//
// The first caller to need the catalog opens it; concurrent callers wait
// for that attempt. A failed open is not cached: the error goes to the
// waiting caller and the next call tries again.
type Cache struct {
	load    Loader
	logger  *slog.Logger
	metrics MetricsCollector

	mu      sync.Mutex
	catalog table.Catalog
	closed  bool

	tablesMu sync.RWMutex
	tables   map[string]table.Table
	inflight singleflight.Group
}

// NewCache creates a cache around load. metrics may be nil.
func NewCache(load Loader, logger *slog.Logger, metrics MetricsCollector) *Cache {
	return &Cache{
		load:    load,
		logger:  logger,
		metrics: metrics,
		tables:  make(map[string]table.Table),
	}
}

// Catalog returns the underlying catalog, opening it if needed.
func (c *Cache) Catalog(ctx context.Context) (table.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrCatalogClosed
	}
	if c.catalog != nil {
		return c.catalog, nil
	}

	cat, err := c.load(ctx)
	if err != nil {
		c.logger.Error("failed to open catalog", "error", err)
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	c.catalog = cat
	c.logger.Info("catalog opened")
	return cat, nil
}

// LoadTable returns the cached handle for name, loading it on a miss.
func (c *Cache) LoadTable(ctx context.Context, name string) (table.Table, error) {
	c.tablesMu.RLock()
	t, ok := c.tables[name]
	c.tablesMu.RUnlock()
	if ok {
		return t, nil
	}

	cat, err := c.Catalog(ctx)
	if err != nil {
		c.observe(name, "error")
		return nil, err
	}

	// Misses on one name share a single load; loads of different names
	// run in parallel and never hold tablesMu.
	v, err, _ := c.inflight.Do(name, func() (any, error) {
		c.tablesMu.RLock()
		t, ok := c.tables[name]
		c.tablesMu.RUnlock()
		if ok {
			return t, nil
		}

		t, err := cat.LoadTable(ctx, name)
		if err != nil {
			c.observe(name, "error")
			return nil, err
		}

		c.tablesMu.Lock()
		c.tables[name] = t
		c.tablesMu.Unlock()
		c.observe(name, "loaded")
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(table.Table), nil
}

func (c *Cache) observe(name, status string) {
	if c.metrics != nil {
		c.metrics.IncTableLoads(name, status)
	}
}

// Close closes the underlying catalog if it was opened. Later calls fail
// with ErrCatalogClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.tablesMu.Lock()
	c.tables = make(map[string]table.Table)
	c.tablesMu.Unlock()

	if closer, ok := c.catalog.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
