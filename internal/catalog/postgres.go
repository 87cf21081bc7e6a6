package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure implementation satisfies interface at compile time.
var _ Store = (*PostgresStore)(nil)

// PostgresConfig configures the PostgreSQL metadata store.
type PostgresConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (cfg PostgresConfig) poolConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	return poolConfig, nil
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and creates the metadata tables.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: failed to ping database: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS catalog_tables (
			name          TEXT PRIMARY KEY,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS catalog_data_files (
			id            BIGSERIAL PRIMARY KEY,
			table_name    TEXT NOT NULL REFERENCES catalog_tables(name),
			path          TEXT NOT NULL,
			format        TEXT NOT NULL,
			partition     TEXT NOT NULL,
			record_count  BIGINT NOT NULL,
			size_bytes    BIGINT NOT NULL,
			manifest_path TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_catalog_data_files_table
			ON catalog_data_files(table_name, created_at);`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// RegisterTables implements Store.
func (s *PostgresStore) RegisterTables(ctx context.Context, names []string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO catalog_tables (name)
		SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING`, names)
	if err != nil {
		return fmt.Errorf("catalog: failed to register tables: %w", err)
	}
	return nil
}

// TableExists implements Store.
func (s *PostgresStore) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM catalog_tables WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("catalog: failed to look up table %s: %w", name, err)
	}
	return exists, nil
}

// RecordDataFile implements Store.
func (s *PostgresStore) RecordDataFile(ctx context.Context, f DataFile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO catalog_data_files (
			table_name, path, format, partition,
			record_count, size_bytes, manifest_path, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.Table, f.Path, f.Format, f.Partition,
		f.RecordCount, f.SizeBytes, f.ManifestPath, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("catalog: failed to record data file %s: %w", f.Path, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
