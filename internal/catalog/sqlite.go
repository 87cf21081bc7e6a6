package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Ensure implementation satisfies interface at compile time.
var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tables (
	name          TEXT PRIMARY KEY,
	registered_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS data_files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name    TEXT NOT NULL REFERENCES tables(name),
	path          TEXT NOT NULL,
	format        TEXT NOT NULL,
	partition     TEXT NOT NULL,
	record_count  INTEGER NOT NULL,
	size_bytes    INTEGER NOT NULL,
	manifest_path TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_data_files_table ON data_files(table_name, created_at);
`

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // single writer
}

// NewSQLiteStore opens (or creates) the metadata database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// RegisterTables implements Store.
func (s *SQLiteStore) RegisterTables(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMicro()
	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tables (name, registered_at) VALUES (?, ?)`, name, now); err != nil {
			return fmt.Errorf("catalog: failed to register table %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// TableExists implements Store.
func (s *SQLiteStore) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tables WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("catalog: failed to look up table %s: %w", name, err)
	}
	return n > 0, nil
}

// RecordDataFile implements Store.
func (s *SQLiteStore) RecordDataFile(ctx context.Context, f DataFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_files (
			table_name, path, format, partition,
			record_count, size_bytes, manifest_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Table, f.Path, f.Format, f.Partition,
		f.RecordCount, f.SizeBytes, f.ManifestPath, f.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("catalog: failed to record data file %s: %w", f.Path, err)
	}
	return nil
}

// DataFiles returns the data file log of a table in append order.
func (s *SQLiteStore) DataFiles(ctx context.Context, table string) ([]DataFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, format, partition, record_count, size_bytes, manifest_path, created_at
		FROM data_files WHERE table_name = ? ORDER BY id`, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list data files: %w", err)
	}
	defer rows.Close()

	var files []DataFile
	for rows.Next() {
		f := DataFile{Table: table}
		var created int64
		if err := rows.Scan(&f.Path, &f.Format, &f.Partition, &f.RecordCount, &f.SizeBytes, &f.ManifestPath, &created); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan data file: %w", err)
		}
		f.CreatedAt = time.UnixMicro(created).UTC()
		files = append(files, f)
	}
	return files, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
