package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafeventlake/internal/config/dto"
	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/observability"
)

func testConfig(dir, format string) *dto.ApplicationConfig {
	return &dto.ApplicationConfig{
		Application: dto.ApplicationInfo{Name: "kafeventlake-test"},
		Catalog: dto.CatalogConfig{
			Metadata: dto.MetadataConfig{
				Backend: "sqlite",
				SQLite:  dto.SQLiteConfig{Path: filepath.Join(dir, "catalog.db")},
			},
			Warehouse: dto.WarehouseConfig{
				Backend:     "file",
				BasePath:    "warehouse",
				Format:      format,
				BucketCount: 4,
				File:        dto.FileConfig{BasePath: filepath.Join(dir, "data")},
			},
		},
		Pipeline: dto.PipelineConfig{
			TablePrefix: "events_",
			ErrorTable:  "error_logs",
			Compression: dto.CompressionConfig{Codec: "gzip", Level: 6},
		},
	}
}

// dataFiles lists written data files by table name.
func dataFiles(t *testing.T, root, ext string) map[string]int {
	t.Helper()
	files := make(map[string]int)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		rel, _ := filepath.Rel(filepath.Join(root, "warehouse"), path)
		files[strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]]++
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

func TestBuildApp_EndToEnd(t *testing.T) {
	for _, tt := range []struct {
		format string
		ext    string
	}{
		{"parquet", ".parquet"},
		{"avro", ".avro"},
	} {
		t.Run(tt.format, func(t *testing.T) {
			dir := t.TempDir()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			a := buildApp(testConfig(dir, tt.format), logger, observability.NewMetrics(prometheus.NewRegistry()))
			defer a.catalog.Close()
			ctx := context.Background()

			res, err := a.handler.HandleJSON(ctx, []byte(`{
				"event_id": "e1",
				"event_type": "click",
				"user_id": "user_7",
				"timestamp": "2024-01-15T10:30:00.123456",
				"metadata": {"browser": "firefox"},
				"_doc": {"engagement": {"scroll_depth": 40}}
			}`))
			if err != nil {
				t.Fatalf("HandleJSON() error = %v", err)
			}
			if res.EventID != "e1" || res.TableKey != "events_click" {
				t.Errorf("result = %+v", res)
			}

			_, err = a.handler.HandleJSON(ctx, []byte(`{"event_id": "e2", "event_type": "click"}`))
			if errors.KindOf(err) != errors.KindValidation {
				t.Errorf("missing user_id: kind = %v, want ValidationError", errors.KindOf(err))
			}

			_, err = a.handler.HandleJSON(ctx, []byte(`{
				"event_id": "e3",
				"event_type": "unregistered",
				"user_id": "u",
				"timestamp": "2024-01-15T10:30:00"
			}`))
			if errors.KindOf(err) != errors.KindWrite {
				t.Errorf("unknown table: kind = %v, want WriteError", errors.KindOf(err))
			}

			files := dataFiles(t, filepath.Join(dir, "data"), tt.ext)
			if files["events_click"] != 1 {
				t.Errorf("events_click data files = %d, want 1 (%v)", files["events_click"], files)
			}
			if files["error_logs"] != 2 {
				t.Errorf("error_logs data files = %d, want 2 (%v)", files["error_logs"], files)
			}
		})
	}
}

func TestOpenObjectStore_Unsupported(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := openObjectStore(context.Background(), dto.WarehouseConfig{Backend: "ftp"}, logger, nil)
	if err == nil || !strings.Contains(err.Error(), "unsupported warehouse backend") {
		t.Errorf("openObjectStore() error = %v", err)
	}
}

func TestOpenMetadataStore_Unsupported(t *testing.T) {
	_, err := openMetadataStore(context.Background(), dto.MetadataConfig{Backend: "mysql"})
	if err == nil || !strings.Contains(err.Error(), "unsupported metadata backend") {
		t.Errorf("openMetadataStore() error = %v", err)
	}
}
