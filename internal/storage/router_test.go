package storage

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/jittakal/kafeventlake/pkg/event"
)

func TestHiveRouter_Route(t *testing.T) {
	ts := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name     string
		basePath string
		buckets  int
		rec      event.Record
		want     string
	}{
		{
			name:    "date and bucket",
			buckets: 16,
			rec: event.Record{
				"timestamp": event.TimeValue(ts),
				"user_id":   event.StringValue("iceberg"),
			},
			want: "events_search/data/dt=2024-01-15/user_bucket=" + strconv.Itoa(Bucket("iceberg", 16)) + "/",
		},
		{
			name:     "base path trimmed",
			basePath: "/warehouse/",
			rec:      event.Record{"timestamp": event.TimeValue(ts)},
			want:     "warehouse/events_search/data/dt=2024-01-15/",
		},
		{
			name:    "no user id",
			buckets: 16,
			rec:     event.Record{"timestamp": event.TimeValue(ts)},
			want:    "events_search/data/dt=2024-01-15/",
		},
		{
			name: "missing timestamp",
			rec:  event.Record{},
			want: "events_search/data/dt=" + DefaultPartition + "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tt.basePath, tt.buckets)
			if got := r.Route("events_search", tt.rec); got != tt.want {
				t.Errorf("Route() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHiveRouter_UsesUTCDate(t *testing.T) {
	r := NewRouter("", 0)
	local := time.Date(2024, 1, 16, 1, 0, 0, 0, time.FixedZone("CET", 3600*2))
	got := r.Route("t", event.Record{"timestamp": {}})
	if !strings.Contains(got, DefaultPartition) {
		t.Errorf("null timestamp should use default partition, got %s", got)
	}
	got = r.Route("t", event.Record{"timestamp": event.TimeValue(local)})
	if !strings.Contains(got, "dt=2024-01-15") {
		t.Errorf("Route() = %s, want UTC date 2024-01-15", got)
	}
}

func TestBucket(t *testing.T) {
	// Reference hash from the Iceberg table format.
	if h := murmur3.Sum32([]byte("iceberg")); h != 1210000089 {
		t.Fatalf("murmur3(iceberg) = %d, want 1210000089", h)
	}
	if got := Bucket("iceberg", 16); got != 1210000089%16 {
		t.Errorf("Bucket() = %d, want %d", got, 1210000089%16)
	}

	for _, s := range []string{"", "a", "user-1", "ünïcödé"} {
		b := Bucket(s, 7)
		if b < 0 || b >= 7 {
			t.Errorf("Bucket(%q, 7) = %d out of range", s, b)
		}
	}
}

func TestHiveRouter_MetadataPath(t *testing.T) {
	if got := NewRouter("", 0).MetadataPath("error_logs"); got != "error_logs/metadata/" {
		t.Errorf("MetadataPath() = %s", got)
	}
	if got := NewRouter("lake", 0).MetadataPath("error_logs"); got != "lake/error_logs/metadata/" {
		t.Errorf("MetadataPath() = %s", got)
	}
}
