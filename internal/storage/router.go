// Package storage implements warehouse object stores and partition routing.
package storage

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/jittakal/kafeventlake/pkg/event"
	"github.com/jittakal/kafeventlake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Router = (*HiveRouter)(nil)

// DefaultPartition is used when a partition source column is missing.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// HiveRouter implements Hive-style partitioning of table data files.
type HiveRouter struct {
	basePath    string
	bucketCount int
}

// NewRouter creates a router. bucketCount of zero disables user bucketing.
func NewRouter(basePath string, bucketCount int) *HiveRouter {
	return &HiveRouter{
		basePath:    strings.Trim(basePath, "/"),
		bucketCount: bucketCount,
	}
}

// Route returns the data directory for rec.
// Format: [basePath/]table/data/dt=YYYY-MM-DD/user_bucket=N/
// The date comes from the record's event timestamp, not processing time.
// The user_bucket segment is only present when bucketing is enabled and
// the record has a string user_id.
func (r *HiveRouter) Route(table string, rec event.Record) string {
	date := DefaultPartition
	if ts, ok := rec.Time(event.FieldTimestamp); ok {
		date = ts.UTC().Format("2006-01-02")
	}

	var b strings.Builder
	if r.basePath != "" {
		b.WriteString(r.basePath)
		b.WriteByte('/')
	}
	fmt.Fprintf(&b, "%s/data/dt=%s/", table, date)

	if r.bucketCount > 0 {
		if userID, ok := rec.String(event.FieldUserID); ok {
			fmt.Fprintf(&b, "user_bucket=%d/", Bucket(userID, r.bucketCount))
		}
	}
	return b.String()
}

// Bucket applies the Iceberg bucket[n] transform to a string: the 32-bit
// murmur3 hash of its UTF-8 bytes, sign bit cleared, modulo n.
func Bucket(s string, n int) int {
	h := murmur3.Sum32([]byte(s))
	return int(h&0x7fffffff) % n
}

// MetadataPath returns the metadata directory of a table.
func (r *HiveRouter) MetadataPath(table string) string {
	if r.basePath == "" {
		return table + "/metadata/"
	}
	return r.basePath + "/" + table + "/metadata/"
}
