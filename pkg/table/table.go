// Package table defines the table catalog contract used to append
// normalized records.
//
// A Catalog resolves table names into Table handles. Tables accept
// columnar batches; callers build a Batch from one or more records with
// NewBatch.
package table

import (
	"context"
	"sort"

	"github.com/jittakal/kafeventlake/pkg/event"
)

// Catalog resolves table handles by name.
type Catalog interface {
	// LoadTable returns the handle for an existing table.
	LoadTable(ctx context.Context, name string) (Table, error)
}

// Table is a handle to an append-only table.
type Table interface {
	// Name returns the fully qualified table name.
	Name() string

	// Append durably appends all rows of the batch.
	Append(ctx context.Context, batch *Batch) error
}

// Column is one column of a Batch.
type Column struct {
	Name   string
	Kind   event.Kind
	Values []event.Value
}

// Batch is a columnar view of a set of records. Columns are sorted by name
// and every column holds one value per row, null where a record lacks it.
type Batch struct {
	Columns []Column
	rows    int
}

// NewBatch converts records into a columnar batch. A column's Kind is the
// kind shared by its non-null values; integers mixed with floats widen to
// float and any other mix falls back to string.
func NewBatch(records ...event.Record) *Batch {
	names := make(map[string]struct{})
	for _, r := range records {
		for c := range r {
			names[c] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for c := range names {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	b := &Batch{Columns: make([]Column, len(sorted)), rows: len(records)}
	for i, name := range sorted {
		col := Column{Name: name, Kind: event.KindNull, Values: make([]event.Value, len(records))}
		for j, r := range records {
			v := r[name]
			col.Values[j] = v
			col.Kind = widen(col.Kind, v.Kind())
		}
		b.Columns[i] = col
	}
	return b
}

// NumRows returns the number of rows in the batch.
func (b *Batch) NumRows() int { return b.rows }

// NumColumns returns the number of columns in the batch.
func (b *Batch) NumColumns() int { return len(b.Columns) }

// Column returns the column with the given name.
func (b *Batch) Column(name string) (*Column, bool) {
	i := sort.Search(len(b.Columns), func(i int) bool { return b.Columns[i].Name >= name })
	if i < len(b.Columns) && b.Columns[i].Name == name {
		return &b.Columns[i], true
	}
	return nil, false
}

// Select returns a batch of the given rows. Every column of b is kept with
// its kind, including columns that are null in all selected rows.
func (b *Batch) Select(rows []int) *Batch {
	out := &Batch{Columns: make([]Column, len(b.Columns)), rows: len(rows)}
	for i, c := range b.Columns {
		values := make([]event.Value, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		out.Columns[i] = Column{Name: c.Name, Kind: c.Kind, Values: values}
	}
	return out
}

// Row reassembles row i as a record, skipping null cells.
func (b *Batch) Row(i int) event.Record {
	r := make(event.Record, len(b.Columns))
	for _, c := range b.Columns {
		if v := c.Values[i]; !v.IsNull() {
			r[c.Name] = v
		}
	}
	return r
}

func widen(have, next event.Kind) event.Kind {
	switch {
	case next == event.KindNull || have == next:
		return have
	case have == event.KindNull:
		return next
	case (have == event.KindInt && next == event.KindFloat) || (have == event.KindFloat && next == event.KindInt):
		return event.KindFloat
	default:
		return event.KindString
	}
}
