package table

import (
	"testing"

	"github.com/jittakal/kafeventlake/pkg/event"
)

func TestNewBatch(t *testing.T) {
	batch := NewBatch(
		event.Record{"b": event.Int64Value(1), "a": event.StringValue("x")},
		event.Record{"b": event.Float64Value(2.5), "c": event.BoolValue(true)},
	)

	if batch.NumRows() != 2 {
		t.Errorf("NumRows() = %d, want 2", batch.NumRows())
	}
	if batch.NumColumns() != 3 {
		t.Fatalf("NumColumns() = %d, want 3", batch.NumColumns())
	}

	wantOrder := []string{"a", "b", "c"}
	for i, name := range wantOrder {
		if batch.Columns[i].Name != name {
			t.Errorf("Columns[%d] = %s, want %s", i, batch.Columns[i].Name, name)
		}
	}

	b, ok := batch.Column("b")
	if !ok {
		t.Fatal("Column(b) not found")
	}
	if b.Kind != event.KindFloat {
		t.Errorf("int+float column kind = %v, want float", b.Kind)
	}

	c, _ := batch.Column("c")
	if !c.Values[0].IsNull() {
		t.Error("missing cell should be null")
	}
	if c.Kind != event.KindBool {
		t.Errorf("c kind = %v, want bool", c.Kind)
	}

	if _, ok := batch.Column("zzz"); ok {
		t.Error("Column(zzz) should not exist")
	}
}

func TestWiden(t *testing.T) {
	tests := []struct {
		have, next, want event.Kind
	}{
		{event.KindNull, event.KindInt, event.KindInt},
		{event.KindInt, event.KindNull, event.KindInt},
		{event.KindInt, event.KindFloat, event.KindFloat},
		{event.KindFloat, event.KindInt, event.KindFloat},
		{event.KindString, event.KindBool, event.KindString},
		{event.KindTime, event.KindTime, event.KindTime},
	}

	for _, tt := range tests {
		if got := widen(tt.have, tt.next); got != tt.want {
			t.Errorf("widen(%v, %v) = %v, want %v", tt.have, tt.next, got, tt.want)
		}
	}
}

func TestBatch_Row(t *testing.T) {
	batch := NewBatch(
		event.Record{"a": event.StringValue("x")},
		event.Record{"b": event.Int64Value(7)},
	)

	row := batch.Row(1)
	if len(row) != 1 {
		t.Fatalf("Row(1) = %v, want one column", row)
	}
	if n, _ := row["b"].AsInt64(); n != 7 {
		t.Errorf("Row(1)[b] = %d, want 7", n)
	}
}

func TestBatch_Select(t *testing.T) {
	batch := NewBatch(
		event.Record{"a": event.StringValue("x"), "b": event.NullValue()},
		event.Record{"a": event.StringValue("y"), "b": event.Int64Value(7)},
		event.Record{"a": event.StringValue("z"), "b": event.NullValue()},
	)

	sel := batch.Select([]int{0, 2})
	if sel.NumRows() != 2 || sel.NumColumns() != 2 {
		t.Fatalf("Select() = %d rows x %d columns, want 2 x 2", sel.NumRows(), sel.NumColumns())
	}

	b, ok := sel.Column("b")
	if !ok {
		t.Fatal("Select() dropped the all-null column b")
	}
	if b.Kind != event.KindInt {
		t.Errorf("b kind = %v, want %v", b.Kind, event.KindInt)
	}
	for i, v := range b.Values {
		if !v.IsNull() {
			t.Errorf("b[%d] = %v, want null", i, v)
		}
	}

	a, _ := sel.Column("a")
	if s, _ := a.Values[1].AsString(); s != "z" {
		t.Errorf("a[1] = %q, want z", s)
	}
}
