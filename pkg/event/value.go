package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindList
	KindMap
)

var kindNames = [...]string{
	KindNull:   "null",
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindTime:   "time",
	KindList:   "list",
	KindMap:    "map",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Scalar reports whether the kind is a leaf (neither a list nor a map).
func (k Kind) Scalar() bool {
	return k != KindList && k != KindMap
}

// Field is one key/value pair of a map Value.
type Field struct {
	Key   string
	Value Value
}

// Value is a schema-less event tree node: a tagged union of null, string,
// integer, float, boolean, instant, list and map. The zero Value is null.
//
// Map values keep their fields in input order. Duplicate keys are kept;
// lookups return the last occurrence.
type Value struct {
	kind   Kind
	str    string
	num    int64
	flt    float64
	tm     time.Time
	list   []Value
	fields []Field
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// Int64Value returns an integer Value.
func Int64Value(i int64) Value { return Value{kind: KindInt, num: i} }

// Float64Value returns a float Value.
func Float64Value(f float64) Value { return Value{kind: KindFloat, flt: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// TimeValue returns an instant Value normalized to UTC.
func TimeValue(t time.Time) Value { return Value{kind: KindTime, tm: t.UTC()} }

// ListValue returns a list Value.
func ListValue(items ...Value) Value { return Value{kind: KindList, list: items} }

// MapValue returns a map Value with the given fields in order.
func MapValue(fields ...Field) Value { return Value{kind: KindMap, fields: fields} }

// F is shorthand for building a Field.
func F(key string, v Value) Field { return Field{Key: key, Value: v} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt64 returns the integer held by v.
func (v Value) AsInt64() (int64, bool) { return v.num, v.kind == KindInt }

// AsFloat64 returns the float held by v.
func (v Value) AsFloat64() (float64, bool) { return v.flt, v.kind == KindFloat }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.num == 1, v.kind == KindBool }

// AsTime returns the instant held by v.
func (v Value) AsTime() (time.Time, bool) { return v.tm, v.kind == KindTime }

// List returns the items of a list Value, or nil.
func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Fields returns the fields of a map Value, or nil.
func (v Value) Fields() []Field {
	if v.kind != KindMap {
		return nil
	}
	return v.fields
}

// Len returns the number of fields or items, 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindMap:
		return len(v.fields)
	case KindList:
		return len(v.list)
	default:
		return 0
	}
}

// Get returns the last field named key of a map Value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for i := len(v.fields) - 1; i >= 0; i-- {
		if v.fields[i].Key == key {
			return v.fields[i].Value, true
		}
	}
	return Value{}, false
}

// Has reports whether a map Value has a field named key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// GetString returns the field named key if it holds a string.
func (v Value) GetString(key string) (string, bool) {
	f, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return f.AsString()
}

// Interface converts v to plain Go values: nil, string, int64, float64,
// bool, time.Time, []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.num == 1
	case KindTime:
		return v.tm
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.fields))
		for _, f := range v.fields {
			out[f.Key] = f.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// String renders scalars as text and containers as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.num == 1)
	case KindTime:
		return v.tm.Format(time.RFC3339Nano)
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("<%s: %v>", v.kind, err)
		}
		return string(b)
	}
}

// Equal reports whether v and o hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindInt, KindBool:
		return v.num == o.num
	case KindFloat:
		return v.flt == o.flt || (math.IsNaN(v.flt) && math.IsNaN(o.flt))
	case KindTime:
		return v.tm.Equal(o.tm)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Key != o.fields[i].Key || !v.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes v as JSON. Map fields keep their order and instants
// are written as RFC 3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.num, 10))
	case KindFloat:
		if math.IsNaN(v.flt) || math.IsInf(v.flt, 0) {
			return fmt.Errorf("unsupported float value: %v", v.flt)
		}
		buf.WriteString(strconv.FormatFloat(v.flt, 'g', -1, 64))
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.num == 1))
	case KindTime:
		buf.WriteString(strconv.Quote(v.tm.Format(time.RFC3339Nano)))
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := f.Value.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

// ValueOf converts plain Go values into a Value. Maps are converted with
// their keys sorted, since Go maps carry no order.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return Int64Value(int64(t)), nil
	case int32:
		return Int64Value(int64(t)), nil
	case int64:
		return Int64Value(t), nil
	case uint32:
		return Int64Value(int64(t)), nil
	case float32:
		return Float64Value(float64(t)), nil
	case float64:
		return Float64Value(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int64Value(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Float64Value(f), nil
	case time.Time:
		return TimeValue(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return ListValue(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			v, err := ValueOf(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields = append(fields, F(k, v))
		}
		return MapValue(fields...), nil
	default:
		return Value{}, fmt.Errorf("unsupported type %T", x)
	}
}

// MustValueOf is like ValueOf but panics on error. Intended for tests and
// static fixtures.
func MustValueOf(x any) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic(err)
	}
	return v
}
