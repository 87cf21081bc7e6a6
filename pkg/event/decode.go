package event

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// Decode parses a JSON document into a Value tree. Object key order and
// duplicate keys are preserved. Numbers written without a fraction or
// exponent that fit in an int64 decode as integers; all others as floats.
func Decode(data []byte) (Value, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return Value{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// Everything is copied out of the parser before it goes back to the pool.
	return fromJSON(v)
}

func fromJSON(v *fastjson.Value) (Value, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return NullValue(), nil
	case fastjson.TypeTrue:
		return BoolValue(true), nil
	case fastjson.TypeFalse:
		return BoolValue(false), nil
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(b)), nil
	case fastjson.TypeNumber:
		raw := v.String()
		if !strings.ContainsAny(raw, ".eE") {
			if i, err := v.Int64(); err == nil {
				return Int64Value(i), nil
			}
		}
		f, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %s: %w", raw, err)
		}
		return Float64Value(f), nil
	case fastjson.TypeArray:
		arr, err := v.Array()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, len(arr))
		for i, item := range arr {
			iv, err := fromJSON(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, iv)
		}
		return ListValue(items...), nil
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return Value{}, err
		}
		fields := make([]Field, 0, obj.Len())
		var visitErr error
		obj.Visit(func(key []byte, item *fastjson.Value) {
			if visitErr != nil {
				return
			}
			iv, err := fromJSON(item)
			if err != nil {
				visitErr = fmt.Errorf("%s: %w", key, err)
				return
			}
			fields = append(fields, F(string(key), iv))
		})
		if visitErr != nil {
			return Value{}, visitErr
		}
		return MapValue(fields...), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON type %s", v.Type())
	}
}
