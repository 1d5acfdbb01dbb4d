package sketches

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// TypeID identifies the type of the items held by a sketch. Sketches only
// compare type ids, they never interpret them.
type TypeID string

// Item is a stream element in canonical form. Bytes feed both hashing and
// item equality.
type Item struct {
	Type      TypeID
	Bytes     []byte
	Composite bool
}

// Codec turns values of a single type into canonical bytes.
type Codec interface {
	// TypeID returns the identity recorded by sketches for this type
	TypeID() TypeID

	// Canonicalize returns the canonical byte form of v
	Canonicalize(v any) ([]byte, error)
}

// NewItem canonicalizes v with the given codec.
func NewItem(c Codec, v any) (Item, error) {
	b, err := c.Canonicalize(v)
	if err != nil {
		return Item{}, err
	}
	_, composite := c.(*RecordCodec)
	return Item{Type: c.TypeID(), Bytes: b, Composite: composite}, nil
}

// MustItem is like NewItem but panics on error.
func MustItem(c Codec, v any) Item {
	item, err := NewItem(c, v)
	if err != nil {
		panic(err)
	}
	return item
}

type scalarCodec struct {
	id     TypeID
	encode func(v any) ([]byte, error)
}

func (c scalarCodec) TypeID() TypeID { return c.id }

func (c scalarCodec) Canonicalize(v any) ([]byte, error) {
	b, err := c.encode(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize %s: %w", c.id, err)
	}
	return b, nil
}

// Built-in scalar codecs. Fixed-width values are written in their raw
// little-endian form, variable-width values as their content bytes.
var (
	Int16   Codec = scalarCodec{id: "int2", encode: encodeInt(2)}
	Int32   Codec = scalarCodec{id: "int4", encode: encodeInt(4)}
	Int64   Codec = scalarCodec{id: "int8", encode: encodeInt(8)}
	Float32 Codec = scalarCodec{id: "float4", encode: encodeFloat32}
	Float64 Codec = scalarCodec{id: "float8", encode: encodeFloat64}
	Bool    Codec = scalarCodec{id: "bool", encode: encodeBool}
	Text    Codec = scalarCodec{id: "text", encode: encodeText}
	Bytes   Codec = scalarCodec{id: "bytea", encode: encodeBytes}
)

var scalarCodecs = map[string]Codec{
	"int2":   Int16,
	"int4":   Int32,
	"int8":   Int64,
	"float4": Float32,
	"float8": Float64,
	"bool":   Bool,
	"text":   Text,
	"bytea":  Bytes,
}

// LookupCodec returns the scalar codec registered under name.
func LookupCodec(name string) (Codec, error) {
	c, ok := scalarCodecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown item type %q: %w", name, ErrUnsupportedItem)
	}
	return c, nil
}

// RecordCodec canonicalizes composite values field by field in declaration
// order. Values are passed as []any with one element per field; a nil element
// is an absent field.
type RecordCodec struct {
	id     TypeID
	fields []Codec
}

// Record builds a codec for a record with the given field codecs.
func Record(fields ...Codec) *RecordCodec {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f.TypeID())
	}
	return &RecordCodec{
		id:     TypeID("record(" + strings.Join(names, ",") + ")"),
		fields: fields,
	}
}

func (r *RecordCodec) TypeID() TypeID { return r.id }

func (r *RecordCodec) Canonicalize(v any) ([]byte, error) {
	values, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("canonicalize %s: expected []any, got %T", r.id, v)
	}
	if len(values) != len(r.fields) {
		return nil, fmt.Errorf("canonicalize %s: expected %d fields, got %d", r.id, len(r.fields), len(values))
	}

	var out []byte
	for i, field := range r.fields {
		if values[i] == nil {
			out = append(out, '0')
			continue
		}
		b, err := field.Canonicalize(values[i])
		if err != nil {
			return nil, err
		}
		out = append(out, '1')
		out = append(out, b...)
	}
	return out, nil
}

func encodeInt(size int) func(v any) ([]byte, error) {
	return func(v any) ([]byte, error) {
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		b := make([]byte, size)
		switch size {
		case 2:
			if n < math.MinInt16 || n > math.MaxInt16 {
				return nil, fmt.Errorf("%d out of range", n)
			}
			binary.LittleEndian.PutUint16(b, uint16(int16(n)))
		case 4:
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("%d out of range", n)
			}
			binary.LittleEndian.PutUint32(b, uint32(int32(n)))
		default:
			binary.LittleEndian.PutUint64(b, uint64(n))
		}
		return b, nil
	}
}

func encodeFloat32(v any) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
	return b, nil
}

func encodeFloat64(v any) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	return b, nil
}

func encodeBool(v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	if b {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func encodeText(v any) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return append([]byte(nil), s...), nil
	case json.Number:
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("expected string or []byte, got %T", v)
	}
}

// encodeBytes takes raw bytes or their standard base64 form, the way
// encoding/json writes []byte.
func encodeBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...), nil
	case string:
		return base64.StdEncoding.DecodeString(b)
	default:
		return nil, fmt.Errorf("expected base64 string or []byte, got %T", v)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d out of range", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case json.Number:
		return f.Float64()
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %T", v)
		}
		return float64(n), nil
	}
}
