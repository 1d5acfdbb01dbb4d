package api

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/sahithikokkula/sketchd/pkg/sketches"
	"github.com/sahithikokkula/sketchd/pkg/storage"
)

const recordItemType = "record"

// codecFor resolves the item codec recorded in the sketch parameters.
func codecFor(p storage.Parameters) (sketches.Codec, error) {
	if p.ItemType != recordItemType {
		if len(p.Fields) > 0 {
			return nil, fmt.Errorf("fields are only allowed for record items: %w", sketches.ErrConfiguration)
		}
		return sketches.LookupCodec(p.ItemType)
	}
	if len(p.Fields) == 0 {
		return nil, fmt.Errorf("record items need at least one field: %w", sketches.ErrConfiguration)
	}
	fields := make([]sketches.Codec, len(p.Fields))
	for i, name := range p.Fields {
		c, err := sketches.LookupCodec(name)
		if err != nil {
			return nil, err
		}
		fields[i] = c
	}
	return sketches.Record(fields...), nil
}

// queryValue converts a query string value into what codec expects.
func queryValue(codec sketches.Codec, raw string) (any, error) {
	switch codec.TypeID() {
	case "text", "bytea":
		return raw, nil
	case "bool":
		return strconv.ParseBool(raw)
	case "int2", "int4", "int8", "float4", "float8":
		return json.Number(raw), nil
	default:
		return nil, fmt.Errorf("%s items have to be sent in a POST body", codec.TypeID())
	}
}

// displayValue turns canonical bytes of a scalar type back into a JSON value.
func displayValue(t sketches.TypeID, b []byte) any {
	switch {
	case t == "text":
		return string(b)
	case t == "bool" && len(b) == 1:
		return b[0] != 0
	case t == "int2" && len(b) == 2:
		return int16(binary.LittleEndian.Uint16(b))
	case t == "int4" && len(b) == 4:
		return int32(binary.LittleEndian.Uint32(b))
	case t == "int8" && len(b) == 8:
		return int64(binary.LittleEndian.Uint64(b))
	case t == "float4" && len(b) == 4:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case t == "float8" && len(b) == 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		// bytea and anything unknown, base64 encoded by encoding/json
		return b
	}
}
