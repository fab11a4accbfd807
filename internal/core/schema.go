package core

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ColumnSchema is one column of a warehouse table.
type ColumnSchema struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// InferSchema derives a warehouse schema for t in column order.
//
// Overrides win, then the table's declared types. Otherwise a column is BOOLEAN, INTEGER, FLOAT or TIMESTAMP
// when every non-nil cell has that Go type (mixed integers and floats widen
// to FLOAT), and STRING in every other case, including all-nil columns.
func InferSchema(t Table, overrides SchemaOverrides) []ColumnSchema {
	out := make([]ColumnSchema, len(t.Columns))
	for i, c := range t.Columns {
		if typ, ok := overrides[c]; ok {
			out[i] = ColumnSchema{Name: c, Type: typ}
			continue
		}
		if typ := t.Type(c); typ != "" {
			out[i] = ColumnSchema{Name: c, Type: typ}
			continue
		}
		out[i] = ColumnSchema{Name: c, Type: inferColumn(t.Column(c))}
	}
	return out
}

func inferColumn(values []Value) ColumnType {
	var typ ColumnType
	for _, v := range values {
		if v == nil {
			continue
		}
		vt := valueType(v)
		switch {
		case typ == "":
			typ = vt
		case typ == vt:
		case isNumeric(typ) && isNumeric(vt):
			typ = TypeFloat
		default:
			return TypeString
		}
	}
	if typ == "" {
		return TypeString
	}
	return typ
}

func valueType(v Value) ColumnType {
	switch v.(type) {
	case bool:
		return TypeBoolean
	case int, int32, int64:
		return TypeInteger
	case float32, float64:
		return TypeFloat
	case time.Time:
		return TypeTimestamp
	default:
		return TypeString
	}
}

func isNumeric(t ColumnType) bool {
	return t == TypeInteger || t == TypeFloat
}

// Coerce converts v to the Go representation of typ: int64, float64, bool,
// time.Time or string. Nil, NaN and unconvertible numeric cells become nil.
func Coerce(v Value, typ ColumnType) Value {
	if v == nil {
		return nil
	}
	switch typ {
	case TypeInteger:
		switch x := v.(type) {
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case int64:
			return x
		}
		f, ok := ParseNumber(v)
		if !ok || f != math.Trunc(f) {
			return nil
		}
		return int64(f)
	case TypeFloat:
		f, ok := ParseNumber(v)
		if !ok {
			return nil
		}
		return f
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x
		case string:
			b, err := strconv.ParseBool(CleanCell(x))
			if err != nil {
				return nil
			}
			return b
		}
		return nil
	case TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts
		}
		return nil
	default:
		switch x := v.(type) {
		case string:
			return x
		case time.Time:
			return x.Format(time.RFC3339Nano)
		case float64:
			if math.IsNaN(x) {
				return nil
			}
			return strconv.FormatFloat(x, 'f', -1, 64)
		default:
			return fmt.Sprint(x)
		}
	}
}
