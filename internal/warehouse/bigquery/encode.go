package bigquery

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"time"

	bq "cloud.google.com/go/bigquery"

	"github.com/JonMunkholm/countydash/internal/core"
)

var fieldTypes = map[core.ColumnType]bq.FieldType{
	core.TypeString:    bq.StringFieldType,
	core.TypeInteger:   bq.IntegerFieldType,
	core.TypeFloat:     bq.FloatFieldType,
	core.TypeBoolean:   bq.BooleanFieldType,
	core.TypeTimestamp: bq.TimestampFieldType,
	core.TypeGeography: bq.GeographyFieldType,
}

// Schema converts column types to a BigQuery schema. Every field is nullable.
func Schema(columns []core.ColumnSchema) bq.Schema {
	schema := make(bq.Schema, len(columns))
	for i, c := range columns {
		ft, ok := fieldTypes[c.Type]
		if !ok {
			ft = bq.StringFieldType
		}
		schema[i] = &bq.FieldSchema{Name: c.Name, Type: ft}
	}
	return schema
}

// WriteNDJSON writes one JSON object per row, with every cell coerced to its
// column type. Missing cells are written as null.
func WriteNDJSON(w io.Writer, t core.Table, columns []core.ColumnSchema) error {
	enc := json.NewEncoder(w)
	obj := make(map[string]any, len(columns))
	for i, r := range t.Rows {
		for _, c := range columns {
			v := core.Coerce(r[c.Name], c.Type)
			if ts, ok := v.(time.Time); ok {
				v = ts.UTC().Format(time.RFC3339Nano)
			}
			obj[c.Name] = v
		}
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// columnTypes maps a result schema back to declared column types.
// Field types without a core equivalent are left undeclared.
func columnTypes(schema bq.Schema) map[string]core.ColumnType {
	out := make(map[string]core.ColumnType, len(schema))
	for _, f := range schema {
		switch f.Type {
		case bq.NumericFieldType, bq.BigNumericFieldType:
			out[f.Name] = core.TypeFloat
			continue
		}
		for typ, ft := range fieldTypes {
			if ft == f.Type {
				out[f.Name] = typ
				break
			}
		}
	}
	return out
}

func fieldNames(schema bq.Schema) []string {
	names := make([]string, len(schema))
	for i, f := range schema {
		names[i] = f.Name
	}
	return names
}

// rowFromValues maps a result row onto the pipeline's cell types.
func rowFromValues(schema bq.Schema, values []bq.Value) core.Row {
	row := make(core.Row, len(schema))
	for i, f := range schema {
		if i < len(values) {
			row[f.Name] = convertValue(values[i])
		} else {
			row[f.Name] = nil
		}
	}
	return row
}

func convertValue(v bq.Value) core.Value {
	switch x := v.(type) {
	case nil, string, int64, float64, bool, time.Time:
		return x
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	case []byte:
		return string(x)
	case fmt.Stringer:
		// civil.Date, civil.Time and civil.DateTime
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
