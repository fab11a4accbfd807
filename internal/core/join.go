package core

import (
	"slices"
	"strings"
)

// OuterJoin performs a full outer join of left and right on key.
//
// Every left row appears in the output, followed by the right rows that
// matched nothing. Fields absent on one side are nil. When both sides carry
// the same column, the left value wins unless it is nil. The output keeps the
// left column order and appends right-only columns after it. Duplicate keys
// produce one output row per matching pair. Rows with a nil key never match.
func OuterJoin(left, right Table, key string) (Table, error) {
	if !left.HasColumn(key) {
		return Table{}, &KeyColumnError{Table: left.Name, Column: key}
	}
	if !right.HasColumn(key) {
		return Table{}, &KeyColumnError{Table: right.Name, Column: key}
	}

	columns := slices.Clone(left.Columns)
	for _, c := range right.Columns {
		if !slices.Contains(columns, c) {
			columns = append(columns, c)
		}
	}

	index := make(map[string][]int)
	for i, r := range right.Rows {
		if k, ok := joinKey(r[key]); ok {
			index[k] = append(index[k], i)
		}
	}

	out := Table{Name: joinName(left.Name, right.Name), Columns: columns, Types: right.cloneTypes()}
	for c, typ := range left.Types {
		if out.Types == nil {
			out.Types = make(map[string]ColumnType, len(left.Types))
		}
		out.Types[c] = typ
	}
	matched := make([]bool, len(right.Rows))

	for _, l := range left.Rows {
		k, ok := joinKey(l[key])
		hits := index[k]
		if !ok || len(hits) == 0 {
			out.Rows = append(out.Rows, combine(columns, l, nil))
			continue
		}
		for _, i := range hits {
			matched[i] = true
			out.Rows = append(out.Rows, combine(columns, l, right.Rows[i]))
		}
	}

	for i, r := range right.Rows {
		if !matched[i] {
			out.Rows = append(out.Rows, combine(columns, nil, r))
		}
	}

	return out, nil
}

// MergeSources joins geo with deprivation and then with prices on the county
// key and removes columns the warehouse cannot name. Empty inputs are
// skipped, so any subset of the three sources can be merged.
func MergeSources(geo, adi, prices Table) (Table, error) {
	var merged Table
	started := false
	for _, t := range []Table{geo, adi, prices} {
		if t.IsEmpty() {
			continue
		}
		if !started {
			if !t.HasColumn(KeyColumn) {
				return Table{}, &KeyColumnError{Table: t.Name, Column: KeyColumn}
			}
			merged, started = t, true
			continue
		}
		var err error
		merged, err = OuterJoin(merged, t, KeyColumn)
		if err != nil {
			return Table{}, err
		}
	}
	return SanitizeColumns(merged).Named("merged"), nil
}

// SanitizeColumns drops every column whose name begins with a decimal digit.
func SanitizeColumns(t Table) Table {
	return t.dropWhere(func(col string) bool {
		return col != "" && col[0] >= '0' && col[0] <= '9'
	})
}

// NormalizeKeys pads the key column of t to full width.
// A table without the key column is returned unchanged.
func NormalizeKeys(t Table) Table {
	if !t.HasColumn(KeyColumn) {
		return t
	}
	return t.WithColumn(KeyColumn, func(r Row) Value { return NormalizeKey(r[KeyColumn]) }).
		WithTypes(map[string]ColumnType{KeyColumn: TypeString})
}

// FilterRegion keeps the rows whose county key starts with region.
// AllRegions keeps everything.
func FilterRegion(t Table, region string) Table {
	if IsAllRegions(region) || !t.HasColumn(KeyColumn) {
		return t
	}
	return t.Filter(func(r Row) bool {
		k, ok := joinKey(r[KeyColumn])
		return ok && strings.HasPrefix(k, region)
	})
}

// StampYear sets the year column of every row.
func StampYear(t Table, year int) Table {
	y := int64(year)
	return t.WithColumn(YearColumn, func(Row) Value { return y }).
		WithTypes(map[string]ColumnType{YearColumn: TypeInteger})
}

func joinKey(v Value) (string, bool) {
	if v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, s != ""
	}
	s := FormatCode(v)
	return s, s != ""
}

func combine(columns []string, l, r Row) Row {
	out := make(Row, len(columns))
	for _, c := range columns {
		var v Value
		if l != nil {
			v = l[c]
		}
		if v == nil && r != nil {
			v = r[c]
		}
		out[c] = v
	}
	return out
}

func joinName(l, r string) string {
	switch {
	case l == "":
		return r
	case r == "":
		return l
	default:
		return l + "+" + r
	}
}
