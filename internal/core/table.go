package core

// table.go defines the in-memory tabular value passed between pipeline stages.
//
// Tables are treated as immutable: every transformation returns a new Table
// and leaves its input untouched, so a source table can be reused across
// years without one stage observing another's edits.

import "slices"

// Value is a single cell. A nil Value is a missing (null) cell.
type Value = any

// Row maps column name to cell value. Columns absent from the map read as nil.
type Row map[string]Value

// Table is an ordered set of named columns and their rows.
type Table struct {
	Name    string   // Source label used in logs and errors: "geo", "adi", "prices"
	Columns []string // Column order, preserved through every transformation
	Rows    []Row

	// Types holds declared warehouse types. Columns absent from it are
	// inferred from their cells when the table is published.
	Types map[string]ColumnType
}

// NewTable builds a Table, copying columns and rows so the caller's slices
// can be reused.
func NewTable(name string, columns []string, rows []Row) Table {
	t := Table{
		Name:    name,
		Columns: slices.Clone(columns),
		Rows:    make([]Row, len(rows)),
	}
	for i, r := range rows {
		t.Rows[i] = r.clone()
	}
	return t
}

// Type returns the declared type of a column, or "" when none is declared.
func (t Table) Type(name string) ColumnType {
	return t.Types[name]
}

// WithTypes returns a copy whose declared types are merged with types.
// Entries in types replace existing declarations.
func (t Table) WithTypes(types map[string]ColumnType) Table {
	out := t.Named(t.Name)
	if out.Types == nil {
		out.Types = make(map[string]ColumnType, len(types))
	}
	for c, typ := range types {
		out.Types[c] = typ
	}
	return out
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// IsEmpty reports whether the table has neither columns nor rows.
func (t Table) IsEmpty() bool {
	return len(t.Columns) == 0 && len(t.Rows) == 0
}

// HasColumn reports whether name is one of the table's columns.
func (t Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// Column returns every value of a column in row order.
func (t Table) Column(name string) []Value {
	out := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// DropColumns returns a copy without the named columns.
// Names that are not present are ignored.
func (t Table) DropColumns(names ...string) Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	return t.dropWhere(func(col string) bool { return drop[col] })
}

func (t Table) dropWhere(pred func(col string) bool) Table {
	out := Table{Name: t.Name, Rows: make([]Row, len(t.Rows)), Types: t.cloneTypes()}
	var dropped []string
	for _, c := range t.Columns {
		if pred(c) {
			dropped = append(dropped, c)
			delete(out.Types, c)
			continue
		}
		out.Columns = append(out.Columns, c)
	}
	for i, r := range t.Rows {
		nr := r.clone()
		for _, c := range dropped {
			delete(nr, c)
		}
		out.Rows[i] = nr
	}
	return out
}

// Filter returns a copy holding only the rows for which keep returns true.
func (t Table) Filter(keep func(Row) bool) Table {
	out := Table{Name: t.Name, Columns: slices.Clone(t.Columns), Types: t.cloneTypes()}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r.clone())
		}
	}
	return out
}

// WithColumn returns a copy where column name holds fn(row) for every row.
// A new column is appended to the column order; an existing one keeps its position.
// Any declared type for name is cleared.
func (t Table) WithColumn(name string, fn func(Row) Value) Table {
	out := Table{Name: t.Name, Columns: slices.Clone(t.Columns), Rows: make([]Row, len(t.Rows)), Types: t.cloneTypes()}
	delete(out.Types, name)
	if !out.HasColumn(name) {
		out.Columns = append(out.Columns, name)
	}
	for i, r := range t.Rows {
		nr := r.clone()
		nr[name] = fn(r)
		out.Rows[i] = nr
	}
	return out
}

// Named returns a copy of the table carrying a different source label.
func (t Table) Named(name string) Table {
	out := NewTable(name, t.Columns, t.Rows)
	out.Types = t.cloneTypes()
	return out
}

func (t Table) cloneTypes() map[string]ColumnType {
	if len(t.Types) == 0 {
		return nil
	}
	out := make(map[string]ColumnType, len(t.Types))
	for c, typ := range t.Types {
		out[c] = typ
	}
	return out
}

func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
