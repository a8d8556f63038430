// Package tabular loads CSV, Parquet, and JSON files into an in-memory
// columnar table for validation and profiling.
//
// A Table holds typed columns with a null mask. Column dtypes follow the
// naming reports and contracts use on the wire: "int64", "float64",
// "object", "bool", "datetime64[ns]".
package tabular

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for table construction.
var (
	// ErrColumnLengthMismatch indicates columns of differing lengths were combined.
	ErrColumnLengthMismatch = errors.New("columns have differing lengths")

	// ErrDuplicateColumn indicates two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column name")

	// ErrCellTypeMismatch indicates a cell value does not match the column dtype.
	ErrCellTypeMismatch = errors.New("cell value does not match column dtype")
)

type (
	// DType identifies the logical type of a column.
	DType int

	// Column is a named, typed column. Cells hold int64, float64, string,
	// bool, or time.Time values; a nil cell is null.
	Column struct {
		name  string
		dtype DType
		cells []any
	}

	// Table is an ordered collection of equal-length columns.
	Table struct {
		columns []*Column
		byName  map[string]*Column
		rows    int
	}
)

// Column dtypes.
const (
	DTypeString DType = iota
	DTypeInt
	DTypeFloat
	DTypeBool
	DTypeTimestamp
)

// String returns the wire name of the dtype.
func (d DType) String() string {
	switch d {
	case DTypeInt:
		return "int64"
	case DTypeFloat:
		return "float64"
	case DTypeBool:
		return "bool"
	case DTypeTimestamp:
		return "datetime64[ns]"
	case DTypeString:
		return "object"
	default:
		return "object"
	}
}

// IsNumeric reports whether the dtype participates in numeric profiling.
func (d DType) IsNumeric() bool {
	return d == DTypeInt || d == DTypeFloat
}

// NewColumn builds a column from loosely typed cells, coercing compatible
// Go types (int -> int64, float32 -> float64). Nil cells are nulls.
func NewColumn(name string, dtype DType, cells []any) (*Column, error) {
	coerced := make([]any, len(cells))

	for i, v := range cells {
		c, err := coerceCell(dtype, v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}

		coerced[i] = c
	}

	return &Column{name: name, dtype: dtype, cells: coerced}, nil
}

// newColumn wraps already well-typed cells without coercion checks.
func newColumn(name string, dtype DType, cells []any) *Column {
	return &Column{name: name, dtype: dtype, cells: cells}
}

func coerceCell(dtype DType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch dtype {
	case DTypeInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case DTypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case DTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case DTypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case DTypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	}

	return nil, fmt.Errorf("%w: %T is not %s", ErrCellTypeMismatch, v, dtype)
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// DType returns the column dtype.
func (c *Column) DType() DType { return c.dtype }

// Len returns the number of cells including nulls.
func (c *Column) Len() int { return len(c.cells) }

// IsNull reports whether the cell at row i is null.
func (c *Column) IsNull(i int) bool { return c.cells[i] == nil }

// Value returns the cell at row i, or nil when null.
func (c *Column) Value(i int) any { return c.cells[i] }

// NullCount returns the number of null cells.
func (c *Column) NullCount() int {
	n := 0

	for _, v := range c.cells {
		if v == nil {
			n++
		}
	}

	return n
}

// UniqueCount returns the number of distinct non-null values.
func (c *Column) UniqueCount() int {
	seen := make(map[any]struct{}, len(c.cells))

	for _, v := range c.cells {
		if v != nil {
			seen[v] = struct{}{}
		}
	}

	return len(seen)
}

// Float64 returns the cell at row i as a float64, widening integers.
// The second return is false for nulls and non-numeric cells.
func (c *Column) Float64(i int) (float64, bool) {
	switch v := c.cells[i].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Time returns the cell at row i as a time.Time.
// The second return is false for nulls and non-timestamp cells.
func (c *Column) Time(i int) (time.Time, bool) {
	t, ok := c.cells[i].(time.Time)
	return t, ok
}

// FloatValues returns all non-null numeric values together with the row
// index each value came from.
func (c *Column) FloatValues() ([]float64, []int) {
	values := make([]float64, 0, len(c.cells))
	rows := make([]int, 0, len(c.cells))

	for i := range c.cells {
		if v, ok := c.Float64(i); ok {
			values = append(values, v)
			rows = append(rows, i)
		}
	}

	return values, rows
}

// take builds a new column from the cells at the given row indices.
func (c *Column) take(indices []int) *Column {
	cells := make([]any, len(indices))
	for i, idx := range indices {
		cells[i] = c.cells[idx]
	}

	return &Column{name: c.name, dtype: c.dtype, cells: cells}
}

// NewTable combines columns into a table. All columns must have the same
// length and distinct names.
func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: columns,
		byName:  make(map[string]*Column, len(columns)),
	}

	if len(columns) > 0 {
		t.rows = columns[0].Len()
	}

	for _, col := range columns {
		if col.Len() != t.rows {
			return nil, fmt.Errorf("%w: %q has %d rows, want %d",
				ErrColumnLengthMismatch, col.name, col.Len(), t.rows)
		}

		if _, dup := t.byName[col.name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, col.name)
		}

		t.byName[col.name] = col
	}

	return t, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.columns) }

// Columns returns the columns in file order.
func (t *Table) Columns() []*Column { return t.columns }

// Names returns the column names in file order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.name
	}

	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	col, ok := t.byName[name]
	return col, ok
}

// DTypes maps each column name to its wire dtype name.
func (t *Table) DTypes() map[string]string {
	dtypes := make(map[string]string, len(t.columns))
	for _, col := range t.columns {
		dtypes[col.name] = col.dtype.String()
	}

	return dtypes
}

// take builds a new table holding only the rows at the given indices.
func (t *Table) take(indices []int) *Table {
	columns := make([]*Column, len(t.columns))
	byName := make(map[string]*Column, len(t.columns))

	for i, col := range t.columns {
		columns[i] = col.take(indices)
		byName[columns[i].name] = columns[i]
	}

	return &Table{columns: columns, byName: byName, rows: len(indices)}
}
