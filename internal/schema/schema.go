// Package schema defines the typed tabular model shared by the whole
// pipeline: column schemas, the Dataset produced by a successful upload,
// and the structured issue/error values every stage reports with.
//
// Design constraints:
//   - Column types form a closed set with an explicit inference order
//     (integer → float → date → categorical → text).
//   - Problems found during validation are data, not exceptions; a
//     dataset with only warnings must still be promotable.
//   - The Dataset is the single source of truth for chart/export
//     consumers; column order is stable for the session.
package schema

import "time"

// ColumnType is the closed set of types a column can be inferred as.
type ColumnType string

const (
	TypeInteger     ColumnType = "integer"
	TypeFloat       ColumnType = "float"
	TypeDate        ColumnType = "date"
	TypeCategorical ColumnType = "categorical"
	TypeText        ColumnType = "text"
)

// Numeric reports whether values of this type participate in sums and
// averages.
func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeDate, TypeCategorical, TypeText:
		return true
	}
	return false
}

// ColumnSchema describes one column of a dataset.
//
// Name is unique within a dataset and already normalized to a safe
// lowercase identifier. Nullable is set when the sampled data contained
// missing values for the column.
type ColumnSchema struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`

	// Layout is the detected date layout for TypeDate columns
	// (Go reference-time form). Empty for other types.
	Layout string `json:"layout,omitempty"`
}

// Value is one typed cell. Exactly one of the typed fields is
// meaningful depending on the column type; Null marks a missing or
// uncoercible cell.
//
// Values are stored positionally per row, aligned with the Dataset's
// column order.
type Value struct {
	Null bool       `json:"null,omitempty"`
	Int  int64      `json:"int,omitempty"`
	F    float64    `json:"float,omitempty"`
	T    time.Time  `json:"time,omitempty"`
	S    string     `json:"str,omitempty"`
	Kind ColumnType `json:"kind,omitempty"`
}

// NullValue returns the null cell for a column of type t.
func NullValue(t ColumnType) Value { return Value{Null: true, Kind: t} }

// Float returns the cell as a float64 for numeric cells.
// Null and non-numeric cells return (0, false).
func (v Value) Float() (float64, bool) {
	if v.Null {
		return 0, false
	}
	switch v.Kind {
	case TypeInteger:
		return float64(v.Int), true
	case TypeFloat:
		return v.F, true
	}
	return 0, false
}

// String renders the cell the way the export layer and group keys need
// it: canonical day form for dates, plain decimal for numerics, empty
// string for nulls.
func (v Value) String() string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case TypeInteger:
		return formatInt(v.Int)
	case TypeFloat:
		return formatFloat(v.F)
	case TypeDate:
		return v.T.Format(DateLayout)
	default:
		return v.S
	}
}

// DateLayout is the canonical day granularity every date cell is
// normalized to, regardless of the source layout.
const DateLayout = "2006-01-02"

// Row is one positional record of a Dataset.
type Row []Value

// Dataset is the normalized, typed result of one successful upload.
//
// Invariant: every row has exactly len(Columns) values (possibly null),
// in column order. The Normalizer enforces this; downstream readers may
// rely on it.
type Dataset struct {
	Columns []ColumnSchema `json:"columns"`
	Rows    []Row          `json:"rows"`

	// CoercionFailures counts, per column name, cells that could not be
	// converted to the column's inferred type and were recorded as null.
	CoercionFailures map[string]int `json:"coercion_failures,omitempty"`
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int { return len(d.Rows) }

// NumericColumns returns the schemas of all numeric columns in order.
func (d *Dataset) NumericColumns() []ColumnSchema {
	out := make([]ColumnSchema, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.Type.Numeric() {
			out = append(out, c)
		}
	}
	return out
}

// DateColumn returns the index of the first date column, or -1 when the
// dataset has none. KPI windows are anchored on this column.
func (d *Dataset) DateColumn() int {
	for i, c := range d.Columns {
		if c.Type == TypeDate {
			return i
		}
	}
	return -1
}
