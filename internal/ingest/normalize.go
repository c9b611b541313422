package ingest

import (
	"strconv"
	"strings"
	"time"

	"datalik/internal/schema"
)

// Normalize coerces raw string rows into a typed Dataset following the
// inferred column schemas.
//
// Coercion rules:
//   - An empty cell is null; it does not count as a coercion failure.
//   - A non-empty cell that fails to parse as its column type becomes
//     null and increments the column's coercion-failure count. Nothing
//     is silently dropped.
//   - Date cells are normalized to day granularity even when the
//     source mixed layouts; the column's detected layout is tried
//     first, then the full layout list.
//   - Rows shorter than the schema are padded with nulls; longer rows
//     are truncated. (Shape problems were already reported by the
//     validator; normalization must still uphold the rectangle
//     invariant for whatever it is asked to promote.)
//
// Normalize is idempotent: feeding the string form of its output back
// through produces identical values and zero new failures, because
// every emitted form parses cleanly under the same rules.
func Normalize(cols []schema.ColumnSchema, rows [][]string) *schema.Dataset {
	ds := &schema.Dataset{
		Columns:          append([]schema.ColumnSchema(nil), cols...),
		Rows:             make([]schema.Row, 0, len(rows)),
		CoercionFailures: make(map[string]int, len(cols)),
	}

	for _, raw := range rows {
		row := make(schema.Row, len(cols))
		for i, col := range cols {
			var v string
			if i < len(raw) {
				v = strings.TrimSpace(raw[i])
			}
			cell, ok := coerce(v, col)
			if !ok {
				ds.CoercionFailures[col.Name]++
			}
			row[i] = cell
		}
		ds.Rows = append(ds.Rows, row)
	}

	return ds
}

// coerce converts one cell. ok is false only for a genuine coercion
// failure (non-empty input that does not parse).
func coerce(v string, col schema.ColumnSchema) (schema.Value, bool) {
	if v == "" {
		return schema.NullValue(col.Type), true
	}

	switch col.Type {
	case schema.TypeInteger:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return schema.NullValue(col.Type), false
		}
		return schema.Value{Kind: schema.TypeInteger, Int: n}, true

	case schema.TypeFloat:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return schema.NullValue(col.Type), false
		}
		return schema.Value{Kind: schema.TypeFloat, F: f}, true

	case schema.TypeDate:
		t, ok := parseDateForColumn(v, col.Layout)
		if !ok {
			return schema.NullValue(col.Type), false
		}
		return schema.Value{Kind: schema.TypeDate, T: truncateToDay(t)}, true

	case schema.TypeCategorical:
		return schema.Value{Kind: schema.TypeCategorical, S: v}, true

	default:
		return schema.Value{Kind: schema.TypeText, S: v}, true
	}
}

func parseDateForColumn(v, layout string) (time.Time, bool) {
	if layout != "" {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	// The source mixed layouts; fall back to the fixed list. The
	// canonical day form always parses here, which is what makes
	// Normalize idempotent for date columns.
	if t, _, ok := parseDateLoose(v); ok {
		return t, true
	}
	return time.Time{}, false
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Denormalize renders a Dataset back into raw string rows. It exists
// for the export boundary and for the idempotency property: feeding the
// result to Normalize with the same schemas reproduces the Dataset.
func Denormalize(ds *schema.Dataset) [][]string {
	out := make([][]string, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = v.String()
		}
		out = append(out, rec)
	}
	return out
}
