// Package export exposes the current Dataset as an ordered sequence of
// typed rows plus column schema for downstream serializers, and ships
// the CSV serializer itself. Excel and PDF rendering are external
// collaborators consuming the same RowSource boundary.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"datalik/internal/schema"
)

// RowSource is the boundary handed to export collaborators: stable
// column schema plus rows in dataset order.
type RowSource interface {
	Schema() []schema.ColumnSchema
	Rows() []schema.Row
}

// DatasetSource adapts a Dataset to the RowSource boundary.
type DatasetSource struct {
	DS *schema.Dataset
}

func (s DatasetSource) Schema() []schema.ColumnSchema { return s.DS.Columns }
func (s DatasetSource) Rows() []schema.Row            { return s.DS.Rows }

// CSV serializes the source into a UTF-8 CSV byte buffer with a header
// row. Null cells become empty fields; dates render in canonical day
// form.
func CSV(src RowSource) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	cols := src.Schema()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, len(cols))
	for _, row := range src.Rows() {
		for i := range cols {
			if i < len(row) {
				rec[i] = row[i].String()
			} else {
				rec[i] = ""
			}
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// JSON renders the source as an array of name→value objects, the shape
// the dashboard's table widget consumes directly. Numeric cells stay
// numeric; null cells are JSON null.
func JSON(src RowSource) ([]byte, error) {
	cols := src.Schema()
	out := make([]map[string]any, 0, len(src.Rows()))
	for _, row := range src.Rows() {
		obj := make(map[string]any, len(cols))
		for i, c := range cols {
			if i >= len(row) || row[i].Null {
				obj[c.Name] = nil
				continue
			}
			switch c.Type {
			case schema.TypeInteger:
				obj[c.Name] = row[i].Int
			case schema.TypeFloat:
				obj[c.Name] = row[i].F
			default:
				obj[c.Name] = row[i].String()
			}
		}
		out = append(out, obj)
	}
	return json.Marshal(out)
}
