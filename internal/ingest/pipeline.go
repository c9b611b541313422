package ingest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"datalik/internal/parser/csvx"
	"datalik/internal/parser/htmltable"
	"datalik/internal/parser/xlsx"
	"datalik/internal/schema"
)

// Format is the declared upload format hint.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// FormatFromFilename maps a declared filename to a format hint.
// Unknown extensions default to CSV, the dominant upload kind.
func FormatFromFilename(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
		return FormatXLSX
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatCSV
	}
}

// RawUpload is the ephemeral input to the pipeline: bytes plus the
// caller's declared filename. It exists only during ingestion.
type RawUpload struct {
	Filename string
	Format   Format
	Data     []byte
}

// Options tune the pipeline. The zero value uses the documented
// defaults.
type Options struct {
	// SampleRows bounds type inference. Zero means DefaultSampleRows.
	SampleRows int
	// CategoricalRatio is the distinct/non-empty ceiling for the
	// categorical type. Zero means the built-in default.
	CategoricalRatio float64
	// Template optionally names required columns for the upload.
	Template *Template
}

func (o Options) sampleRows() int {
	if o.SampleRows <= 0 {
		return DefaultSampleRows
	}
	return o.SampleRows
}

// Result is the outcome of one ingestion run. Dataset is nil when the
// issue list contains errors; Issues is always populated so the caller
// can render partial feedback either way.
type Result struct {
	Dataset *schema.Dataset
	Columns []schema.ColumnSchema
	Issues  []schema.ValidationIssue
	// Encoding is the detected input encoding (CSV only; empty for
	// formats that carry their own encoding).
	Encoding string
	// QualityScore is the 0-100 data quality figure shown alongside
	// the upload summary.
	QualityScore float64
}

// Promoted reports whether the run produced a Dataset.
func (r *Result) Promoted() bool { return r.Dataset != nil }

// Run executes the full pipeline on one upload: parse, infer on a
// bounded sample, validate, and (when no error-severity issues exist)
// normalize into a Dataset.
//
// Errors:
//   - *schema.FormatError when the bytes cannot be parsed as a table
//     at all. This is the only error Run returns; every recoverable
//     problem comes back inside Result.Issues.
func Run(ctx context.Context, up RawUpload, opt Options) (*Result, error) {
	header, rows, encoding, err := parse(ctx, up)
	if err != nil {
		return nil, err
	}
	return RunRows(header, rows, encoding, opt, string(up.Format))
}

// RunRows executes inference, validation, and normalization on rows
// that are already parsed — SQL-sourced extracts take this entry.
func RunRows(header []string, rows [][]string, encoding string, opt Options, format string) (*Result, error) {
	if len(header) == 0 {
		return nil, &schema.FormatError{Format: format, Reason: "no header row"}
	}

	sample := rows
	if n := opt.sampleRows(); len(sample) > n {
		sample = sample[:n]
	}
	cols := InferColumns(header, sample, opt.CategoricalRatio)

	issues := Validate(header, cols, rows, encoding, opt.Template)

	res := &Result{
		Columns:      cols,
		Issues:       issues,
		Encoding:     encoding,
		QualityScore: QualityScore(cols, rows),
	}
	if schema.HasErrors(issues) {
		return res, nil
	}

	res.Dataset = Normalize(cols, rows)
	return res, nil
}

// parse dispatches on the format hint and returns raw string records.
// CSV is streamed through the encoding-detecting reader; xlsx and html
// are in-memory by nature of their container formats.
func parse(ctx context.Context, up RawUpload) (header []string, rows [][]string, encoding string, err error) {
	switch up.Format {
	case FormatXLSX:
		header, rows, err = xlsx.Read(up.Data, 0)
		if err != nil {
			return nil, nil, "", &schema.FormatError{Format: "xlsx", Reason: "corrupt workbook", Err: err}
		}
		return header, rows, "", nil

	case FormatHTML:
		header, rows, err = htmltable.Extract(up.Data)
		if err != nil {
			return nil, nil, "", &schema.FormatError{Format: "html", Reason: "no table in document", Err: err}
		}
		return header, rows, "", nil

	default:
		encoding = csvx.DetectEncoding(up.Data)
		opt := csvx.Options{Comma: csvx.SniffDelimiter(up.Data)}
		header, err = csvx.Stream(ctx, bytes.NewReader(up.Data), opt, func(_ int, rec []string) error {
			rows = append(rows, rec)
			return nil
		})
		if err != nil {
			return nil, nil, "", &schema.FormatError{Format: "csv", Reason: "unreadable delimiter-separated data", Err: err}
		}
		if len(header) <= 1 && len(rows) == 0 {
			return nil, nil, "", &schema.FormatError{Format: "csv", Reason: "no delimiter found"}
		}
		return header, rows, encoding, nil
	}
}

// Summary is the upload response payload: row count, column list with
// types, warnings, and per-column coercion failures.
type Summary struct {
	RowCount         int                      `json:"row_count"`
	Columns          []schema.ColumnSchema    `json:"columns"`
	Warnings         []schema.ValidationIssue `json:"warnings,omitempty"`
	CoercionFailures map[string]int           `json:"coercion_failures,omitempty"`
	Encoding         string                   `json:"encoding,omitempty"`
	QualityScore     float64                  `json:"quality_score"`
}

// Summarize builds the success payload for a promoted result.
func (r *Result) Summarize() Summary {
	s := Summary{
		Columns:      r.Columns,
		Warnings:     schema.Warnings(r.Issues),
		Encoding:     r.Encoding,
		QualityScore: r.QualityScore,
	}
	if r.Dataset != nil {
		s.RowCount = r.Dataset.RowCount()
		s.CoercionFailures = r.Dataset.CoercionFailures
	}
	return s
}
