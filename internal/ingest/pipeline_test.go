package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"datalik/internal/kpi"
	"datalik/internal/schema"
)

func TestRun_CSVEndToEnd(t *testing.T) {
	t.Parallel()

	csv := strings.Join([]string{
		"Order Date,Sales,Region",
		"2024-01-01,10,north",
		"2024-01-02,20,south",
		"2024-01-03,bad,north",
	}, "\n")

	res, err := Run(context.Background(), RawUpload{
		Filename: "orders.csv",
		Format:   FormatCSV,
		Data:     []byte(csv),
	}, Options{})
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if !res.Promoted() {
		t.Fatalf("dataset not promoted, issues=%v", res.Issues)
	}

	wantTypes := map[string]schema.ColumnType{
		"order_date": schema.TypeDate,
		// "bad" is a minority cell; sales stays integer and the cell
		// becomes a counted null.
		"sales":  schema.TypeInteger,
		"region": schema.TypeText,
	}
	for _, c := range res.Columns {
		if c.Type != wantTypes[c.Name] {
			t.Fatalf("column %s type=%s, want %s", c.Name, c.Type, wantTypes[c.Name])
		}
	}
	if res.Dataset.RowCount() != 3 {
		t.Fatalf("RowCount=%d, want 3", res.Dataset.RowCount())
	}
	if got := res.Dataset.CoercionFailures["sales"]; got != 1 {
		t.Fatalf("sales coercion failures=%d, want 1", got)
	}
}

func TestRun_BadCellNullsOutAndMetricsStillCompute(t *testing.T) {
	t.Parallel()

	// The worked upload: two good sales values and one garbage cell.
	// The garbage cell nulls out, the failure is counted, and the KPI
	// pass over the promoted dataset still sees a numeric column.
	csv := "date,sales\n2024-01-01,10\n2024-01-02,20\n2024-01-03,bad\n"
	res, err := Run(context.Background(), RawUpload{
		Filename: "sales.csv",
		Format:   FormatCSV,
		Data:     []byte(csv),
	}, Options{})
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if !res.Promoted() {
		t.Fatalf("not promoted: %v", res.Issues)
	}
	if got := res.Dataset.CoercionFailures["sales"]; got != 1 {
		t.Fatalf("sales coercion failures=%d, want 1", got)
	}

	out, err := kpi.Compute(res.Dataset, kpi.Request{
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Granularity: kpi.GranularityDay,
	})
	if err != nil {
		t.Fatalf("Compute() err=%v", err)
	}
	got := map[string]float64{}
	for _, m := range out.Metrics {
		if m.Column == "sales" {
			got[m.Name] = m.Value
		}
	}
	if got["sum"] != 30 {
		t.Fatalf("sum=%v, want 30 (null excluded)", got["sum"])
	}
	if got["count"] != 3 {
		t.Fatalf("count=%v, want 3 (null row still counted)", got["count"])
	}
}

func TestRun_SemicolonDelimiterSniffed(t *testing.T) {
	t.Parallel()

	csv := "a;b\n1;2\n3;4\n"
	res, err := Run(context.Background(), RawUpload{
		Filename: "data.csv",
		Format:   FormatCSV,
		Data:     []byte(csv),
	}, Options{})
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if len(res.Columns) != 2 {
		t.Fatalf("got %d columns, want 2: %+v", len(res.Columns), res.Columns)
	}
	if res.Columns[0].Type != schema.TypeInteger {
		t.Fatalf("column a type=%s, want integer", res.Columns[0].Type)
	}
}

func TestRun_UnparseableBytesAreFormatError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		upload RawUpload
	}{
		{
			name: "binary garbage as xlsx",
			upload: RawUpload{
				Filename: "x.xlsx",
				Format:   FormatXLSX,
				Data:     []byte{0x00, 0x01, 0x02, 0x03},
			},
		},
		{
			name: "single opaque blob as csv",
			upload: RawUpload{
				Filename: "x.csv",
				Format:   FormatCSV,
				Data:     []byte("nodelimitershere"),
			},
		},
		{
			name: "html without a table",
			upload: RawUpload{
				Filename: "x.html",
				Format:   FormatHTML,
				Data:     []byte("<html><body><p>hello</p></body></html>"),
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Run(context.Background(), tt.upload, Options{})
			var fe *schema.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("err=%v, want *schema.FormatError", err)
			}
		})
	}
}

func TestRun_ValidationErrorsBlockPromotion(t *testing.T) {
	t.Parallel()

	// Duplicate column names are an error; the result carries the
	// issues but no dataset.
	csv := "amount,Amount\n1,2\n"
	res, err := Run(context.Background(), RawUpload{
		Filename: "dup.csv",
		Format:   FormatCSV,
		Data:     []byte(csv),
	}, Options{})
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if res.Promoted() {
		t.Fatalf("promoted despite duplicate columns")
	}
	if !schema.HasErrors(res.Issues) {
		t.Fatalf("no error issues recorded: %v", res.Issues)
	}
}

func TestRunRows_SQLSourcePath(t *testing.T) {
	t.Parallel()

	header := []string{"day", "revenue"}
	rows := [][]string{
		{"2024-02-01", "100.5"},
		{"2024-02-02", "200.25"},
	}
	res, err := RunRows(header, rows, "", Options{}, "sql")
	if err != nil {
		t.Fatalf("RunRows() err=%v", err)
	}
	if !res.Promoted() {
		t.Fatalf("not promoted: %v", res.Issues)
	}
	if res.Columns[1].Type != schema.TypeFloat {
		t.Fatalf("revenue type=%s, want float", res.Columns[1].Type)
	}
}

func TestRunRows_NoHeaderIsFormatError(t *testing.T) {
	t.Parallel()

	_, err := RunRows(nil, nil, "", Options{}, "sql")
	var fe *schema.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err=%v, want *schema.FormatError", err)
	}
}

func TestFormatFromFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		file string
		want Format
	}{
		{"report.CSV", FormatCSV},
		{"report.xlsx", FormatXLSX},
		{"report.XLS", FormatXLSX},
		{"table.html", FormatHTML},
		{"table.htm", FormatHTML},
		{"data.txt", FormatCSV},
	}
	for _, tt := range tests {
		if got := FormatFromFilename(tt.file); got != tt.want {
			t.Fatalf("FormatFromFilename(%q)=%s, want %s", tt.file, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	csv := "day,sales\n2024-01-01,10\n2024-01-02,\n"
	res, err := Run(context.Background(), RawUpload{
		Filename: "s.csv",
		Format:   FormatCSV,
		Data:     []byte(csv),
	}, Options{})
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}

	sum := res.Summarize()
	if sum.RowCount != 2 {
		t.Fatalf("RowCount=%d, want 2", sum.RowCount)
	}
	if len(sum.Columns) != 2 {
		t.Fatalf("Columns=%d, want 2", len(sum.Columns))
	}
	if sum.QualityScore >= 100 {
		t.Fatalf("QualityScore=%v, want below 100 (one missing cell)", sum.QualityScore)
	}
}
