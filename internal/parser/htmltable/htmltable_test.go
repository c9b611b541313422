package htmltable

import (
	"reflect"
	"testing"
)

func TestExtract_TheadHeader(t *testing.T) {
	t.Parallel()

	html := `<html><body><table>
		<thead><tr><th>Date</th><th>Sales</th></tr></thead>
		<tbody>
			<tr><td>2024-01-01</td><td>10</td></tr>
			<tr><td>2024-01-02</td><td>20</td></tr>
		</tbody>
	</table></body></html>`

	header, rows, err := Extract([]byte(html))
	if err != nil {
		t.Fatalf("Extract() err=%v", err)
	}
	if !reflect.DeepEqual(header, []string{"Date", "Sales"}) {
		t.Fatalf("header=%v", header)
	}
	if !reflect.DeepEqual(rows, [][]string{
		{"2024-01-01", "10"},
		{"2024-01-02", "20"},
	}) {
		t.Fatalf("rows=%v", rows)
	}
}

func TestExtract_ThRowHeader(t *testing.T) {
	t.Parallel()

	html := `<table>
		<tr><th>a</th><th>b</th></tr>
		<tr><td>1</td><td>2</td></tr>
	</table>`

	header, rows, err := Extract([]byte(html))
	if err != nil {
		t.Fatalf("Extract() err=%v", err)
	}
	if !reflect.DeepEqual(header, []string{"a", "b"}) {
		t.Fatalf("header=%v", header)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestExtract_FirstRowFallbackHeader(t *testing.T) {
	t.Parallel()

	html := `<table>
		<tr><td>name</td><td>value</td></tr>
		<tr><td>x</td><td>1</td></tr>
	</table>`

	header, rows, err := Extract([]byte(html))
	if err != nil {
		t.Fatalf("Extract() err=%v", err)
	}
	if !reflect.DeepEqual(header, []string{"name", "value"}) {
		t.Fatalf("header=%v", header)
	}
	if !reflect.DeepEqual(rows, [][]string{{"x", "1"}}) {
		t.Fatalf("rows=%v", rows)
	}
}

func TestExtract_PicksLargestTable(t *testing.T) {
	t.Parallel()

	html := `<body>
	<table><tr><td>nav</td></tr></table>
	<table>
		<tr><th>k</th></tr>
		<tr><td>1</td></tr>
		<tr><td>2</td></tr>
	</table>
	</body>`

	header, rows, err := Extract([]byte(html))
	if err != nil {
		t.Fatalf("Extract() err=%v", err)
	}
	if header[0] != "k" || len(rows) != 2 {
		t.Fatalf("header=%v rows=%v, want the larger table", header, rows)
	}
}

func TestExtract_WhitespaceCollapsed(t *testing.T) {
	t.Parallel()

	html := `<table><tr><th>col</th></tr>
	<tr><td>
		multi
		line   value
	</td></tr></table>`

	_, rows, err := Extract([]byte(html))
	if err != nil {
		t.Fatalf("Extract() err=%v", err)
	}
	if rows[0][0] != "multi line value" {
		t.Fatalf("cell=%q, want collapsed whitespace", rows[0][0])
	}
}

func TestExtract_NoTable(t *testing.T) {
	t.Parallel()

	if _, _, err := Extract([]byte("<p>nothing tabular here</p>")); err == nil {
		t.Fatalf("Extract() err=nil, want error")
	}
}
