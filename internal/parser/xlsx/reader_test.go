package xlsx

import (
	"archive/zip"
	"bytes"
	"reflect"
	"testing"
)

// buildWorkbook assembles a minimal .xlsx archive in memory.
func buildWorkbook(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

const sharedStringsXML = `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <si><t>date</t></si>
  <si><t>sales</t></si>
  <si><r><t>north</t></r><r><t>-east</t></r></si>
</sst>`

const sheetXML = `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1">
      <c r="A1" t="s"><v>0</v></c>
      <c r="B1" t="s"><v>1</v></c>
      <c r="C1" t="inlineStr"><is><t>region</t></is></c>
    </row>
    <row r="2">
      <c r="A2" t="str"><v>2024-01-01</v></c>
      <c r="B2"><v>10</v></c>
      <c r="C2" t="s"><v>2</v></c>
    </row>
    <row r="3">
      <c r="A3" t="str"><v>2024-01-02</v></c>
      <c r="C3" t="b"><v>1</v></c>
    </row>
  </sheetData>
</worksheet>`

func TestRead_Workbook(t *testing.T) {
	t.Parallel()

	b := buildWorkbook(t, map[string]string{
		"xl/sharedStrings.xml":     sharedStringsXML,
		"xl/worksheets/sheet1.xml": sheetXML,
		"[Content_Types].xml":      `<Types/>`,
	})

	header, rows, err := Read(b, 0)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if !reflect.DeepEqual(header, []string{"date", "sales", "region"}) {
		t.Fatalf("header=%v", header)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// Shared string with runs is concatenated.
	if rows[0][2] != "north-east" {
		t.Fatalf("shared run cell=%q, want north-east", rows[0][2])
	}
	// Row 3 skips column B entirely; the gap pads to an empty cell and
	// the boolean cell renders as text.
	if !reflect.DeepEqual(rows[1], []string{"2024-01-02", "", "true"}) {
		t.Fatalf("sparse row=%v", rows[1])
	}
}

func TestRead_NoSharedStringsPart(t *testing.T) {
	t.Parallel()

	sheet := `<?xml version="1.0"?>
<worksheet><sheetData>
  <row r="1"><c r="A1" t="inlineStr"><is><t>n</t></is></c></row>
  <row r="2"><c r="A2"><v>42</v></c></row>
</sheetData></worksheet>`
	b := buildWorkbook(t, map[string]string{"xl/worksheets/sheet1.xml": sheet})

	header, rows, err := Read(b, 0)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if header[0] != "n" || rows[0][0] != "42" {
		t.Fatalf("header=%v rows=%v", header, rows)
	}
}

func TestRead_MaxRows(t *testing.T) {
	t.Parallel()

	sheet := `<?xml version="1.0"?>
<worksheet><sheetData>
  <row r="1"><c r="A1"><v>h</v></c></row>
  <row r="2"><c r="A2"><v>1</v></c></row>
  <row r="3"><c r="A3"><v>2</v></c></row>
  <row r="4"><c r="A4"><v>3</v></c></row>
</sheetData></worksheet>`
	b := buildWorkbook(t, map[string]string{"xl/worksheets/sheet1.xml": sheet})

	_, rows, err := Read(b, 2)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("plainly not an archive")},
		{"no worksheet", buildWorkbook(t, map[string]string{"[Content_Types].xml": "<Types/>"})},
		{"empty worksheet", buildWorkbook(t, map[string]string{
			"xl/worksheets/sheet1.xml": `<worksheet><sheetData/></worksheet>`,
		})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := Read(tt.data, 0); err == nil {
				t.Fatalf("Read() err=nil, want error")
			}
		})
	}
}

func TestColumnIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  string
		want int
	}{
		{"A1", 0},
		{"C12", 2},
		{"Z9", 25},
		{"AA1", 26},
		{"AB3", 27},
		{"", 0},
	}
	for _, tt := range tests {
		if got := columnIndex(tt.ref); got != tt.want {
			t.Fatalf("columnIndex(%q)=%d, want %d", tt.ref, got, tt.want)
		}
	}
}
