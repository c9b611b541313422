// Package xlsx reads the first worksheet of an .xlsx workbook into
// string records for the ingestion pipeline.
//
// The reader handles the subset of SpreadsheetML that business uploads
// actually use: shared strings, inline strings, numeric cells, and
// serial date numbers (left as numbers; the inferencer types them from
// context). Styles, formulas results, and multiple sheets beyond the
// first are out of scope.
package xlsx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

type sharedStrings struct {
	Items []struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type worksheet struct {
	Rows []struct {
		R     int `xml:"r,attr"`
		Cells []struct {
			R string `xml:"r,attr"` // cell reference, e.g. "C12"
			T string `xml:"t,attr"` // cell type: s, str, inlineStr, b, n (default)
			V  string `xml:"v"`
			IS struct {
				T string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// Read parses workbook bytes and returns the header row plus up to
// maxRows data rows (maxRows <= 0 means all). The returned records are
// padded to the widest row so every record has the same length.
//
// Errors are wrapped parse failures; a corrupt archive surfaces as an
// error rather than a partial table.
func Read(b []byte, maxRows int) ([]string, [][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx archive: %w", err)
	}

	shared, err := readSharedStrings(zr)
	if err != nil {
		return nil, nil, err
	}

	sheetName := firstWorksheetName(zr)
	if sheetName == "" {
		return nil, nil, fmt.Errorf("xlsx: no worksheet found")
	}

	raw, err := readZipFile(zr, sheetName)
	if err != nil {
		return nil, nil, err
	}

	var ws worksheet
	if err := xml.Unmarshal(raw, &ws); err != nil {
		return nil, nil, fmt.Errorf("parse worksheet: %w", err)
	}

	records := make([][]string, 0, len(ws.Rows))
	width := 0
	for _, row := range ws.Rows {
		rec := make([]string, 0, len(row.Cells))
		for _, c := range row.Cells {
			col := columnIndex(c.R)
			for len(rec) < col {
				rec = append(rec, "")
			}
			rec = append(rec, cellValue(c.T, c.V, c.IS.T, shared))
		}
		if len(rec) > width {
			width = len(rec)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("xlsx: empty worksheet")
	}

	for i := range records {
		for len(records[i]) < width {
			records[i] = append(records[i], "")
		}
		for j := range records[i] {
			records[i][j] = strings.TrimSpace(records[i][j])
		}
	}

	header := records[0]
	rows := records[1:]
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return header, rows, nil
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	raw, err := readZipFile(zr, "xl/sharedStrings.xml")
	if err != nil {
		// Workbooks without string cells omit the part entirely.
		return nil, nil
	}
	var ss sharedStrings
	if err := xml.Unmarshal(raw, &ss); err != nil {
		return nil, fmt.Errorf("parse shared strings: %w", err)
	}
	out := make([]string, len(ss.Items))
	for i, si := range ss.Items {
		if si.T != "" {
			out[i] = si.T
			continue
		}
		var b strings.Builder
		for _, r := range si.Runs {
			b.WriteString(r.T)
		}
		out[i] = b.String()
	}
	return out, nil
}

// firstWorksheetName picks the lexically first sheet part. Resolving
// workbook.xml relationships would be more faithful, but sheet1.xml
// first matches how every common producer orders parts.
func firstWorksheetName(zr *zip.Reader) string {
	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("xlsx: missing part %s", name)
}

func cellValue(typ, v, inline string, shared []string) string {
	switch typ {
	case "s":
		ix, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || ix < 0 || ix >= len(shared) {
			return ""
		}
		return shared[ix]
	case "inlineStr":
		return inline
	case "b":
		if strings.TrimSpace(v) == "1" {
			return "true"
		}
		return "false"
	default: // "n", "str", and untyped
		return v
	}
}

// columnIndex converts the letter part of a cell reference ("C12" → 2).
func columnIndex(ref string) int {
	n := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		n = n*26 + int(r-'A'+1)
	}
	if n == 0 {
		return 0
	}
	return n - 1
}
