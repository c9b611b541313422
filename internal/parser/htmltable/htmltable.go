// Package htmltable extracts the largest tabular region of an HTML
// document into string records for the ingestion pipeline.
//
// Dashboards regularly receive tables copied out of web reports or
// exported as .html by spreadsheet tools. Extraction is resilient by
// design: malformed rows are skipped rather than failing the page.
package htmltable

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract parses HTML bytes and returns the header plus data rows of
// the largest <table> in the document.
//
// Header selection:
//   - <thead> cells win when present,
//   - otherwise a first row consisting of <th> cells,
//   - otherwise the first row is taken as the header.
//
// Rows with a cell count different from the header pass through
// unchanged; shape checking belongs to the validator.
func Extract(b []byte) ([]string, [][]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	table := largestTable(doc)
	if table == nil {
		return nil, nil, fmt.Errorf("html: no table found")
	}

	var header []string
	table.Find("thead tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		header = append(header, cellText(cell))
	})

	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ParentsFiltered("thead").Length() > 0 {
			return
		}
		var rec []string
		isHeaderRow := true
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			rec = append(rec, cellText(cell))
			if goquery.NodeName(cell) != "th" {
				isHeaderRow = false
			}
		})
		if len(rec) == 0 {
			return
		}
		if header == nil && isHeaderRow {
			header = rec
			return
		}
		rows = append(rows, rec)
	})

	if header == nil {
		if len(rows) == 0 {
			return nil, nil, fmt.Errorf("html: table has no rows")
		}
		header, rows = rows[0], rows[1:]
	}
	return header, rows, nil
}

// largestTable picks the <table> with the most rows, which skips the
// nav/layout tables that wrap real report tables in exported pages.
func largestTable(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestRows := 0
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		n := t.Find("tr").Length()
		if n > bestRows {
			best = t
			bestRows = n
		}
	})
	return best
}

func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
