// Package csvx streams CSV uploads into aligned string records.
//
// The reader is encoding-aware (see encoding.go) and intentionally
// lenient: quoting is lazy, field counts are validated by the caller,
// and sampling helpers cut the input on a newline boundary so a
// truncated trailing record never produces a misaligned row.
package csvx

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Options control CSV reading. The zero value means: comma delimiter,
// header row present, edge whitespace trimmed.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// NoHeader indicates the first record is data, not column names.
	NoHeader bool
	// KeepSpace disables trimming of edge whitespace on fields.
	KeepSpace bool
	// MaxRows bounds how many data rows are read. Zero means no bound.
	MaxRows int
}

func (o Options) comma() rune {
	if o.Comma == 0 {
		return ','
	}
	return o.Comma
}

// RowFunc receives each data record with its 1-based line number.
// Returning an error stops the stream and propagates the error.
type RowFunc func(line int, record []string) error

// Stream decodes and reads CSV from r, calling fn for every data row.
// The header row (trimmed, BOM-stripped) is returned to the caller.
//
// Records with a field count different from the header are passed
// through unchanged; shape validation is the validator's job, not the
// parser's.
func Stream(ctx context.Context, r io.Reader, opt Options, fn RowFunc) ([]string, error) {
	dr, _, err := DecodeReader(r)
	if err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	cr := csv.NewReader(dr)
	cr.Comma = opt.comma()
	cr.FieldsPerRecord = -1 // caller validates shape
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	line := 0
	var header []string

	if !opt.NoHeader {
		hdr, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		line++
		header = make([]string, len(hdr))
		for i, h := range hdr {
			h = strings.TrimSpace(h)
			if i == 0 {
				h = strings.TrimPrefix(h, "\uFEFF")
			}
			header[i] = h
		}
	}

	rows := 0
	for {
		select {
		case <-ctx.Done():
			return header, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return header, nil
		}
		if err != nil {
			return header, fmt.Errorf("csv read line %d: %w", line+1, err)
		}
		line++

		out := make([]string, len(rec))
		for i, v := range rec {
			if !opt.KeepSpace {
				v = strings.TrimSpace(v)
			}
			out[i] = v
		}
		if err := fn(line, out); err != nil {
			return header, err
		}

		rows++
		if opt.MaxRows > 0 && rows >= opt.MaxRows {
			return header, nil
		}
	}
}

// Sample parses up to maxRows data rows from an in-memory byte sample.
// The sample is cut at the last newline first, so a half-line record at
// the end of a bounded read never reaches the CSV reader.
func Sample(b []byte, opt Options, maxRows int) ([]string, [][]string, error) {
	if i := bytes.LastIndexByte(b, '\n'); i > 0 {
		b = b[:i+1]
	}
	opt.MaxRows = maxRows

	var rows [][]string
	header, err := Stream(context.Background(), bytes.NewReader(b), opt, func(_ int, rec []string) error {
		rows = append(rows, rec)
		return nil
	})
	if err != nil {
		return header, rows, err
	}
	return header, rows, nil
}

// SniffDelimiter guesses the delimiter from the first line of the
// sample by counting candidate occurrences outside quotes. Falls back
// to ',' when nothing wins.
func SniffDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}

	best, bestN := ',', 0
	for _, cand := range []rune{',', ';', '\t', '|'} {
		n := 0
		inQuote := false
		for _, r := range string(line) {
			switch {
			case r == '"':
				inQuote = !inQuote
			case r == cand && !inQuote:
				n++
			}
		}
		if n > bestN {
			best, bestN = cand, n
		}
	}
	return best
}
