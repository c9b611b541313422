// Package ingest implements the upload pipeline: bounded sampling and
// per-column type inference, structural validation, and normalization
// into a typed Dataset ready for the session cache and KPI calculator.
//
// Design constraints:
//   - Inference is bounded (sample rows, not the full upload) and
//     side-effect free.
//   - Validation collects issues instead of failing outright, so a
//     dataset with only warnings can still be promoted.
//   - Normalization is idempotent: re-running it on its own output
//     yields the same values and zero additional coercion failures.
package ingest

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"datalik/internal/schema"
)

// Inference knobs. Defaults apply when the corresponding Options field
// is zero.
const (
	DefaultSampleRows = 100

	// defaultCategoricalRatio is the distinct/non-empty ceiling under
	// which a text column is typed categorical.
	defaultCategoricalRatio = 0.5

	// categoricalMinSample guards against typing tiny samples as
	// categorical on noise.
	categoricalMinSample = 10
)

// dateLayouts is the fixed list of layouts tried, in order, when typing
// a column as date. First match wins per cell; the column layout is the
// majority layout across the sample.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// InferColumns infers one ColumnSchema per header column from sampled
// rows, trying parses in priority order: integer → float → date →
// categorical → text. A column takes a numeric or date type when a
// strict majority of its non-empty sampled values parses as that type;
// the minority cells become counted nulls during normalization instead
// of demoting the whole column to text.
//
// Edge cases:
//   - A column with no non-empty sample values is text and nullable.
//   - Rows shorter than the header contribute nothing to the missing
//     columns (validation reports the shape problem separately).
//   - Header names are normalized to unique lowercase identifiers.
func InferColumns(header []string, rows [][]string, categoricalRatio float64) []schema.ColumnSchema {
	if categoricalRatio <= 0 || categoricalRatio >= 1 {
		categoricalRatio = defaultCategoricalRatio
	}

	names := normalizeHeader(header)
	out := make([]schema.ColumnSchema, len(names))

	for col := range names {
		seen := 0
		missing := false
		intN := 0
		floatN := 0 // numeric but not integral
		dateN := 0
		layoutCounts := map[string]int{}
		distinct := map[string]struct{}{}

		for _, r := range rows {
			if col >= len(r) {
				continue
			}
			v := strings.TrimSpace(r[col])
			if v == "" {
				missing = true
				continue
			}
			seen++

			// Each value counts toward exactly one kind: integer,
			// non-integral numeric, or date.
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				intN++
			} else if _, err := strconv.ParseFloat(v, 64); err == nil {
				floatN++
			} else if _, lay, ok := parseDateLoose(v); ok {
				dateN++
				layoutCounts[lay]++
			}
			distinct[v] = struct{}{}
		}

		cs := schema.ColumnSchema{Name: names[col], Nullable: missing || seen == 0}
		numericN := intN + floatN

		switch {
		case seen == 0:
			cs.Type = schema.TypeText
		case majority(numericN, seen) && floatN == 0:
			cs.Type = schema.TypeInteger
			cs.Nullable = cs.Nullable || intN < seen
		case majority(numericN, seen):
			cs.Type = schema.TypeFloat
			cs.Nullable = cs.Nullable || numericN < seen
		case majority(dateN, seen):
			cs.Type = schema.TypeDate
			cs.Layout = majorityLayout(layoutCounts)
			cs.Nullable = cs.Nullable || dateN < seen
		case isCategorical(len(distinct), seen, categoricalRatio):
			cs.Type = schema.TypeCategorical
		default:
			cs.Type = schema.TypeText
		}
		out[col] = cs
	}

	return out
}

func majority(n, seen int) bool { return n*2 > seen }

func isCategorical(distinct, seen int, ratio float64) bool {
	if seen < categoricalMinSample {
		return false
	}
	return float64(distinct)/float64(seen) < ratio
}

func majorityLayout(counts map[string]int) string {
	// Ties resolve to the earliest layout in the fixed list, keeping
	// inference deterministic regardless of map order.
	best := ""
	bestN := 0
	for _, lay := range dateLayouts {
		if n := counts[lay]; n > bestN {
			best, bestN = lay, n
		}
	}
	return best
}

func parseDateLoose(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}

// normalizeHeader converts raw header cells into unique, safe lowercase
// identifiers. Empty names become col_N; duplicates get a _2, _3, ...
// suffix so the schema invariant (unique names) holds even for sloppy
// uploads; the validator still reports the duplication.
func normalizeHeader(header []string) []string {
	used := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		n := truncateFieldName(normalizeFieldName(h))
		if n == "" {
			n = "col_" + strconv.Itoa(i+1)
		}
		if c := used[n]; c > 0 {
			used[n] = c + 1
			n = n + "_" + strconv.Itoa(c+1)
		}
		used[n]++
		out[i] = n
	}
	return out
}

// normalizeFieldName converts an arbitrary input string into a safe,
// lowercase identifier suitable for column names.
func normalizeFieldName(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';' {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}
		// Drop everything else.
	}

	return strings.Trim(b.String(), "_")
}

// truncateFieldName enforces identifier length limits while preserving
// UTF-8 validity.
func truncateFieldName(s string) string {
	const maxLen = 63
	if len(s) <= maxLen {
		return s
	}
	b := []byte(s)
	cut := maxLen
	for cut > 0 && !utf8.Valid(b[:cut]) {
		cut--
	}
	if cut <= 0 {
		return s[:maxLen]
	}
	return string(b[:cut])
}
