package ingest

import (
	"fmt"
	"strings"

	"datalik/internal/schema"

	"datalik/internal/parser/csvx"
)

// maxShapeIssues caps how many misaligned rows are reported
// individually; beyond the cap a single summary issue is emitted.
const maxShapeIssues = 20

// Template names a set of required columns for a semantic upload kind
// (e.g. a sales template requiring date and revenue). Matching is done
// on normalized column names.
type Template struct {
	Name     string
	Required []string
}

// Validate checks structural well-formedness of the raw rows against
// the inferred column schemas and returns the full issue list.
//
// Checks, per the upload contract:
//   - every row has the same column count as the header (error)
//   - required template columns present (error)
//   - encoding decodable; a non-UTF-8 fallback is reported (warning)
//   - no duplicate column names (error)
//
// Supplementary quality checks produce warnings only: missing values,
// duplicate rows, numeric-looking text columns.
func Validate(header []string, cols []schema.ColumnSchema, rows [][]string, encoding string, tmpl *Template) []schema.ValidationIssue {
	var issues []schema.ValidationIssue

	issues = append(issues, shapeIssues(len(cols), rows)...)
	issues = append(issues, duplicateNameIssues(header)...)

	if tmpl != nil {
		issues = append(issues, templateIssues(cols, tmpl)...)
	}

	switch encoding {
	case "", csvx.EncUTF8, csvx.EncUTF8BOM:
	default:
		issues = append(issues, schema.ValidationIssue{
			Severity: schema.SeverityWarning,
			Message:  fmt.Sprintf("input decoded as %s, not UTF-8", encoding),
		})
	}

	issues = append(issues, qualityIssues(cols, rows)...)
	return issues
}

func shapeIssues(want int, rows [][]string) []schema.ValidationIssue {
	var issues []schema.ValidationIssue
	bad := 0
	for i, r := range rows {
		if len(r) == want {
			continue
		}
		bad++
		if bad <= maxShapeIssues {
			issues = append(issues, schema.ValidationIssue{
				Severity: schema.SeverityError,
				Message:  fmt.Sprintf("row %d has %d columns, header has %d", i+1, len(r), want),
			})
		}
	}
	if bad > maxShapeIssues {
		issues = append(issues, schema.ValidationIssue{
			Severity: schema.SeverityError,
			Message:  fmt.Sprintf("%d further rows with mismatched column counts", bad-maxShapeIssues),
		})
	}
	return issues
}

// duplicateNameIssues reports header names that collide after
// normalization. The inferencer renames collisions so the schema stays
// usable, but the duplication itself blocks promotion.
func duplicateNameIssues(header []string) []schema.ValidationIssue {
	var issues []schema.ValidationIssue
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		name := normalizeFieldName(h)
		if name == "" {
			continue
		}
		if seen[name] {
			issues = append(issues, schema.ValidationIssue{
				Severity: schema.SeverityError,
				Column:   name,
				Message:  "duplicate column name",
			})
		}
		seen[name] = true
	}
	return issues
}

func templateIssues(cols []schema.ColumnSchema, tmpl *Template) []schema.ValidationIssue {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c.Name] = true
	}
	var issues []schema.ValidationIssue
	for _, req := range tmpl.Required {
		name := normalizeFieldName(req)
		if !have[name] {
			issues = append(issues, schema.ValidationIssue{
				Severity: schema.SeverityError,
				Column:   name,
				Message:  fmt.Sprintf("required column missing for template %q", tmpl.Name),
			})
		}
	}
	return issues
}

// qualityIssues mirrors the data-quality report of the original
// dashboard: missing-value and duplicate-row percentages, surfaced as
// warnings that never block promotion.
func qualityIssues(cols []schema.ColumnSchema, rows [][]string) []schema.ValidationIssue {
	var issues []schema.ValidationIssue
	if len(rows) == 0 || len(cols) == 0 {
		return issues
	}

	missing := 0
	dupes := 0
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if len(r) != len(cols) {
			continue
		}
		for _, v := range r {
			if strings.TrimSpace(v) == "" {
				missing++
			}
		}
		// NUL separator keeps cell boundaries distinct in the key, so
		// ["ab","c"] and ["a","bc"] are different rows.
		key := strings.Join(r, "\x00")
		if seen[key] {
			dupes++
		}
		seen[key] = true
	}

	total := len(rows) * len(cols)
	if missing > 0 {
		issues = append(issues, schema.ValidationIssue{
			Severity: schema.SeverityWarning,
			Message: fmt.Sprintf("found %d missing values (%.1f%% of data)",
				missing, 100*float64(missing)/float64(total)),
		})
	}
	if dupes > 0 {
		issues = append(issues, schema.ValidationIssue{
			Severity: schema.SeverityWarning,
			Message: fmt.Sprintf("found %d duplicate rows (%.1f%%)",
				dupes, 100*float64(dupes)/float64(len(rows))),
		})
	}
	return issues
}

// QualityScore compresses the warning set into the 0-100 score the
// dashboard header shows: 100 minus missing and duplicate percentages.
func QualityScore(cols []schema.ColumnSchema, rows [][]string) float64 {
	if len(rows) == 0 || len(cols) == 0 {
		return 100
	}
	missing := 0
	dupes := 0
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		for _, v := range r {
			if strings.TrimSpace(v) == "" {
				missing++
			}
		}
		key := strings.Join(r, "\x00")
		if seen[key] {
			dupes++
		}
		seen[key] = true
	}
	score := 100.0
	score -= 100 * float64(missing) / float64(len(rows)*len(cols))
	score -= 100 * float64(dupes) / float64(len(rows))
	if score < 0 {
		return 0
	}
	return score
}
