// Package kpi computes aggregate metrics over a normalized Dataset:
// sums, averages, counts, and period-over-period deltas per numeric
// column, optionally broken down by a grouping column.
//
// The calculator borrows read-only access to the Dataset and returns
// owned results; it retains nothing between calls.
package kpi

import (
	"fmt"
	"sort"
	"time"

	"datalik/internal/schema"
)

// Granularity of the metric window.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// DefaultTopK bounds the per-group breakdown when the request does not
// say otherwise.
const DefaultTopK = 5

// RequestError marks a malformed metric request: an unknown
// granularity or group-by column. It is a caller mistake, distinct
// from the *schema.EmptyWindowError data state.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Request is the metric window specification.
type Request struct {
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"granularity"`
	// GroupBy optionally names a column to break metrics down by.
	GroupBy string `json:"group_by,omitempty"`
	// TopK bounds the group breakdown. Zero means DefaultTopK.
	TopK int `json:"top_k,omitempty"`
}

// Signature is a stable identity for the request, used by the session
// cache to decide whether the last computed result can be reused.
func (r Request) Signature() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		r.Start.Format(schema.DateLayout), r.End.Format(schema.DateLayout),
		r.Granularity, r.GroupBy, r.topK())
}

func (r Request) topK() int {
	if r.TopK <= 0 {
		return DefaultTopK
	}
	return r.TopK
}

// MetricResult is one computed figure. Group is empty for ungrouped
// metrics. Delta is the percentage change against the immediately
// preceding window of equal length, nil when no previous-period data
// exists.
type MetricResult struct {
	Name   string   `json:"name"` // "sum", "avg", "count"
	Column string   `json:"column"`
	Group  string   `json:"group,omitempty"`
	Value  float64  `json:"value"`
	Delta  *float64 `json:"delta,omitempty"`
}

// SeriesPoint is one bucketed sum for the charting collaborator.
type SeriesPoint struct {
	Bucket time.Time `json:"bucket"`
	Value  float64   `json:"value"`
}

// Result is the owned output of one Compute call.
type Result struct {
	Request Request        `json:"request"`
	Metrics []MetricResult `json:"metrics"`
	// Series holds per-numeric-column sums bucketed at the requested
	// granularity, in bucket order.
	Series map[string][]SeriesPoint `json:"series,omitempty"`
	// TopGroups lists the selected groups in rank order when GroupBy
	// was set.
	TopGroups []string `json:"top_groups,omitempty"`
}

// Compute calculates metrics for every numeric column of ds over the
// requested window.
//
// Errors:
//   - *schema.EmptyWindowError when start > end or no rows fall inside
//     [start, end]. This is a displayable "no data" state.
//   - *RequestError for an unknown granularity or group-by column;
//     those are caller mistakes, not data states.
//
// Window semantics: rows are selected by the dataset's first date
// column, inclusive on both ends. A dataset with no date column treats
// every row as in-window and reports no deltas.
func Compute(ds *schema.Dataset, req Request) (*Result, error) {
	if !req.Granularity.Valid() {
		return nil, &RequestError{Field: "granularity", Reason: fmt.Sprintf("unknown granularity %q", req.Granularity)}
	}

	groupIx := -1
	if req.GroupBy != "" {
		groupIx = ds.ColumnIndex(req.GroupBy)
		if groupIx < 0 {
			return nil, &RequestError{Field: "group_by", Reason: fmt.Sprintf("no column named %q", req.GroupBy)}
		}
	}

	if req.End.Before(req.Start) {
		return nil, &schema.EmptyWindowError{Start: req.Start, End: req.End}
	}

	dateIx := ds.DateColumn()
	current := selectWindow(ds, dateIx, req.Start, req.End)
	if len(current) == 0 {
		return nil, &schema.EmptyWindowError{Start: req.Start, End: req.End}
	}

	// Previous period: the window of equal length immediately before
	// the requested one. Deltas need a date column to mean anything.
	var previous []schema.Row
	if dateIx >= 0 {
		span := req.End.Sub(req.Start) + 24*time.Hour
		previous = selectWindow(ds, dateIx, req.Start.Add(-span), req.Start.Add(-24*time.Hour))
	}

	res := &Result{Request: req, Series: make(map[string][]SeriesPoint)}

	numeric := ds.NumericColumns()
	for _, col := range numeric {
		ix := ds.ColumnIndex(col.Name)
		cur := aggregate(current, ix)
		prev := aggregate(previous, ix)

		res.Metrics = append(res.Metrics,
			MetricResult{Name: "sum", Column: col.Name, Value: cur.sum, Delta: pctDelta(cur.sum, prev.sum, len(previous) > 0)},
			MetricResult{Name: "avg", Column: col.Name, Value: cur.avg(), Delta: pctDelta(cur.avg(), prev.avg(), len(previous) > 0)},
			MetricResult{Name: "count", Column: col.Name, Value: float64(len(current))},
		)
		if dateIx >= 0 {
			res.Series[col.Name] = bucketSeries(current, dateIx, ix, req.Granularity)
		}
	}

	if groupIx >= 0 && len(numeric) > 0 {
		res.TopGroups = appendGroupMetrics(res, current, ds, numeric, groupIx, req.topK())
	}

	return res, nil
}

// bucketSeries sums a numeric column into granularity buckets keyed by
// the bucket's first day (Monday for weeks, the 1st for months).
func bucketSeries(rows []schema.Row, dateIx, valIx int, g Granularity) []SeriesPoint {
	sums := make(map[time.Time]float64)
	var order []time.Time
	for _, r := range rows {
		if dateIx >= len(r) || r[dateIx].Null {
			continue
		}
		f, ok := r[valIx].Float()
		if !ok {
			continue
		}
		b := bucketStart(r[dateIx].T, g)
		if _, seen := sums[b]; !seen {
			order = append(order, b)
		}
		sums[b] += f
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	out := make([]SeriesPoint, 0, len(order))
	for _, b := range order {
		out = append(out, SeriesPoint{Bucket: b, Value: sums[b]})
	}
	return out
}

func bucketStart(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		// Monday-anchored weeks.
		offset := (int(t.Weekday()) + 6) % 7
		t = t.AddDate(0, 0, -offset)
	case GranularityMonth:
		t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type agg struct {
	sum     float64
	nonNull int
}

func (a agg) avg() float64 {
	if a.nonNull == 0 {
		return 0
	}
	return a.sum / float64(a.nonNull)
}

// aggregate sums a numeric column over rows. Nulls are excluded from
// the sum and average but the caller's count covers all rows.
func aggregate(rows []schema.Row, ix int) agg {
	var a agg
	for _, r := range rows {
		if ix >= len(r) {
			continue
		}
		if f, ok := r[ix].Float(); ok {
			a.sum += f
			a.nonNull++
		}
	}
	return a
}

func pctDelta(cur, prev float64, havePrev bool) *float64 {
	if !havePrev || prev == 0 {
		return nil
	}
	d := (cur - prev) / prev * 100
	return &d
}

func selectWindow(ds *schema.Dataset, dateIx int, start, end time.Time) []schema.Row {
	if dateIx < 0 {
		return ds.Rows
	}
	out := make([]schema.Row, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		if dateIx >= len(r) || r[dateIx].Null {
			continue
		}
		t := r[dateIx].T
		if t.Before(start) || t.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// appendGroupMetrics computes per-group sum/avg/count for every numeric
// column and returns the top-K groups ranked by the primary metric (the
// first numeric column's sum). Ties break by first appearance in row
// order, which keeps results stable across runs.
func appendGroupMetrics(res *Result, rows []schema.Row, ds *schema.Dataset, numeric []schema.ColumnSchema, groupIx, topK int) []string {
	type groupAgg struct {
		order int
		count int
		byCol map[string]*agg
	}

	groups := make(map[string]*groupAgg)
	var order []string

	colIx := make(map[string]int, len(numeric))
	for _, c := range numeric {
		colIx[c.Name] = ds.ColumnIndex(c.Name)
	}

	for _, r := range rows {
		if groupIx >= len(r) {
			continue
		}
		key := r[groupIx].String()
		g, ok := groups[key]
		if !ok {
			g = &groupAgg{order: len(order), byCol: make(map[string]*agg, len(numeric))}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		for name, ix := range colIx {
			if f, ok := r[ix].Float(); ok {
				a := g.byCol[name]
				if a == nil {
					a = &agg{}
					g.byCol[name] = a
				}
				a.sum += f
				a.nonNull++
			}
		}
	}

	primary := numeric[0].Name
	sumOf := func(key string) float64 {
		if a := groups[key].byCol[primary]; a != nil {
			return a.sum
		}
		return 0
	}

	ranked := append([]string(nil), order...)
	// Insertion-order-stable sort by primary sum, descending; ties keep
	// first-appearance order.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			if sumOf(ranked[j]) > sumOf(ranked[j-1]) {
				ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
			} else {
				break
			}
		}
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	// Metrics cover every group in first-appearance order; the summed
	// group figures always reconcile with the ungrouped totals. The
	// ranked slice only selects which groups lead the breakdown.
	for _, key := range order {
		g := groups[key]
		for _, c := range numeric {
			a := g.byCol[c.Name]
			if a == nil {
				a = &agg{}
			}
			res.Metrics = append(res.Metrics,
				MetricResult{Name: "sum", Column: c.Name, Group: key, Value: a.sum},
				MetricResult{Name: "avg", Column: c.Name, Group: key, Value: a.avg()},
				MetricResult{Name: "count", Column: c.Name, Group: key, Value: float64(g.count)},
			)
		}
	}
	return ranked
}
