// Package datadog implements a Datadog backend for the internal/telemetry
// package.
//
// The backend buffers metrics in memory, flushes them on a ticker
// (default once per minute), and flushes one final time on Close. Upload
// handlers call IncCounter/ObserveHistogram at any time; Flush snapshots
// and resets the buffers under a mutex, then submits out of lock.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"datalik/internal/telemetry"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// ServiceName becomes tag "service:<name>" on every metric.
	// If empty, defaults to "dashboard".
	ServiceName string

	// Tags are extra Datadog tags (e.g. []string{"team:analytics"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit
	// tests use them to avoid real submission and nondeterministic
	// clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend
// needs. The SDK only ships the concrete *datadogV2.MetricsApi, so the
// interface exists to let tests stub submission.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements telemetry.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	uploadCounts map[string]float64 // format\x00status -> count
	rowCounts    map[string]float64 // format -> rows
	queryCounts  map[string]float64 // status -> count
	httpCounts   map[string]float64 // route\x00status -> count
	stageDur     map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.ServiceName is empty, defaults to "dashboard".
//   - Environment tag selection uses ENV then DD_ENV, otherwise
//     env:unknown.
//
// Network errors surface from Flush, not from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	service := opts.ServiceName
	if service == "" {
		service = "dashboard"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "service:"+service)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		uploadCounts: make(map[string]float64),
		rowCounts:    make(map[string]float64),
		queryCounts:  make(map[string]float64),
		httpCounts:   make(map[string]float64),
		stageDur:     make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
// Close once; a second call panics on the closed stop channel, matching
// the usual process-lifetime semantics.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements telemetry.Backend. Unknown metric names are
// ignored.
func (b *Backend) IncCounter(name string, delta float64, labels telemetry.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case telemetry.MetricUploads:
		b.uploadCounts[pairKey(labels["format"], labels["status"])] += delta

	case telemetry.MetricRowsIngested:
		format := labels["format"]
		if format == "" {
			format = "unknown"
		}
		b.rowCounts[format] += delta

	case telemetry.MetricQueries:
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		b.queryCounts[status] += delta

	case telemetry.MetricHTTPRequests:
		b.httpCounts[pairKey(labels["route"], labels["status"])] += delta
	}
}

// ObserveHistogram implements telemetry.Backend. Only stage durations
// are tracked; unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels telemetry.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if name == telemetry.MetricStageDuration {
		stage := labels["stage"]
		if stage == "" {
			stage = "unknown"
		}
		b.stageDur[stage] = append(b.stageDur[stage], value)
	}
}

// snapshot holds buffered metric state detached from the backend, so
// payload building and submission happen out of lock.
type snapshot struct {
	uploadCounts map[string]float64
	rowCounts    map[string]float64
	queryCounts  map[string]float64
	httpCounts   map[string]float64
	stageDur     map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		uploadCounts: b.uploadCounts,
		rowCounts:    b.rowCounts,
		queryCounts:  b.queryCounts,
		httpCounts:   b.httpCounts,
		stageDur:     b.stageDur,
	}

	b.uploadCounts = make(map[string]float64)
	b.rowCounts = make(map[string]float64)
	b.queryCounts = make(map[string]float64)
	b.httpCounts = make(map[string]float64)
	b.stageDur = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.uploadCounts) == 0 &&
		len(s.rowCounts) == 0 &&
		len(s.queryCounts) == 0 &&
		len(s.httpCounts) == 0 &&
		len(s.stageDur) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Edge cases:
//   - Returns nil when there is nothing to submit.
//   - Buffers reset even when submission fails, so a flaky intake never
//     blocks upload handling.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure (no locks, no network, no clocks) so the
// naming and tagging contract can be unit tested directly.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.uploadCounts)+len(s.rowCounts)+32)

	for k, v := range s.uploadCounts {
		if v == 0 {
			continue
		}
		format, status := splitPairKey(k)
		tags := withTags(b.baseTags, "format:"+format, "status:"+status)
		series = append(series, countSeries("dashboard.uploads.total", v, tags, nowUnix))
	}

	for format, v := range s.rowCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "format:"+format)
		series = append(series, countSeries("dashboard.rows_ingested.total", v, tags, nowUnix))
	}

	for status, v := range s.queryCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "status:"+status)
		series = append(series, countSeries("dashboard.metrics_queries.total", v, tags, nowUnix))
	}

	for k, v := range s.httpCounts {
		if v == 0 {
			continue
		}
		route, status := splitPairKey(k)
		tags := withTags(b.baseTags, "route:"+route, "status:"+status)
		series = append(series, countSeries("dashboard.http.requests.total", v, tags, nowUnix))
	}

	for stage, samples := range s.stageDur {
		addPercentiles(&series, withTags(b.baseTags, "stage:"+stage), "dashboard.stage.duration_seconds", samples, nowUnix)
	}

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample
// set. Sorts a copy; empty input appends nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func pairKey(a, b string) string {
	if a == "" {
		a = "unknown"
	}
	if b == "" {
		b = "unknown"
	}
	return a + "\x00" + b
}

func splitPairKey(k string) (a, b string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ telemetry.Backend = (*Backend)(nil)
