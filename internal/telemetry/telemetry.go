// Package telemetry defines the minimal metrics boundary the pipeline
// reports through. The core depends only on Backend; concrete backends
// (Datadog, or the no-op default) live in subpackages so vendor code
// never leaks into pipeline logic.
package telemetry

// Labels are free-form metric dimensions.
type Labels map[string]string

// Backend receives counters and histogram observations. Implementations
// must be safe for concurrent use and must never block the caller on
// network I/O.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush forces buffered metrics out. Close implies a final Flush.
	Flush() error
	Close() error
}

// Metric names reported by the pipeline and HTTP layer.
const (
	MetricUploads       = "dashboard_uploads_total"            // labels: format, status
	MetricRowsIngested  = "dashboard_rows_ingested_total"      // labels: format
	MetricQueries       = "dashboard_metrics_queries_total"    // labels: status
	MetricStageDuration = "dashboard_stage_duration_seconds"   // labels: stage
	MetricHTTPRequests  = "dashboard_http_requests_total"      // labels: route, status
)

// Nop is the default backend: it drops everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }
