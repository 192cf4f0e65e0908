// Package metrics records the outcome of workflow runs as Prometheus series.
//
// The server exposes them for scraping, the CLI pushes them to a VictoriaMetrics or
// Prometheus remote write endpoint once per run, and runs without a monitoring
// endpoint discard them. Runs, steps by application, retries, durations and the time of
// the last run are counted by a Recorder.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge holds the latest value of a series, such as a run's duration.
type Gauge interface {
	Set(float64)
}

// Counter only goes up. Add panics on a negative value for the scrape registry; the
// push registry keeps its own running total.
type Counter interface {
	Inc()
	Add(float64)
}

// GaugeVec selects a Gauge by label values.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec selects a Counter by label values.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics for the Recorder. ScrapeRegistry serves them at /metrics,
// PushRegistry buffers them for remote write and NopRegistry drops them, so the
// Recorder is written once for the server, the CLI and runs without monitoring.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}
