package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// Flusher is implemented by registries that buffer samples until flushed.
type Flusher interface {
	Flush(ctx context.Context) error
}

// PushRegistry implements Registry for push-based metrics collection.
//
// Updates are buffered, keeping the latest value of each series, and sent to a
// VictoriaMetrics/Prometheus remote write endpoint as a single request by Flush. A
// failed flush keeps the buffered series for the next one.
type PushRegistry struct {
	url        string
	logger     *slog.Logger
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	now        func() time.Time

	mu      sync.Mutex
	gen     uint64
	pending map[string]pendingSeries
}

// pendingSeries is a buffered series and the update that produced it.
type pendingSeries struct {
	series prompb.TimeSeries
	gen    uint64
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:8428").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed with this value
	// followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Logger receives push failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PushRegistry{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		logger:     logger.With("component", "metrics"),
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		now:        time.Now,
		pending:    make(map[string]pendingSeries),
	}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{registry: r, name: opts.Name}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{registry: r, name: opts.Name, labels: labels}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{registry: r, name: opts.Name}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{registry: r, name: opts.Name, labels: labels}, nil
}

// Pending returns the number of series waiting to be flushed.
func (r *PushRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// record buffers the latest value of a series.
func (r *PushRegistry) record(name string, value float64, labels map[string]string) {
	ts := r.timeSeries(name, value, labels)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.pending[name+"{"+labelsToKey(labels)+"}"] = pendingSeries{series: ts, gen: r.gen}
}

// Flush sends every buffered series in one remote write request.
func (r *PushRegistry) Flush(ctx context.Context) error {
	r.mu.Lock()
	keys := slices.Sorted(maps.Keys(r.pending))
	series := make([]prompb.TimeSeries, len(keys))
	gens := make([]uint64, len(keys))
	for i, k := range keys {
		series[i] = r.pending[k].series
		gens[i] = r.pending[k].gen
	}
	r.mu.Unlock()

	if len(series) == 0 {
		return nil
	}

	if err := r.write(ctx, series); err != nil {
		r.logger.Warn("failed to push metrics", "series", len(series), "error", err)
		return err
	}

	r.mu.Lock()
	for i, k := range keys {
		// Keep series updated while the request was in flight
		if r.pending[k].gen == gens[i] {
			delete(r.pending, k)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("pushed metrics", "series", len(series))
	return nil
}

func (r *PushRegistry) write(ctx context.Context, series []prompb.TimeSeries) error {
	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: series})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(snappy.Encode(nil, data)))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// timeSeries builds a single-sample series. The name label comes first, then job and
// instance, then the metric's own labels sorted by name.
func (r *PushRegistry) timeSeries(name string, value float64, labels map[string]string) prompb.TimeSeries {
	metricName := name
	if r.prefix != "" {
		metricName = r.prefix + "_" + name
	}

	promLabels := make([]prompb.Label, 0, len(labels)+3)
	promLabels = append(promLabels, prompb.Label{Name: "__name__", Value: metricName})
	if r.job != "" {
		promLabels = append(promLabels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		promLabels = append(promLabels, prompb.Label{Name: "instance", Value: r.instance})
	}
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		promLabels = append(promLabels, prompb.Label{Name: k, Value: labels[k]})
	}

	return prompb.TimeSeries{
		Labels:  promLabels,
		Samples: []prompb.Sample{{Value: value, Timestamp: r.now().UnixMilli()}},
	}
}

type pushGauge struct {
	registry *PushRegistry
	name     string
	labels   map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.registry.record(g.name, v, g.labels)
}

type pushGaugeVec struct {
	registry *PushRegistry
	name     string
	labels   []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{registry: g.registry, name: g.name, labels: labels}
}

// pushCounter keeps its running total; each update buffers the new total.
type pushCounter struct {
	mu       sync.Mutex
	registry *PushRegistry
	name     string
	labels   map[string]string
	value    float64
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	value := c.value
	c.mu.Unlock()
	c.registry.record(c.name, value, c.labels)
}

type pushCounterVec struct {
	mu       sync.Mutex
	registry *PushRegistry
	name     string
	labels   []string
	counters map[string]*pushCounter
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := labelsToKey(labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counters == nil {
		c.counters = make(map[string]*pushCounter)
	}
	if counter, ok := c.counters[key]; ok {
		return counter
	}

	counter := &pushCounter{registry: c.registry, name: c.name, labels: labels}
	c.counters[key] = counter
	return counter
}

// labelsToKey creates a string key from labels for map lookup.
func labelsToKey(labels prometheus.Labels) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
