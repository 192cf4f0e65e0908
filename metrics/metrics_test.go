package metrics

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/nomis52/e2eflow/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWrite is a fake remote write endpoint that decodes every request.
type remoteWrite struct {
	server   *httptest.Server
	requests chan []prompb.TimeSeries
	status   atomic.Int32
}

func newRemoteWrite(t *testing.T) *remoteWrite {
	t.Helper()
	rw := &remoteWrite{requests: make(chan []prompb.TimeSeries, 10)}
	rw.status.Store(http.StatusNoContent)
	rw.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		assert.NoError(t, err)
		var writeReq prompb.WriteRequest
		if !assert.NoError(t, proto.Unmarshal(decoded, &writeReq)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		status := int(rw.status.Load())
		if status == http.StatusNoContent {
			rw.requests <- writeReq.Timeseries
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("overloaded"))
	}))
	t.Cleanup(rw.server.Close)
	return rw
}

func (rw *remoteWrite) next(t *testing.T) []prompb.TimeSeries {
	t.Helper()
	select {
	case series := <-rw.requests:
		return series
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for remote write")
		return nil
	}
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestPushRegistry_Gauge(t *testing.T) {
	rw := newRemoteWrite(t)
	registry := NewPushRegistry(PushConfig{
		URL:      rw.server.URL + "/",
		Prefix:   "e2eflow",
		Job:      "e2eflow",
		Instance: "ci-1",
	})
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return fixed }

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "queue_depth"})
	require.NoError(t, err)
	gauge.Set(3)
	gauge.Set(42)

	// Only the latest value of a series is kept
	assert.Equal(t, 1, registry.Pending())
	require.NoError(t, registry.Flush(context.Background()))
	assert.Equal(t, 0, registry.Pending())

	series := rw.next(t)
	require.Len(t, series, 1)
	ts := series[0]
	assert.Equal(t, "__name__", ts.Labels[0].Name)
	assert.Equal(t, "e2eflow_queue_depth", findLabel(ts.Labels, "__name__"))
	assert.Equal(t, "e2eflow", findLabel(ts.Labels, "job"))
	assert.Equal(t, "ci-1", findLabel(ts.Labels, "instance"))
	require.Len(t, ts.Samples, 1)
	assert.Equal(t, 42.0, ts.Samples[0].Value)
	assert.Equal(t, fixed.UnixMilli(), ts.Samples[0].Timestamp)
}

func TestPushRegistry_Vectors(t *testing.T) {
	rw := newRemoteWrite(t)
	registry := NewPushRegistry(PushConfig{URL: rw.server.URL})

	gaugeVec, err := registry.NewGaugeVec(prometheus.GaugeOpts{Name: "duration_seconds"}, []string{"workflow", "application"})
	require.NoError(t, err)
	counterVec, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "runs_total"}, []string{"workflow"})
	require.NoError(t, err)

	gaugeVec.With(prometheus.Labels{"workflow": "checkout", "application": "web"}).Set(12.5)
	counterVec.With(prometheus.Labels{"workflow": "checkout"}).Inc()
	counterVec.With(prometheus.Labels{"workflow": "checkout"}).Inc()
	counterVec.With(prometheus.Labels{"workflow": "refund"}).Add(3)

	require.NoError(t, registry.Flush(context.Background()))
	series := rw.next(t)
	require.Len(t, series, 3, "one request carries every series")

	values := make(map[string]float64)
	for _, ts := range series {
		values[findLabel(ts.Labels, "__name__")+"/"+findLabel(ts.Labels, "workflow")] = ts.Samples[0].Value
	}
	assert.Equal(t, map[string]float64{
		"duration_seconds/checkout": 12.5,
		"runs_total/checkout":       2,
		"runs_total/refund":         3,
	}, values)

	for _, ts := range series {
		if findLabel(ts.Labels, "__name__") == "duration_seconds" {
			assert.Equal(t, "application", ts.Labels[1].Name, "custom labels are sorted")
		}
	}
}

func TestPushRegistry_FlushEmpty(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://127.0.0.1:1"})
	assert.NoError(t, registry.Flush(context.Background()))
}

func TestPushRegistry_FailedFlushKeepsSeries(t *testing.T) {
	rw := newRemoteWrite(t)
	rw.status.Store(http.StatusServiceUnavailable)

	var logs bytes.Buffer
	registry := NewPushRegistry(PushConfig{
		URL:    rw.server.URL,
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})
	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "runs_total"})
	require.NoError(t, err)
	counter.Inc()

	err = registry.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503: overloaded")
	assert.Contains(t, logs.String(), "failed to push metrics")
	assert.Equal(t, 1, registry.Pending())

	rw.status.Store(http.StatusNoContent)
	counter.Inc()
	require.NoError(t, registry.Flush(context.Background()))
	series := rw.next(t)
	require.Len(t, series, 1)
	assert.Equal(t, 2.0, series[0].Samples[0].Value)
}

func TestRecorder_PushFlushesPerRun(t *testing.T) {
	rw := newRemoteWrite(t)
	registry := NewPushRegistry(PushConfig{URL: rw.server.URL, Prefix: "e2eflow"})
	recorder, err := NewRecorder(registry)
	require.NoError(t, err)

	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	recorder.RecordRun("checkout", workflow.State{
		Status:    workflow.Completed,
		StartedAt: &start,
		EndedAt:   &end,
		StepResults: []workflow.StepResult{
			{Step: 1, Application: "web", Status: workflow.StepCompleted, Attempts: 1},
		},
	})

	// runs, steps, duration and last run in a single request
	series := rw.next(t)
	assert.Len(t, series, 4)
	assert.Equal(t, 0, registry.Pending())

	recorder.RecordSkipped("refund")
	series = rw.next(t)
	require.Len(t, series, 1)
	assert.Equal(t, "skipped", findLabel(series[0].Labels, "status"))
}

func TestLabelsToKey(t *testing.T) {
	a := labelsToKey(prometheus.Labels{"workflow": "w", "status": "failed"})
	b := labelsToKey(prometheus.Labels{"status": "failed", "workflow": "w"})
	assert.Equal(t, a, b)
	assert.Equal(t, "status=failed,workflow=w,", a)
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry("e2eflow")
	require.NoError(t, err)
	require.NotNil(t, registry)

	// Create some metrics
	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Namespace: "other",
		Name:      "test_counter",
		Help:      "A test counter",
	})
	require.NoError(t, err)
	counter.Inc()

	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "duplicate"})
	require.Error(t, err, "duplicate registration fails")

	body := scrape(t, registry)
	assert.Contains(t, body, "e2eflow_test_gauge 42")
	assert.Contains(t, body, "other_test_counter 1")
	assert.Contains(t, body, "e2eflow_uptime_seconds")
}

func TestNopRegistry(t *testing.T) {
	var reg Registry = NopRegistry{}
	recorder, err := NewRecorder(reg)
	require.NoError(t, err)
	recorder.RecordRun("checkout", workflow.State{Status: workflow.Completed})
	recorder.RecordSkipped("checkout")
}

func TestRecorder(t *testing.T) {
	registry, err := NewScrapeRegistry("e2eflow")
	require.NoError(t, err)
	recorder, err := NewRecorder(registry)
	require.NoError(t, err)

	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	recorder.RecordRun("checkout", workflow.State{
		Status:    workflow.Failed,
		StartedAt: &start,
		EndedAt:   &end,
		StepResults: []workflow.StepResult{
			{Step: 1, Application: "web", Status: workflow.StepCompleted, Attempts: 1},
			{Step: 2, Application: "admin", Status: workflow.StepFailed, Attempts: 3},
		},
	})
	recorder.RecordSkipped("refund")

	body := scrape(t, registry)
	assert.Contains(t, body, `e2eflow_workflow_runs_total{status="failed",workflow="checkout"} 1`)
	assert.Contains(t, body, `e2eflow_workflow_runs_total{status="skipped",workflow="refund"} 1`)
	assert.Contains(t, body, `e2eflow_workflow_steps_total{application="admin",status="failed",workflow="checkout"} 1`)
	assert.Contains(t, body, `e2eflow_workflow_steps_total{application="web",status="completed",workflow="checkout"} 1`)
	assert.Contains(t, body, `e2eflow_workflow_step_retries_total{workflow="checkout"} 2`)
	assert.Contains(t, body, `e2eflow_workflow_last_duration_seconds{workflow="checkout"} 90`)

	var nilRecorder *Recorder
	nilRecorder.RecordRun("checkout", workflow.State{})
}

func scrape(t *testing.T, registry *ScrapeRegistry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}
