package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry implements Registry for the server. Metrics live in a Prometheus
// registry and are read over HTTP, so nothing needs flushing after a run.
type ScrapeRegistry struct {
	prom      *prometheus.Registry
	namespace string
	startTime time.Time
}

// NewScrapeRegistry creates a ScrapeRegistry with the Go and process collectors and an
// uptime gauge. The prefix is the namespace of metrics that do not set one, so both
// registries name workflow metrics the same way.
func NewScrapeRegistry(prefix string) (*ScrapeRegistry, error) {
	r := &ScrapeRegistry{
		prom:      prometheus.NewRegistry(),
		namespace: prefix,
		startTime: time.Now(),
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: prefix,
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started serving metrics",
	}, func() float64 {
		return time.Since(r.startTime).Seconds()
	})

	for name, c := range map[string]prometheus.Collector{
		"go collector":      collectors.NewGoCollector(),
		"process collector": collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		"uptime gauge":      uptime,
	} {
		if err := r.prom.Register(c); err != nil {
			return nil, fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return r, nil
}

// Handler returns an http.Handler for the /metrics endpoint.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// register adds c to the registry under the given kind and name for errors.
func register[C prometheus.Collector](r *ScrapeRegistry, kind, name string, c C) (C, error) {
	if err := r.prom.Register(c); err != nil {
		var zero C
		return zero, fmt.Errorf("registering %s %q: %w", kind, name, err)
	}
	return c, nil
}

func (r *ScrapeRegistry) namespaced(ns string) string {
	if ns == "" {
		return r.namespace
	}
	return ns
}

// NewGauge creates and registers a new Gauge.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	opts.Namespace = r.namespaced(opts.Namespace)
	g, err := register(r, "gauge", opts.Name, prometheus.NewGauge(opts))
	if err != nil {
		return nil, err
	}
	return g, nil
}

// NewGaugeVec creates and registers a new GaugeVec.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	opts.Namespace = r.namespaced(opts.Namespace)
	g, err := register(r, "gauge vec", opts.Name, prometheus.NewGaugeVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return scrapeGaugeVec{g}, nil
}

// NewCounter creates and registers a new Counter.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	opts.Namespace = r.namespaced(opts.Namespace)
	c, err := register(r, "counter", opts.Name, prometheus.NewCounter(opts))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewCounterVec creates and registers a new CounterVec.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	opts.Namespace = r.namespaced(opts.Namespace)
	c, err := register(r, "counter vec", opts.Name, prometheus.NewCounterVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return scrapeCounterVec{c}, nil
}

// prometheus.Gauge and prometheus.Counter satisfy Gauge and Counter directly; the
// vectors only need their With narrowed.
type scrapeGaugeVec struct{ *prometheus.GaugeVec }

func (g scrapeGaugeVec) With(labels prometheus.Labels) Gauge {
	return g.GaugeVec.With(labels)
}

type scrapeCounterVec struct{ *prometheus.CounterVec }

func (c scrapeCounterVec) With(labels prometheus.Labels) Counter {
	return c.CounterVec.With(labels)
}
