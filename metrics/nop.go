package metrics

import "github.com/prometheus/client_golang/prometheus"

// NopRegistry implements Registry by discarding every value.
type NopRegistry struct{}

func (NopRegistry) NewGauge(prometheus.GaugeOpts) (Gauge, error) { return nopMetric{}, nil }

func (NopRegistry) NewGaugeVec(prometheus.GaugeOpts, []string) (GaugeVec, error) {
	return nopMetric{}, nil
}

func (NopRegistry) NewCounter(prometheus.CounterOpts) (Counter, error) { return nopMetric{}, nil }

func (NopRegistry) NewCounterVec(prometheus.CounterOpts, []string) (CounterVec, error) {
	return nopVec{}, nil
}

type nopMetric struct{}

func (nopMetric) Set(float64)                  {}
func (nopMetric) Inc()                         {}
func (nopMetric) Add(float64)                  {}
func (nopMetric) With(prometheus.Labels) Gauge { return nopMetric{} }

type nopVec struct{}

func (nopVec) With(prometheus.Labels) Counter { return nopMetric{} }
