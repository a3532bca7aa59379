// Package metrics exposes Prometheus instrumentation for the scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records optimization outcomes.
type Collector struct {
	runs     *prometheus.CounterVec
	lastCost prometheus.Gauge
	devices  prometheus.Histogram
}

// NewCollector registers the scheduler metrics on reg. If reg is nil the
// default registerer is used; already registered collectors are reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsched_runs_total",
		Help: "Total number of optimization runs by outcome",
	}, []string{"outcome"})
	lastCost := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridsched_last_run_cost",
		Help: "Total bill of the most recent successful run",
	})
	devices := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridsched_run_devices",
		Help:    "Number of devices scheduled per run",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	if err := reg.Register(runs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			runs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(lastCost); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			lastCost = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(devices); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			devices = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}

	return &Collector{runs: runs, lastCost: lastCost, devices: devices}, nil
}

// RecordSuccess records a completed run.
func (c *Collector) RecordSuccess(deviceCount int, totalCost float64) {
	c.runs.WithLabelValues("success").Inc()
	c.lastCost.Set(totalCost)
	c.devices.Observe(float64(deviceCount))
}

// RecordFailure records a run that returned an error.
func (c *Collector) RecordFailure() {
	c.runs.WithLabelValues("failure").Inc()
}
