package controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "yeelight_controller"

// Collector is a prometheus.Collector that collects metrics about the
// controller worker.
type Collector struct {
	commands       *prometheus.CounterVec
	dials          *prometheus.CounterVec
	failedAttempts prometheus.Counter
	roundTrip      *prometheus.HistogramVec
	queued         prometheus.Gauge
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "The number of finished jobs by method and outcome.",
			}, []string{"method", "outcome"},
		),
		dials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dials_total",
				Help:      "The number of connection attempts to the device.",
			}, []string{"outcome"},
		),
		failedAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "failed_attempts_total",
				Help:      "The number of attempts that failed with a connection error.",
			},
		),
		roundTrip: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "round_trip_seconds",
				Help:      "The time from dequeuing a job to its final outcome.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			}, []string{"method"},
		),
		queued: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "queued_jobs",
				Help:      "The number of jobs waiting for the worker.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.commands.Describe(ch)
	c.dials.Describe(ch)
	c.failedAttempts.Describe(ch)
	c.roundTrip.Describe(ch)
	c.queued.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.commands.Collect(ch)
	c.dials.Collect(ch)
	c.failedAttempts.Collect(ch)
	c.roundTrip.Collect(ch)
	c.queued.Collect(ch)
}
