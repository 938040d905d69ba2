// Package metrics exports run results as Prometheus metrics, written to a
// node_exporter textfile so a scheduled run can be scraped after it exits.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
)

const namespace = "apicheck"

// Collector accumulates suite runs into its own registry.
type Collector struct {
	registry *prometheus.Registry
	now      func() time.Time

	cases        *prometheus.CounterVec
	responses    *prometheus.CounterVec
	caseDuration *prometheus.HistogramVec
	runDuration  *prometheus.GaugeVec
	latencyP95   *prometheus.GaugeVec
	lastRun      *prometheus.GaugeVec
	lastSuccess  *prometheus.GaugeVec
}

// NewCollector creates a collector with every metric registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		now:      time.Now,
		cases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_total",
			Help:      "Test cases run, by outcome.",
		}, []string{"suite", "outcome"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "Responses received, by status code.",
		}, []string{"suite", "code"}),
		caseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Round-trip time of each request.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"suite"}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}, []string{"suite"}),
		latencyP95: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_p95_seconds",
			Help:      "95th percentile request latency of the last run.",
		}, []string{"suite"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}, []string{"suite"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if no case failed or errored in the last run.",
		}, []string{"suite"}),
	}

	c.registry.MustRegister(
		c.cases,
		c.responses,
		c.caseDuration,
		c.runDuration,
		c.latencyP95,
		c.lastRun,
		c.lastSuccess,
	)
	return c
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record adds one suite run.
func (c *Collector) Record(result *runner.RunResult) {
	suite := result.Suite

	for _, cr := range result.Results {
		c.cases.WithLabelValues(suite, string(cr.Outcome)).Inc()
		if cr.Response != nil {
			c.responses.WithLabelValues(suite, strconv.Itoa(cr.Response.StatusCode)).Inc()
			c.caseDuration.WithLabelValues(suite).Observe(cr.Response.Duration.Seconds())
		}
	}

	c.runDuration.WithLabelValues(suite).Set(result.Duration.Seconds())
	c.latencyP95.WithLabelValues(suite).Set(result.Latency.P95.Seconds())
	c.lastRun.WithLabelValues(suite).Set(float64(c.now().Unix()))

	success := 0.0
	if result.OK() {
		success = 1
	}
	c.lastSuccess.WithLabelValues(suite).Set(success)
}

// WriteTextfile writes the registry in the Prometheus text format. The
// file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
