// Package metrics records generation activity as Prometheus metrics on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Outcome labels for generate calls.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Collector holds generation metrics.
type Collector struct {
	registry *prometheus.Registry

	generateTotal    *prometheus.CounterVec
	generateDuration *prometheus.HistogramVec
	artifactsTotal   *prometheus.CounterVec
	artifactBytes    *prometheus.HistogramVec
	pollChecks       *prometheus.CounterVec
	fanoutInFlight   prometheus.Gauge
	credits          *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers all metrics under namespace on a fresh registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.generateTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_requests_total",
			Help:      "Total number of generate calls",
		},
		[]string{"provider", "model", "capability", "outcome"},
	)

	c.generateDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_duration_seconds",
			Help:      "Generate call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"provider", "model", "capability"},
	)

	c.artifactsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Total number of artifacts returned",
		},
		[]string{"provider", "kind"},
	)

	c.artifactBytes = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Artifact content size in bytes",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		},
		[]string{"provider", "kind"},
	)

	c.pollChecks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_checks_total",
			Help:      "Total number of job status checks",
		},
		[]string{"provider", "state"},
	)

	c.fanoutInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fanout_in_flight",
			Help:      "Generate calls currently running under fan-out",
		},
	)

	c.credits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_spent_total",
			Help:      "Vendor credits spent, where the vendor prices in credits",
		},
		[]string{"provider", "model"},
	)

	return c
}

// Registry exposes the private registry, e.g. for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordGenerate records one finished generate call.
func (c *Collector) RecordGenerate(provider, model, capability, outcome string, d time.Duration) {
	c.generateTotal.WithLabelValues(provider, model, capability, outcome).Inc()
	c.generateDuration.WithLabelValues(provider, model, capability).Observe(d.Seconds())
}

// RecordArtifact records one returned artifact.
func (c *Collector) RecordArtifact(provider, kind string, size int) {
	c.artifactsTotal.WithLabelValues(provider, kind).Inc()
	c.artifactBytes.WithLabelValues(provider, kind).Observe(float64(size))
}

// RecordPollCheck records one status check and the state it observed.
func (c *Collector) RecordPollCheck(provider, state string) {
	c.pollChecks.WithLabelValues(provider, state).Inc()
}

// RecordCredits adds vendor credits spent.
func (c *Collector) RecordCredits(provider, model string, credits float64) {
	if credits <= 0 {
		return
	}
	c.credits.WithLabelValues(provider, model).Add(credits)
}

// FanoutStarted and FanoutFinished bracket one fan-out call.
func (c *Collector) FanoutStarted()  { c.fanoutInFlight.Inc() }
func (c *Collector) FanoutFinished() { c.fanoutInFlight.Dec() }

// Serve exposes the registry on addr until the server fails.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	c.logger.Info("serving metrics", zap.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return srv.ListenAndServe()
}
