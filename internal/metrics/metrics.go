package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"StockSentinel/internal/model"
)

// Recorder exposes run outcomes as Prometheus metrics.
type Recorder struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	decisions  *prometheus.CounterVec
	failures   *prometheus.CounterVec
	emitErrors *prometheus.CounterVec
	duration   prometheus.Histogram
	lastRun    prometheus.Gauge
	signals    *prometheus.GaugeVec
}

// New creates a recorder on its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_runs_total",
			Help: "Batch runs by outcome",
		}, []string{"outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_decisions_total",
			Help: "Advisory decisions by action and status",
		}, []string{"action", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_instrument_failures_total",
			Help: "Instruments dropped from a batch",
		}, []string{"kind"}),
		emitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_emit_errors_total",
			Help: "Failed batch deliveries by emitter",
		}, []string{"emitter"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_run_duration_seconds",
			Help:    "Wall time of a batch run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
		signals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_last_run_signals",
			Help: "Buy and sell count of the last run",
		}, []string{"action"}),
	}
	reg.MustRegister(r.runs, r.decisions, r.failures, r.emitErrors, r.duration, r.lastRun, r.signals)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

func (r *Recorder) Name() string { return "metrics" }

// Emit records a finished batch.
func (r *Recorder) Emit(_ context.Context, batch *model.AdvisoryBatch) error {
	if batch.Skipped {
		r.runs.WithLabelValues("skipped").Inc()
		return nil
	}
	r.runs.WithLabelValues("completed").Inc()
	for _, d := range batch.Decisions {
		r.decisions.WithLabelValues(string(d.Action), string(d.Status)).Inc()
	}
	for _, f := range batch.Summary.Failures {
		r.failures.WithLabelValues(f.Kind).Inc()
	}
	r.duration.Observe(batch.Summary.Duration.Seconds())
	r.lastRun.Set(float64(batch.GeneratedAt.Unix()))
	r.signals.WithLabelValues(string(model.ActionBuy)).Set(float64(batch.Summary.Buy))
	r.signals.WithLabelValues(string(model.ActionSell)).Set(float64(batch.Summary.Sell))
	return nil
}

// EmitFailed counts a delivery failure.
func (r *Recorder) EmitFailed(emitter string) {
	r.emitErrors.WithLabelValues(emitter).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Push sends the current values to a Pushgateway. Used by one-shot runs,
// which exit before a scrape could happen.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
