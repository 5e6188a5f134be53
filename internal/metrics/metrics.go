// Package metrics exposes Prometheus instrumentation for the monitor loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "breakoutwatch"

// Recorder records monitor activity. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	cycleDuration   prometheus.Histogram
	symbolErrors    *prometheus.CounterVec
	classifications *prometheus.CounterVec
	alertsFired     *prometheus.CounterVec
	lastClose       *prometheus.GaugeVec
}

// New creates a recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total evaluation cycles executed",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		symbolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_errors_total",
			Help:      "Per-symbol evaluation failures",
		}, []string{"symbol"}),
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classification results by symbol and kind",
		}, []string{"symbol", "kind"}),
		alertsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alerts emitted by symbol and kind",
		}, []string{"symbol", "kind"}),
		lastClose: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_close",
			Help:      "Close of the latest bar seen for a symbol",
		}, []string{"symbol"}),
	}
}

// RecordCycle records a finished cycle and its duration.
func (r *Recorder) RecordCycle(d time.Duration) {
	if r == nil {
		return
	}
	r.cycles.Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// RecordSymbolError records a failed symbol evaluation.
func (r *Recorder) RecordSymbolError(symbol string) {
	if r == nil {
		return
	}
	r.symbolErrors.WithLabelValues(symbol).Inc()
}

// RecordClassification records one classification outcome.
func (r *Recorder) RecordClassification(symbol, kind string) {
	if r == nil {
		return
	}
	r.classifications.WithLabelValues(symbol, kind).Inc()
}

// RecordAlert records an emitted alert.
func (r *Recorder) RecordAlert(symbol, kind string) {
	if r == nil {
		return
	}
	r.alertsFired.WithLabelValues(symbol, kind).Inc()
}

// RecordLastClose stores the latest close for a symbol.
func (r *Recorder) RecordLastClose(symbol string, price float64) {
	if r == nil {
		return
	}
	r.lastClose.WithLabelValues(symbol).Set(price)
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
