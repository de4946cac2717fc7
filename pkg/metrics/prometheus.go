package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain/repository.Metrics using Prometheus.
type Recorder struct {
	barsStored  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastClose   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	runsTotal   *prometheus.CounterVec
	stopOuts    *prometheus.CounterVec
}

// New creates a Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		barsStored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_bars_stored_total",
				Help: "Daily bars written to a backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_errors_total",
				Help: "Errors by kind",
			},
			[]string{"kind"},
		),
		lastClose: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantdesk_last_close",
				Help: "Last observed close per symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantdesk_operation_duration_seconds",
				Help:    "Duration of engine operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_engine_runs_total",
				Help: "Walk-forward, simulation and optimizer runs",
			},
			[]string{"kind"},
		),
		stopOuts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_stop_outs_total",
				Help: "Forced position closes in simulation",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordBarStored(backend, symbol string) {
	r.barsStored.WithLabelValues(backend, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastClose(symbol string, price float64) {
	r.lastClose.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordRun(kind string) {
	r.runsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordStopOut(symbol string) {
	r.stopOuts.WithLabelValues(symbol).Inc()
}
