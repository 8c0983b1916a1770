package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"OTCPulse/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal         *prometheus.CounterVec
	lastPrice          *prometheus.GaugeVec
	exposureRatio      *prometheus.GaugeVec
	interventionsTotal *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	latency            *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otcpulse_ticks_total",
				Help: "Total price ticks generated per instrument and mode",
			},
			[]string{"instrument", "mode"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "otcpulse_last_price",
				Help: "Last generated price for an instrument",
			},
			[]string{"instrument"},
		),
		exposureRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "otcpulse_exposure_ratio",
				Help: "Net directional exposure ratio per instrument",
			},
			[]string{"instrument"},
		),
		interventionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otcpulse_interventions_total",
				Help: "Total settlement interventions applied",
			},
			[]string{"instrument"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otcpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "otcpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick counts one generated tick.
func (r *Recorder) RecordTick(instrument string, mode models.PriceMode) {
	r.ticksTotal.WithLabelValues(instrument, string(mode)).Inc()
}

// RecordLastPrice records the last price for an instrument.
func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

// RecordExposure records the current exposure ratio for an instrument.
func (r *Recorder) RecordExposure(instrument string, ratio float64) {
	r.exposureRatio.WithLabelValues(instrument).Set(ratio)
}

// RecordIntervention counts one applied settlement intervention.
func (r *Recorder) RecordIntervention(instrument string) {
	r.interventionsTotal.WithLabelValues(instrument).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
