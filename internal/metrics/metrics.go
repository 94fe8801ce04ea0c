// Package metrics defines the relay's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "reelrelay"

// Metrics holds all relay collectors.
type Metrics struct {
	DownloadsTotal        *prometheus.CounterVec
	DownloadDuration      *prometheus.HistogramVec
	StrategyAttemptsTotal *prometheus.CounterVec
	RateLimitedTotal      prometheus.Counter
	DeliveriesTotal       *prometheus.CounterVec
	JobsRejectedTotal     prometheus.Counter
	JobsInFlight          prometheus.Gauge
}

// New creates and registers the collectors on reg, or the default registerer
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DownloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "downloads_total",
				Help:      "Media downloads by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		DownloadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "download_duration_seconds",
				Help:      "Time from classification to a resolved result",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
			},
			[]string{"platform"},
		),
		StrategyAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "strategy_attempts_total",
				Help:      "Extraction strategy attempts by result",
			},
			[]string{"strategy", "result"},
		),
		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-user rate limiter",
			},
		),
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "deliveries_total",
				Help:      "Media uploads to chat by kind and result",
			},
			[]string{"kind", "result"},
		),
		JobsRejectedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "jobs_rejected_total",
				Help:      "Jobs dropped because the worker queue was full",
			},
		),
		JobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "jobs_in_flight",
				Help:      "Jobs queued or running",
			},
		),
	}
}

func (m *Metrics) Download(platform, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(platform, outcome).Inc()
	m.DownloadDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

func (m *Metrics) StrategyAttempt(strategy, result string) {
	if m == nil {
		return
	}
	m.StrategyAttemptsTotal.WithLabelValues(strategy, result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) Delivery(kind, result string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) JobRejected() {
	if m == nil {
		return
	}
	m.JobsRejectedTotal.Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
}
