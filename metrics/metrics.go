// Package metrics holds the prometheus collectors for verification,
// replay, settlement and rate-limit outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verifications      *prometheus.CounterVec
	ReplayRejections   prometheus.Counter
	Settlements        *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	RateLimitDecisions *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_verifications_total",
			Help: "Intent verifications, labeled by operation and result code",
		}, []string{"operation", "result"}),

		ReplayRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "paygate_replay_rejections_total",
			Help: "Intents rejected because their signature was already consumed",
		}),

		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_settlements_total",
			Help: "Settlement attempts, labeled by outcome",
		}, []string{"outcome"}),

		SettlementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paygate_settlement_duration_seconds",
			Help:    "Latency of facilitator settlement calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_rate_limit_decisions_total",
			Help: "Rate limiter decisions, labeled by class and decision",
		}, []string{"class", "decision"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_http_requests_total",
			Help: "Total HTTP requests processed, labeled by status code",
		}, []string{"method", "endpoint", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paygate_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "endpoint"}),
	}
}
