package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	MessagesSent         prometheus.Counter
	MatchesPaired        prometheus.Counter
	DistressSubmitted    *prometheus.CounterVec
	DistressRateLimited  prometheus.Counter
	DistressAlertsSent   prometheus.Counter
	DistressDispatchTime prometheus.Histogram
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharepairs_messages_sent_total",
			Help: "Total number of messages appended to the message log",
		}),
		MatchesPaired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharepairs_matches_paired_total",
			Help: "Total number of successful pairings",
		}),
		DistressSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sharepairs_distress_submitted_total",
			Help: "Distress submissions by resulting status",
		}, []string{"status"}),
		DistressRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharepairs_distress_rate_limited_total",
			Help: "High-score distress submissions rejected by the rate window",
		}),
		DistressAlertsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharepairs_distress_alerts_sent_total",
			Help: "Distress notifications successfully dispatched by the worker",
		}),
		DistressDispatchTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sharepairs_distress_dispatch_seconds",
			Help:    "Latency of outbound distress notification dispatch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
