package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal tracks portal calls per method and outcome code
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24_calls_total",
			Help: "Total number of portal REST calls",
		},
		[]string{"method", "code"},
	)

	// RetriesTotal tracks retry attempts by cause
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks the current admission queue depth
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "b24_queue_depth",
			Help: "Current number of queued request units",
		},
	)

	// QueueWaitSeconds tracks time spent queued before dispatch
	QueueWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "b24_queue_wait_seconds",
			Help:    "Time a unit spent queued before dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TokenRefreshesTotal tracks credential refreshes by result
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24_token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	// ThrottleCounter mirrors the admission controller's request counter
	ThrottleCounter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "b24_throttle_counter",
			Help: "Current leaky-bucket request counter",
		},
	)

	// OperatingTimeUsed tracks the windowed operating-time budget usage
	OperatingTimeUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "b24_operating_time_used_seconds",
			Help: "Operating time consumed in the current budget window",
		},
	)
)
