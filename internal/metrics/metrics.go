package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoreply_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"platform", "outcome"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoreply_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform", "stage"},
	)

	RepliesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoreply_replies_posted_total",
			Help: "Total number of replies posted to platforms",
		},
		[]string{"platform"},
	)

	// Rate limiter metrics
	LimiterQueued = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoreply_ratelimit_queued",
			Help: "Calls currently waiting for admission",
		},
		[]string{"limiter"},
	)

	LimiterWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoreply_ratelimit_wait_seconds",
			Help:    "Time spent waiting for rate limiter admission",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"limiter"},
	)

	// Upstream API metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoreply_upstream_requests_total",
			Help: "Total number of requests to platform and LLM APIs",
		},
		[]string{"upstream", "status"},
	)

	// HTTP API metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoreply_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoreply_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Fleet metrics
	FleetBatchTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoreply_fleet_batch_timeouts_total",
			Help: "Batches the scheduler stopped waiting on",
		},
	)
)
