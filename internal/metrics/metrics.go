package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visibility_tracker_sessions_total",
			Help: "Tracking sessions by lifecycle event",
		},
		[]string{"event"}, // started, completed, failed, stopped
	)

	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visibility_tracker_provider_calls_total",
			Help: "AI provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visibility_tracker_provider_latency_seconds",
			Help:    "AI provider call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		},
		[]string{"provider"},
	)

	ProviderTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visibility_tracker_provider_tokens_total",
			Help: "Tokens consumed by AI provider calls",
		},
		[]string{"provider", "type"},
	)

	ProviderCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visibility_tracker_provider_cost_usd",
			Help: "Estimated AI provider cost in USD",
		},
		[]string{"provider"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visibility_tracker_jobs_total",
			Help: "Queue jobs by outcome",
		},
		[]string{"queue", "outcome"}, // completed, retried, exhausted, duplicate
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visibility_tracker_job_duration_seconds",
			Help:    "Queue job handler duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"queue"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visibility_tracker_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SessionsTotal)
		prometheus.MustRegister(ProviderCalls)
		prometheus.MustRegister(ProviderLatency)
		prometheus.MustRegister(ProviderTokens)
		prometheus.MustRegister(ProviderCost)
		prometheus.MustRegister(JobsTotal)
		prometheus.MustRegister(JobDuration)
		prometheus.MustRegister(HTTPRequests)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
