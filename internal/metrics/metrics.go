package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AuthEvents counts session lifecycle events: register, login, refresh, logout, logout_all.
	AuthEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Session lifecycle events by outcome.",
		},
		[]string{"event", "result"},
	)

	RefreshTokensSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_tokens_swept_total",
			Help: "Expired refresh token records removed by the sweeper.",
		},
	)

	RefreshSweepFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_sweep_failures_total",
			Help: "Sweeper runs that failed.",
		},
	)
)
