package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardflow",
			Name:      "transitions_total",
			Help:      "Status transitions applied by the reconciliation engine, by outcome.",
		},
		[]string{"outcome"},
	)

	NotificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardflow",
			Name:      "notifications_total",
			Help:      "TransactionSucceeded events emitted.",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardflow",
			Name:      "notification_failures_total",
			Help:      "TransactionSucceeded events that failed to publish.",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cardflow",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one poll scheduler sweep.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SweepCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cardflow",
			Name:      "sweep_candidates",
			Help:      "Pending transactions picked up per sweep.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardflow",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardflow",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
		httpRequestsTotal.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Inc()
	}
}
