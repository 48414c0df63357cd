// Package metrics provides Prometheus instrumentation for the Novamarkt platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "novamarkt",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "novamarkt",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// OrderTransitionsTotal counts order state transitions by target status.
	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "novamarkt",
			Name:      "order_transitions_total",
			Help:      "Total order state transitions by resulting status.",
		},
		[]string{"status"},
	)

	// OrdersAutoReleasedTotal counts orders completed by the auto-release sweep.
	OrdersAutoReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "novamarkt",
		Name:      "orders_auto_released_total",
		Help:      "Total orders completed by the auto-release sweep.",
	})

	// ListingsCreatedTotal counts listings created.
	ListingsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "novamarkt",
		Name:      "listings_created_total",
		Help:      "Total listings created.",
	})

	// DisputesOpenedTotal counts disputes opened by buyers.
	DisputesOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "novamarkt",
		Name:      "disputes_opened_total",
		Help:      "Total disputes opened.",
	})

	// FraudSignalsTotal counts fraud signals created, by rule type.
	FraudSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "novamarkt",
			Name:      "fraud_signals_total",
			Help:      "Total fraud signals created by rule type.",
		},
		[]string{"type"},
	)

	// MessagesBlockedTotal counts chat messages rejected by the moderation filter.
	MessagesBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "novamarkt",
		Name:      "messages_blocked_total",
		Help:      "Total chat messages blocked by the moderation filter.",
	})

	// TrustRecomputesTotal counts trust score recomputations.
	TrustRecomputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "novamarkt",
		Name:      "trust_recomputes_total",
		Help:      "Total trust score recomputations.",
	})

	// RateLimitedTotal counts requests rejected by a rate limiter, by limit name.
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "novamarkt",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by rate limiting, by limit name.",
		},
		[]string{"limit"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "novamarkt",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "novamarkt", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "novamarkt", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "novamarkt", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "novamarkt", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OrderTransitionsTotal,
		OrdersAutoReleasedTotal,
		ListingsCreatedTotal,
		DisputesOpenedTotal,
		FraudSignalsTotal,
		MessagesBlockedTotal,
		TrustRecomputesTotal,
		RateLimitedTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
