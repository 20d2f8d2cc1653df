package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds all Prometheus collectors for the Totemic backend.
var Metrics = struct {
	LikesTotal          *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	DBPoolActive        prometheus.GaugeFunc
	DBPoolIdle          prometheus.GaugeFunc
	RequestsInFlight    prometheus.Gauge
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	EngageRetries       prometheus.Counter
	QuotaExhausted      prometheus.Counter
	CrispRecalcDuration prometheus.Histogram
}{}

// InitMetrics registers all Prometheus metrics. Call once at startup.
func InitMetrics(pool *pgxpool.Pool) {
	Metrics.LikesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "totemic_likes_total",
			Help: "Total engagement writes committed, by action.",
		},
		[]string{"action"},
	)

	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "totemic_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	Metrics.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "totemic_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	Metrics.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "totemic_cache_hits_total",
			Help: "Total Redis cache hits.",
		},
	)

	Metrics.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "totemic_cache_misses_total",
			Help: "Total Redis cache misses.",
		},
	)

	Metrics.EngageRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "totemic_engage_commit_retries_total",
			Help: "Total extra commit attempts spent on version conflicts.",
		},
	)

	Metrics.QuotaExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "totemic_refresh_quota_exhausted_total",
			Help: "Total refresh attempts rejected for an empty quota.",
		},
	)

	Metrics.CrispRecalcDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "totemic_crispness_recalculation_duration_seconds",
			Help:    "Duration of per-post crispness rewrites.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DB pool gauges — read live stats from pgxpool
	if pool != nil {
		Metrics.DBPoolActive = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "totemic_db_connection_pool_active",
				Help: "Number of active database connections.",
			},
			func() float64 {
				return float64(pool.Stat().AcquiredConns())
			},
		)

		Metrics.DBPoolIdle = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "totemic_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			},
			func() float64 {
				return float64(pool.Stat().IdleConns())
			},
		)

		prometheus.MustRegister(Metrics.DBPoolActive)
		prometheus.MustRegister(Metrics.DBPoolIdle)
	}

	prometheus.MustRegister(
		Metrics.LikesTotal,
		Metrics.RequestDuration,
		Metrics.RequestsInFlight,
		Metrics.CacheHits,
		Metrics.CacheMisses,
		Metrics.EngageRetries,
		Metrics.QuotaExhausted,
		Metrics.CrispRecalcDuration,
	)
}

// MetricsMiddleware records request duration and in-flight count for Prometheus.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Don't instrument the /metrics endpoint itself
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy path and method into owned strings BEFORE c.Next() — Fiber
		// returns slices backed by the fasthttp buffer which can be reused
		// or overwritten by handlers (especially fasthttpadaptor).
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := sanitizeEndpoint(path)

		Metrics.RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())

		Metrics.RequestDuration.WithLabelValues(endpoint, method, status).Observe(duration)
		Metrics.RequestsInFlight.Dec()

		return err
	}
}

// sanitizeEndpoint normalizes paths to avoid cardinality explosion.
func sanitizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/posts/"):
		rest := path[len("/api/posts/"):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			suffix := rest[idx:]
			if i := strings.LastIndexByte(suffix, '/'); i > 0 {
				switch suffix[i:] {
				case "/toggle", "/restore", "/refresh", "/crispness", "/history":
					return "/api/posts/:postId/answers/:answerId/labels/:label" + suffix[i:]
				}
			}
			return "/api/posts/:postId" + suffix
		}
		return "/api/posts/:postId"
	case strings.HasPrefix(path, "/api/users/"):
		return "/api/users/:userId/quota"
	default:
		return path
	}
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
