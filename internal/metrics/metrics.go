// Package metrics provides Prometheus metrics collection for the performance layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks admin API request duration by method, path, and status code.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)

	// HTTPRequestTotal tracks total admin API requests by method, path, and status code.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	// CacheOperationsTotal tracks cache operations per named cache.
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"cache", "operation", "result"},
	)

	// CacheSize tracks current entry count per named cache.
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_size",
			Help: "Current cache size",
		},
		[]string{"cache"},
	)

	// CacheComputeDuration tracks how long cache misses take to compute.
	CacheComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_compute_duration_seconds",
			Help:    "Duration of cache miss computations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		},
		[]string{"cache"},
	)

	// PoolConnections tracks pooled connections by state (idle, in_use).
	PoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pool_connections",
			Help: "Pooled connections by state",
		},
		[]string{"pool", "state"},
	)

	// PoolAcquireDuration tracks the time spent waiting in Acquire.
	PoolAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pool_acquire_duration_seconds",
			Help:    "Time spent acquiring a pooled connection in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"pool"},
	)

	// PoolAcquireFailuresTotal tracks failed acquisitions by reason.
	PoolAcquireFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_acquire_failures_total",
			Help: "Total number of failed connection acquisitions",
		},
		[]string{"pool", "reason"},
	)

	// PoolDiscardedTotal tracks connections discarded as broken or idle.
	PoolDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_discarded_total",
			Help: "Total number of pooled connections closed by the pool",
		},
		[]string{"pool", "reason"},
	)

	// ObjectPoolOperationsTotal tracks object pool borrow/return outcomes.
	ObjectPoolOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "object_pool_operations_total",
			Help: "Total number of object pool operations",
		},
		[]string{"pool", "operation"},
	)

	// MemoryResidentBytes tracks the latest sampled resident memory.
	MemoryResidentBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_resident_bytes",
			Help: "Latest sampled resident memory in bytes",
		},
	)

	// MemoryUsageRatio tracks resident memory as a fraction of the configured limit.
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_ratio",
			Help: "Resident memory as a fraction of the configured limit",
		},
	)

	// MemoryCleanupsTotal tracks cleanup cycles triggered by memory pressure.
	MemoryCleanupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_cleanups_total",
			Help: "Total number of cleanup cycles triggered by memory pressure",
		},
	)

	// FetchResultsTotal tracks coordinated fetch outcomes.
	FetchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_results_total",
			Help: "Total number of coordinated fetch results",
		},
		[]string{"result"},
	)
)

// PrometheusMiddleware returns a Gin middleware that collects HTTP metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(duration)
		HTTPRequestTotal.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordCacheOperation records metrics for a cache operation.
func RecordCacheOperation(cache, operation, result string) {
	CacheOperationsTotal.WithLabelValues(cache, operation, result).Inc()
}

// RecordCacheCompute records the duration of a cache miss computation.
func RecordCacheCompute(cache string, d time.Duration) {
	CacheComputeDuration.WithLabelValues(cache).Observe(d.Seconds())
}

// UpdateCacheSize updates the entry count gauge for a cache.
func UpdateCacheSize(cache string, size int) {
	CacheSize.WithLabelValues(cache).Set(float64(size))
}

// UpdatePoolConnections updates the idle and in-use gauges for a pool.
func UpdatePoolConnections(pool string, idle, inUse int) {
	PoolConnections.WithLabelValues(pool, "idle").Set(float64(idle))
	PoolConnections.WithLabelValues(pool, "in_use").Set(float64(inUse))
}

// RecordPoolAcquire records a successful acquisition and its wait time.
func RecordPoolAcquire(pool string, wait time.Duration) {
	PoolAcquireDuration.WithLabelValues(pool).Observe(wait.Seconds())
}

// RecordPoolAcquireFailure records a failed acquisition.
func RecordPoolAcquireFailure(pool, reason string) {
	PoolAcquireFailuresTotal.WithLabelValues(pool, reason).Inc()
}

// RecordPoolDiscard records a connection closed by the pool.
func RecordPoolDiscard(pool, reason string) {
	PoolDiscardedTotal.WithLabelValues(pool, reason).Inc()
}

// RecordObjectPoolOperation records an object pool operation.
func RecordObjectPoolOperation(pool, operation string) {
	ObjectPoolOperationsTotal.WithLabelValues(pool, operation).Inc()
}

// RecordMemorySample updates the memory gauges.
func RecordMemorySample(residentBytes uint64, usage float64) {
	MemoryResidentBytes.Set(float64(residentBytes))
	MemoryUsageRatio.Set(usage)
}

// RecordMemoryCleanup increments the cleanup counter.
func RecordMemoryCleanup() {
	MemoryCleanupsTotal.Inc()
}

// RecordFetchResult records a coordinated fetch outcome.
func RecordFetchResult(result string) {
	FetchResultsTotal.WithLabelValues(result).Inc()
}
