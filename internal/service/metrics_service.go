package service

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/season-scheduler/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	jobsTotal        *prometheus.CounterVec
	jobDuration      prometheus.Observer
	jobsRunning      prometheus.Gauge
	searchIterations prometheus.Counter
	softScore        prometheus.Gauge
	hardViolations   prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	iterationCount       uint64
	runningCount         int64

	mu       sync.Mutex
	finished map[string]int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "season_jobs_total",
		Help: "Finished optimization jobs by terminal status",
	}, []string{"status"})

	jobDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "season_job_duration_seconds",
		Help:    "Wall time of optimization jobs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	jobsRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "season_jobs_running",
		Help: "Optimization jobs currently executing",
	})

	searchIterations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "season_search_iterations_total",
		Help: "Annealing iterations performed across all jobs",
	})

	softScore := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "season_last_soft_score",
		Help: "Best soft score reported by the most recent progress event",
	})

	hardViolations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "season_last_hard_violations",
		Help: "Hard violations of the best schedule in the most recent progress event",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses, dbQueryDuration,
		jobsTotal, jobDuration, jobsRunning, searchIterations, softScore, hardViolations, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
		jobsTotal:        jobsTotal,
		jobDuration:      jobDuration,
		jobsRunning:      jobsRunning,
		searchIterations: searchIterations,
		softScore:        softScore,
		hardViolations:   hardViolations,
		finished:         make(map[string]int64),
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a progress snapshot lookup against redis.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// JobStarted marks one more optimization job as executing.
func (m *MetricsService) JobStarted() {
	if m == nil {
		return
	}
	m.jobsRunning.Inc()
	atomic.AddInt64(&m.runningCount, 1)
}

// JobFinished records the terminal status, duration and iteration count of a job that
// previously called JobStarted.
func (m *MetricsService) JobFinished(status models.JobStatus, duration time.Duration, iterations int) {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
	atomic.AddInt64(&m.runningCount, -1)
	m.jobsTotal.WithLabelValues(string(status)).Inc()
	m.jobDuration.Observe(duration.Seconds())
	if iterations > 0 {
		m.searchIterations.Add(float64(iterations))
		atomic.AddUint64(&m.iterationCount, uint64(iterations))
	}
	m.mu.Lock()
	m.finished[string(status)]++
	m.mu.Unlock()
}

// Report implements ProgressReporter by tracking the latest best score.
func (m *MetricsService) Report(_ context.Context, event models.ProgressEvent) {
	if m == nil || event.Metrics == nil {
		return
	}
	if v, ok := event.Metrics["softScore"]; ok {
		m.softScore.Set(v)
	}
	if v, ok := event.Metrics["hardViolations"]; ok {
		m.hardViolations.Set(v)
	}
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	m.mu.Lock()
	finished := make(map[string]int64, len(m.finished))
	for k, v := range m.finished {
		finished[k] = v
	}
	m.mu.Unlock()

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		JobsRunning:              atomic.LoadInt64(&m.runningCount),
		JobsFinished:             finished,
		SearchIterations:         atomic.LoadUint64(&m.iterationCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
