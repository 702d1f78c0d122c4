package models

import "time"

// SystemMetrics is a JSON-friendly summary of the service instrumentation.
type SystemMetrics struct {
	RequestsTotal            uint64           `json:"requests_total"`
	AverageRequestDurationMs float64          `json:"average_request_duration_ms"`
	CacheHitRatio            float64          `json:"cache_hit_ratio"`
	CacheHits                uint64           `json:"cache_hits"`
	CacheMisses              uint64           `json:"cache_misses"`
	DBQueryCount             uint64           `json:"db_query_count"`
	AverageDBQueryDurationMs float64          `json:"average_db_query_duration_ms"`
	JobsRunning              int64            `json:"jobs_running"`
	JobsFinished             map[string]int64 `json:"jobs_finished"`
	SearchIterations         uint64           `json:"search_iterations"`
	Goroutines               int              `json:"goroutines"`
	GeneratedAt              time.Time        `json:"generated_at"`
}
