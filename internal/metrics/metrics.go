// Package metrics 提供流水线的 Prometheus 指标
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 持有流水线的全部 Prometheus 指标
type Metrics struct {
	// 提取指标
	ExtractionsTotal   *prometheus.CounterVec // 按格式与结果状态计数
	ExtractionDuration *prometheus.HistogramVec

	// 任务指标
	JobsSubmittedTotal prometheus.Counter
	JobsFinishedTotal  *prometheus.CounterVec // 按终态计数
	JobsInFlight       prometheus.Gauge

	// 缓存指标
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter

	// 格式探测指标
	DetectionsTotal *prometheus.CounterVec // 按探测出的格式计数
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default 返回全局指标单例
// promauto 重复注册会 panic，所以整个进程只创建一次
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewWithRegistry 在独立的 Registry 上创建一套指标 (测试用)
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.ExtractionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_extractions_total",
			Help: "Total number of document extractions",
		},
		[]string{"format", "status"},
	)

	m.ExtractionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docanalyzer_extraction_duration_seconds",
			Help:    "Duration of document extractions in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"format"},
	)

	m.JobsSubmittedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_jobs_submitted_total",
			Help: "Total number of submitted analysis jobs",
		},
	)

	m.JobsFinishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_jobs_finished_total",
			Help: "Total number of finished jobs by terminal state",
		},
		[]string{"state"},
	)

	m.JobsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "docanalyzer_jobs_in_flight",
			Help: "Number of jobs currently running",
		},
	)

	m.CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	m.CacheMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	m.CacheEvictionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_cache_evictions_total",
			Help: "Total number of stale cache entries evicted",
		},
	)

	m.DetectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_detections_total",
			Help: "Total number of format detections by detected format",
		},
		[]string{"format"},
	)

	return m
}

// RecordExtraction 记录一次提取的格式、状态与耗时
func (m *Metrics) RecordExtraction(format string, status string, duration time.Duration) {
	m.ExtractionsTotal.WithLabelValues(format, status).Inc()
	m.ExtractionDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordJobFinished 记录一个任务进入终态
func (m *Metrics) RecordJobFinished(state string) {
	m.JobsFinishedTotal.WithLabelValues(state).Inc()
}
