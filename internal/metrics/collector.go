// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 爬取指标
	crawlPagesTotal    *prometheus.CounterVec
	crawlBatchDuration prometheus.Histogram
	crawlHalts         prometheus.Counter

	// 提问指标
	queriesTotal       *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	retrievalDuration  prometheus.Histogram
	generationDuration prometheus.Histogram
	tokensUsed         *prometheus.CounterVec

	// 回答缓存指标（按层）
	cacheHits   *prometheus.CounterVec
	cacheMisses prometheus.Counter

	// 摄取指标
	ingestPagesTotal  *prometheus.CounterVec
	ingestChunksTotal prometheus.Counter

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 爬取指标
	c.crawlPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_pages_total",
			Help:      "Total number of crawl queue entries processed",
		},
		[]string{"status"}, // scraped, error
	)

	c.crawlBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_batch_duration_seconds",
			Help:      "Crawl batch processing duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	c.crawlHalts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_halts_total",
			Help:      "Total number of crawls halted by upstream rate limiting",
		},
	)

	// 提问指标
	c.queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of visitor queries",
		},
		[]string{"intent", "outcome", "cache_layer"},
	)

	c.queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End to end query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	c.retrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Vector retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	c.generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Answer generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	c.tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of generation tokens used",
		},
		[]string{"type"}, // prompt, completion
	)

	// 回答缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_cache_hits_total",
			Help:      "Total number of answer cache hits",
		},
		[]string{"layer"}, // 1, 2, 3
	)

	c.cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_cache_misses_total",
			Help:      "Total number of answer cache misses",
		},
	)

	// 摄取指标
	c.ingestPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_pages_total",
			Help:      "Total number of pages processed by ingestion",
		},
		[]string{"status"}, // embedded, failed
	)

	c.ingestChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Total number of retrieval units upserted",
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🕷️ 爬取指标记录
// =============================================================================

// RecordCrawlPage 记录一条队列条目的终态
func (c *Collector) RecordCrawlPage(status string) {
	c.crawlPagesTotal.WithLabelValues(status).Inc()
}

// RecordCrawlBatch 记录一次批次处理
func (c *Collector) RecordCrawlBatch(duration time.Duration, rateLimited bool) {
	c.crawlBatchDuration.Observe(duration.Seconds())
	if rateLimited {
		c.crawlHalts.Inc()
	}
}

// =============================================================================
// 💬 提问指标记录
// =============================================================================

// RecordQuery 记录一次访客提问
func (c *Collector) RecordQuery(intent, outcome string, cacheLayer int, duration time.Duration) {
	layer := "none"
	if cacheLayer > 0 {
		layer = strconv.Itoa(cacheLayer)
	}
	c.queriesTotal.WithLabelValues(intent, outcome, layer).Inc()
	c.queryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRetrieval 记录检索耗时
func (c *Collector) RecordRetrieval(duration time.Duration) {
	c.retrievalDuration.Observe(duration.Seconds())
}

// RecordGeneration 记录生成耗时与 Token 用量
func (c *Collector) RecordGeneration(duration time.Duration, promptTokens, completionTokens int) {
	c.generationDuration.Observe(duration.Seconds())
	c.tokensUsed.WithLabelValues("prompt").Add(float64(promptTokens))
	c.tokensUsed.WithLabelValues("completion").Add(float64(completionTokens))
}

// =============================================================================
// 💾 回答缓存指标记录
// =============================================================================

// RecordCacheHit 记录某层缓存命中
func (c *Collector) RecordCacheHit(layer int) {
	c.cacheHits.WithLabelValues(strconv.Itoa(layer)).Inc()
}

// RecordCacheMiss 记录缓存整体未命中
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// =============================================================================
// 📥 摄取指标记录
// =============================================================================

// RecordIngest 记录一次摄取
func (c *Collector) RecordIngest(pagesEmbedded, pagesFailed, chunksUpserted int) {
	c.ingestPagesTotal.WithLabelValues("embedded").Add(float64(pagesEmbedded))
	c.ingestPagesTotal.WithLabelValues("failed").Add(float64(pagesFailed))
	c.ingestChunksTotal.Add(float64(chunksUpserted))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// statusClass 将 HTTP 状态码归并为类别
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
