package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.crawlPagesTotal)
	assert.NotNil(t, collector.queriesTotal)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.tokensUsed)
}

func TestCollector_RecordCrawl(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordCrawlPage("scraped")
	collector.RecordCrawlPage("error")
	collector.RecordCrawlBatch(2*time.Second, true)

	count := testutil.CollectAndCount(collector.crawlPagesTotal)
	assert.Greater(t, count, 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.crawlHalts), 1e-9)
}

func TestCollector_RecordQuery(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordQuery("website_query", "generated", 0, 800*time.Millisecond)
	collector.RecordQuery("website_query", "cache_hit", 1, 5*time.Millisecond)
	collector.RecordQuery("greeting", "routed", 0, time.Millisecond)

	count := testutil.CollectAndCount(collector.queriesTotal)
	assert.GreaterOrEqual(t, count, 3)
}

func TestCollector_RecordGeneration(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordGeneration(1200*time.Millisecond, 420, 77)

	assert.InDelta(t, 420.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("prompt")), 1e-9)
	assert.InDelta(t, 77.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("completion")), 1e-9)
}

func TestCollector_RecordCacheLayers(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordCacheHit(1)
	collector.RecordCacheHit(1)
	collector.RecordCacheHit(3)
	collector.RecordCacheMiss()

	assert.InDelta(t, 2.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("1")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("3")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.cacheMisses), 1e-9)
}

func TestCollector_RecordIngest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordIngest(4, 1, 37)

	assert.InDelta(t, 4.0, testutil.ToFloat64(collector.ingestPagesTotal.WithLabelValues("embedded")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.ingestPagesTotal.WithLabelValues("failed")), 1e-9)
	assert.InDelta(t, 37.0, testutil.ToFloat64(collector.ingestChunksTotal), 1e-9)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordHTTPRequest("POST", "/api/v1/query", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("POST", "/api/v1/query", 502, 50*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordDBConnections("sqlite", 10, 5)

	assert.InDelta(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("sqlite")), 1e-9)
	assert.InDelta(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("sqlite")), 1e-9)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordQuery("website_query", "generated", 0, 100*time.Millisecond)
			collector.RecordCacheHit(2)
			collector.RecordCrawlPage("scraped")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.InDelta(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("2")), 1e-9)
	assert.InDelta(t, 10.0, testutil.ToFloat64(collector.crawlPagesTotal.WithLabelValues("scraped")), 1e-9)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(301))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(502))
	assert.Equal(t, "unknown", statusClass(42))
}
