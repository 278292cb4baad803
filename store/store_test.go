package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Store 测试（内存 SQLite）
// =============================================================================

func setupTestStore(t *testing.T) *Store {
	s, err := Open(Config{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.AutoMigrate())

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpen_MemorySQLiteCollapsesPool(t *testing.T) {
	// 纯内存 sqlite 下多连接各有各的空库，
	// 即使配置了连接池也必须收敛到单连接
	s, err := Open(Config{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 25,
		MaxIdleConns: 0,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.AutoMigrate())
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()

	// 多次连续操作会轮换底层连接；建好的表必须始终可见
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Queue.Seed(ctx, "a", "https://x.com"))
		count, err := s.Queue.Count(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	}

	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

// --- 爬取队列 ---

func TestCrawlQueue_SeedAndNextPending(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Queue.Seed(ctx, "agent-1", "https://example.com"))

	entries, err := s.Queue.NextPending(ctx, "agent-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://example.com", entries[0].URL)
	assert.Equal(t, 0, entries[0].Depth)
	assert.Equal(t, QueueStatusPending, entries[0].Status)
}

func TestCrawlQueue_EnqueueIgnoreDuplicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Queue.Seed(ctx, "agent-1", "https://example.com"))

	now := time.Now()
	added, err := s.Queue.EnqueueIgnore(ctx, []CrawlQueueEntry{
		{AgentID: "agent-1", URL: "https://example.com", Depth: 1, Status: QueueStatusPending, DiscoveredAt: now},
		{AgentID: "agent-1", URL: "https://example.com/about", Depth: 1, Status: QueueStatusPending, DiscoveredAt: now},
	})
	require.NoError(t, err)

	// 根 URL 已存在，只有 /about 新增；已有条目深度保持 0
	assert.Equal(t, int64(1), added)

	entries, err := s.Queue.List(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Depth)

	// 另一个代理可入队同一 URL
	added, err = s.Queue.EnqueueIgnore(ctx, []CrawlQueueEntry{
		{AgentID: "agent-2", URL: "https://example.com", Depth: 0, Status: QueueStatusPending, DiscoveredAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)
}

func TestCrawlQueue_NextPendingShallowestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	_, err := s.Queue.EnqueueIgnore(ctx, []CrawlQueueEntry{
		{AgentID: "a", URL: "https://x.com/deep", Depth: 2, Status: QueueStatusPending, DiscoveredAt: base},
		{AgentID: "a", URL: "https://x.com/late", Depth: 1, Status: QueueStatusPending, DiscoveredAt: base.Add(time.Second)},
		{AgentID: "a", URL: "https://x.com/early", Depth: 1, Status: QueueStatusPending, DiscoveredAt: base},
		{AgentID: "a", URL: "https://x.com", Depth: 0, Status: QueueStatusPending, DiscoveredAt: base.Add(2 * time.Second)},
	})
	require.NoError(t, err)

	entries, err := s.Queue.NextPending(ctx, "a", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "https://x.com", entries[0].URL)
	assert.Equal(t, "https://x.com/early", entries[1].URL)
	assert.Equal(t, "https://x.com/late", entries[2].URL)
}

func TestCrawlQueue_MarkAndSummary(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	_, err := s.Queue.EnqueueIgnore(ctx, []CrawlQueueEntry{
		{AgentID: "a", URL: "https://x.com", Depth: 0, Status: QueueStatusPending, DiscoveredAt: base},
		{AgentID: "a", URL: "https://x.com/a", Depth: 1, Status: QueueStatusPending, DiscoveredAt: base},
		{AgentID: "a", URL: "https://x.com/b", Depth: 1, Status: QueueStatusPending, DiscoveredAt: base},
	})
	require.NoError(t, err)

	entries, err := s.Queue.NextPending(ctx, "a", 1)
	require.NoError(t, err)
	require.NoError(t, s.Queue.MarkScraped(ctx, entries[0].ID))

	entries, err = s.Queue.NextPending(ctx, "a", 1)
	require.NoError(t, err)
	require.NoError(t, s.Queue.MarkError(ctx, entries[0].ID, "boom"))

	summary, err := s.Queue.Summary(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Pending)
	assert.Equal(t, int64(1), summary.Scraped)
	assert.Equal(t, int64(1), summary.Errored)
	assert.Equal(t, int64(3), summary.Total)
	assert.Equal(t, 1, summary.MaxDepth)
}

func TestCrawlQueue_MarkAllPendingError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	_, err := s.Queue.EnqueueIgnore(ctx, []CrawlQueueEntry{
		{AgentID: "a", URL: "https://x.com", Depth: 0, Status: QueueStatusScraped, DiscoveredAt: base},
		{AgentID: "a", URL: "https://x.com/a", Depth: 1, Status: QueueStatusPending, DiscoveredAt: base},
		{AgentID: "a", URL: "https://x.com/b", Depth: 1, Status: QueueStatusPending, DiscoveredAt: base},
	})
	require.NoError(t, err)

	n, err := s.Queue.MarkAllPendingError(ctx, "a", "scrape service rate limited")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pending, err := s.Queue.CountPending(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)

	// 已抓取条目不受影响
	summary, err := s.Queue.Summary(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Scraped)
	assert.Equal(t, int64(2), summary.Errored)
}

func TestCrawlQueue_Wipe(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Queue.Seed(ctx, "a", "https://x.com"))
	require.NoError(t, s.Queue.Seed(ctx, "b", "https://y.com"))

	require.NoError(t, s.Queue.Wipe(ctx, "a"))

	count, err := s.Queue.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = s.Queue.Count(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// --- 知识页面 ---

func TestKnowledgePages_UpsertConflictUpdates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	page := &KnowledgePage{
		AgentID:         "a",
		SourceURL:       "https://x.com/docs",
		Title:           "Docs",
		MarkdownContent: "# Docs\nv1",
		ContentHash:     "h1",
	}
	require.NoError(t, s.Pages.Upsert(ctx, page))

	// 模拟重新抓取：内容变化，状态回到待处理
	updated := &KnowledgePage{
		AgentID:         "a",
		SourceURL:       "https://x.com/docs",
		Title:           "Docs v2",
		MarkdownContent: "# Docs\nv2",
		ContentHash:     "h2",
		Status:          PageStatusPending,
	}
	require.NoError(t, s.Pages.Upsert(ctx, updated))

	got, err := s.Pages.Get(ctx, "a", "https://x.com/docs")
	require.NoError(t, err)
	assert.Equal(t, "Docs v2", got.Title)
	assert.Equal(t, "h2", got.ContentHash)
	assert.Equal(t, PageStatusPending, got.Status)

	pages, err := s.Pages.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestKnowledgePages_StatusLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	page := &KnowledgePage{AgentID: "a", SourceURL: "https://x.com", MarkdownContent: "# Home"}
	require.NoError(t, s.Pages.Upsert(ctx, page))

	require.NoError(t, s.Pages.MarkChunked(ctx, page.ID, 4))
	got, err := s.Pages.Get(ctx, "a", "https://x.com")
	require.NoError(t, err)
	assert.Equal(t, PageStatusChunked, got.Status)
	assert.Equal(t, 4, got.ChunkCount)

	require.NoError(t, s.Pages.MarkEmbedded(ctx, page.ID))
	got, err = s.Pages.Get(ctx, "a", "https://x.com")
	require.NoError(t, err)
	assert.Equal(t, PageStatusEmbedded, got.Status)

	require.NoError(t, s.Pages.MarkError(ctx, page.ID, "embedding failed"))
	got, err = s.Pages.Get(ctx, "a", "https://x.com")
	require.NoError(t, err)
	assert.Equal(t, PageStatusError, got.Status)
	assert.Equal(t, "embedding failed", got.ErrorMessage)
}

func TestKnowledgePages_ResetAllToPending(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p1 := &KnowledgePage{AgentID: "a", SourceURL: "https://x.com/1", Status: PageStatusEmbedded, ChunkCount: 3}
	p2 := &KnowledgePage{AgentID: "a", SourceURL: "https://x.com/2", Status: PageStatusError, ErrorMessage: "boom"}
	require.NoError(t, s.Pages.Upsert(ctx, p1))
	require.NoError(t, s.Pages.Upsert(ctx, p2))

	n, err := s.Pages.ResetAllToPending(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	summary, err := s.Pages.Summary(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Pending)
	assert.Equal(t, int64(0), summary.Embedded)

	got, err := s.Pages.Get(ctx, "a", "https://x.com/1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.ChunkCount)
	assert.Equal(t, "", got.ErrorMessage)
}

// --- 人工问答对 ---

func TestCuratedQA_UpsertConflictUpdates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	qa := &CuratedQA{
		AgentID:   "a",
		Question:  "What are your hours?",
		Answer:    "9 to 5 on weekdays.",
		SourceURL: "https://x.com/contact",
	}
	require.NoError(t, s.CuratedQA.Upsert(ctx, qa))
	require.NotZero(t, qa.ID)

	// 同问题重复保存：覆盖答案，ID 回填为已有行
	updated := &CuratedQA{
		AgentID:  "a",
		Question: "What are your hours?",
		Answer:   "Open every day, 8 to 8.",
	}
	require.NoError(t, s.CuratedQA.Upsert(ctx, updated))
	assert.Equal(t, qa.ID, updated.ID)

	pairs, err := s.CuratedQA.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Open every day, 8 to 8.", pairs[0].Answer)
}

func TestCuratedQA_RejectsBlankFields(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.CuratedQA.Upsert(ctx, &CuratedQA{AgentID: "a", Question: "  ", Answer: "x"}))
	assert.Error(t, s.CuratedQA.Upsert(ctx, &CuratedQA{AgentID: "a", Question: "q", Answer: ""}))
}

func TestCuratedQA_GetAndDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	qa := &CuratedQA{AgentID: "a", Question: "Do you deliver?", Answer: "Yes, city-wide."}
	require.NoError(t, s.CuratedQA.Upsert(ctx, qa))

	got, err := s.CuratedQA.Get(ctx, "a", qa.ID)
	require.NoError(t, err)
	assert.Equal(t, "Do you deliver?", got.Question)

	// 其他代理看不到这条
	_, err = s.CuratedQA.Get(ctx, "b", qa.ID)
	assert.Error(t, err)

	require.NoError(t, s.CuratedQA.Delete(ctx, "a", qa.ID))
	_, err = s.CuratedQA.Get(ctx, "a", qa.ID)
	assert.Error(t, err)
}

// --- 未回答问题 ---

func TestUnanswered_RecordUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Unanswered.Record(ctx, "a", "What is pricing?", 0.31))

	// 大小写不同视为同一问题；分数取最大值
	require.NoError(t, s.Unanswered.Record(ctx, "a", "WHAT IS PRICING?", 0.22))
	require.NoError(t, s.Unanswered.Record(ctx, "a", "  what is pricing?  ", 0.40))

	questions, err := s.Unanswered.List(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "what is pricing?", questions[0].Question)
	assert.Equal(t, 3, questions[0].TimesAsked)
	assert.InDelta(t, 0.40, questions[0].BestSimilarityScore, 1e-9)
}

func TestUnanswered_ListOrderAndIsolation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Unanswered.Record(ctx, "a", "rare question", 0.1))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Unanswered.Record(ctx, "a", "common question", 0.2))
	}
	require.NoError(t, s.Unanswered.Record(ctx, "b", "other agent question", 0.3))

	questions, err := s.Unanswered.List(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "common question", questions[0].Question)

	require.NoError(t, s.Unanswered.Wipe(ctx, "a"))
	questions, err = s.Unanswered.List(ctx, "a", 10)
	require.NoError(t, err)
	assert.Empty(t, questions)

	questions, err = s.Unanswered.List(ctx, "b", 10)
	require.NoError(t, err)
	assert.Len(t, questions, 1)
}

func TestUnanswered_EmptyQuestionIgnored(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Unanswered.Record(ctx, "a", "   ", 0.5))

	questions, err := s.Unanswered.List(ctx, "a", 10)
	require.NoError(t, err)
	assert.Empty(t, questions)
}
