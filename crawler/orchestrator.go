// =============================================================================
// 🕷️ 爬取编排器
// =============================================================================
// 基于持久化队列的可恢复 BFS 爬取：浅层优先、批量抓取、
// 深度与页面预算限制、限流即整体终止
// =============================================================================
package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/siteagent/scrape"
	"github.com/BaSui01/siteagent/store"
	"github.com/BaSui01/siteagent/types"
)

// Config 爬取配置
type Config struct {
	// 单个代理的页面总预算（入队上限）
	MaxPages int `yaml:"max_pages" json:"max_pages"`

	// 最大深度（起始页为 0）
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// 单批抓取页数
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// DefaultConfig 返回默认爬取配置
func DefaultConfig() Config {
	return Config{
		MaxPages:  100,
		MaxDepth:  3,
		BatchSize: 3,
	}
}

// BatchResult 单批处理结果
type BatchResult struct {
	// 本批处理的条目数
	Processed int `json:"processed"`

	// 抓取成功数
	Scraped int `json:"scraped"`

	// 抓取失败数
	Errored int `json:"errored"`

	// 剩余待抓取条目数
	PendingRemaining int64 `json:"pending_remaining"`

	// 爬取是否结束（无待抓取条目，或因限流终止）
	IsComplete bool `json:"is_complete"`

	// 是否因限流终止
	RateLimited bool `json:"rate_limited"`
}

// Status 某代理的爬取状态
type Status struct {
	Summary    *store.CrawlSummary `json:"summary"`
	IsComplete bool                `json:"is_complete"`
}

// AnswerWiper 重新爬取时需要连带失效的回答缓存
type AnswerWiper interface {
	Wipe(ctx context.Context, agentID string)
}

// Orchestrator 爬取编排器
type Orchestrator struct {
	store   *store.Store
	scraper scrape.Scraper
	answers AnswerWiper
	config  Config
	logger  *zap.Logger
}

// NewOrchestrator 创建爬取编排器。answers 可为 nil。
func NewOrchestrator(s *store.Store, scraper scrape.Scraper, answers AnswerWiper, config Config, logger *zap.Logger) *Orchestrator {
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 3
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 3
	}

	return &Orchestrator{
		store:   s,
		scraper: scraper,
		answers: answers,
		config:  config,
		logger:  logger.With(zap.String("component", "crawler")),
	}
}

// StartCrawl 重置某代理的队列并写入深度 0 的起始条目。
// 旧内容即将被取代，缓存的回答一并失效。
func (o *Orchestrator) StartCrawl(ctx context.Context, agentID, rootURL string) error {
	normalized, err := NormalizeURL(rootURL)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid root url: %v", err)).WithCause(err)
	}

	if err := o.store.Queue.Wipe(ctx, agentID); err != nil {
		return types.NewError(types.ErrStoreError, "failed to reset crawl queue").WithCause(err)
	}
	if err := o.store.Queue.Seed(ctx, agentID, normalized); err != nil {
		return types.NewError(types.ErrStoreError, "failed to seed crawl queue").WithCause(err)
	}

	if o.answers != nil {
		o.answers.Wipe(ctx, agentID)
	}

	o.logger.Info("crawl started",
		zap.String("agent_id", agentID),
		zap.String("root_url", normalized),
	)

	return nil
}

// scrapeOutcome 单条目的抓取结果
type scrapeOutcome struct {
	entry  store.CrawlQueueEntry
	result *scrape.Result
	err    error
}

// ProcessBatch 抓取一批待处理条目。
// 浅层优先取最多 BatchSize 条；并发抓取后按队列顺序落库。
// 遇到限流：当前条目与所有剩余待抓取条目一次性标记失败，爬取终止。
func (o *Orchestrator) ProcessBatch(ctx context.Context, agentID string) (*BatchResult, error) {
	entries, err := o.store.Queue.NextPending(ctx, agentID, o.config.BatchSize)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "failed to fetch pending entries").WithCause(err)
	}

	if len(entries) == 0 {
		return &BatchResult{IsComplete: true}, nil
	}

	// 并发抓取
	outcomes := make([]scrapeOutcome, len(entries))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			result, scrapeErr := o.scrapeWithRetry(gctx, entry.URL)
			mu.Lock()
			outcomes[i] = scrapeOutcome{entry: entry, result: result, err: scrapeErr}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BatchResult{Processed: len(entries)}

	// 按队列顺序落库；限流立即终止
	for _, outcome := range outcomes {
		if outcome.err != nil {
			if types.IsRateLimited(outcome.err) {
				return o.haltForRateLimit(ctx, agentID, outcome.entry, result)
			}

			o.logger.Warn("scrape failed",
				zap.String("agent_id", agentID),
				zap.String("url", outcome.entry.URL),
				zap.Error(outcome.err),
			)
			if err := o.store.Queue.MarkError(ctx, outcome.entry.ID, outcome.err.Error()); err != nil {
				return nil, err
			}
			result.Errored++
			continue
		}

		if err := o.persistPage(ctx, agentID, outcome.entry, outcome.result); err != nil {
			return nil, err
		}
		result.Scraped++

		if err := o.enqueueLinks(ctx, agentID, outcome.entry, outcome.result.Links); err != nil {
			return nil, err
		}
	}

	pending, err := o.store.Queue.CountPending(ctx, agentID)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "failed to count pending entries").WithCause(err)
	}
	result.PendingRemaining = pending
	result.IsComplete = pending == 0

	o.logger.Info("crawl batch processed",
		zap.String("agent_id", agentID),
		zap.Int("scraped", result.Scraped),
		zap.Int("errored", result.Errored),
		zap.Int64("pending_remaining", result.PendingRemaining),
		zap.Bool("is_complete", result.IsComplete),
	)

	return result, nil
}

// scrapeWithRetry 抓取单页，瞬时故障（超时 / 5xx）重试一次
func (o *Orchestrator) scrapeWithRetry(ctx context.Context, url string) (*scrape.Result, error) {
	result, err := o.scraper.Scrape(ctx, url)
	if err == nil {
		return result, nil
	}
	if types.IsRateLimited(err) || !types.IsRetryable(err) {
		return nil, err
	}

	o.logger.Debug("retrying transient scrape failure", zap.String("url", url), zap.Error(err))
	return o.scraper.Scrape(ctx, url)
}

// haltForRateLimit 限流终止：触发条目与全部剩余待抓取条目标记失败
func (o *Orchestrator) haltForRateLimit(ctx context.Context, agentID string, entry store.CrawlQueueEntry, result *BatchResult) (*BatchResult, error) {
	const reason = "scrape service rate limited; crawl halted"

	if err := o.store.Queue.MarkError(ctx, entry.ID, reason); err != nil {
		return nil, err
	}
	halted, err := o.store.Queue.MarkAllPendingError(ctx, agentID, reason)
	if err != nil {
		return nil, err
	}

	result.Errored = result.Processed - result.Scraped
	result.PendingRemaining = 0
	result.IsComplete = true
	result.RateLimited = true

	o.logger.Warn("crawl halted by rate limit",
		zap.String("agent_id", agentID),
		zap.String("url", entry.URL),
		zap.Int64("entries_cancelled", halted),
	)

	return result, nil
}

// persistPage 页面内容落库并标记条目已抓取
func (o *Orchestrator) persistPage(ctx context.Context, agentID string, entry store.CrawlQueueEntry, res *scrape.Result) error {
	hash := sha256.Sum256([]byte(res.Markdown))

	page := &store.KnowledgePage{
		AgentID:         agentID,
		SourceURL:       entry.URL,
		Title:           res.Title,
		MarkdownContent: res.Markdown,
		ContentHash:     hex.EncodeToString(hash[:]),
		Status:          store.PageStatusPending,
	}
	if err := o.store.Pages.Upsert(ctx, page); err != nil {
		return types.NewError(types.ErrStoreError, "failed to persist page").WithCause(err)
	}

	if err := o.store.Queue.MarkScraped(ctx, entry.ID); err != nil {
		return types.NewError(types.ErrStoreError, "failed to mark entry scraped").WithCause(err)
	}

	return nil
}

// enqueueLinks 入队同站链接：深度 +1，超深度或超预算的链接静默丢弃
func (o *Orchestrator) enqueueLinks(ctx context.Context, agentID string, parent store.CrawlQueueEntry, links []string) error {
	depth := parent.Depth + 1
	if depth > o.config.MaxDepth || len(links) == 0 {
		return nil
	}

	total, err := o.store.Queue.Count(ctx, agentID)
	if err != nil {
		return types.NewError(types.ErrStoreError, "failed to count queue entries").WithCause(err)
	}
	remaining := int64(o.config.MaxPages) - total
	if remaining <= 0 {
		return nil
	}

	now := time.Now()
	seen := make(map[string]bool, len(links))
	candidates := make([]store.CrawlQueueEntry, 0, len(links))

	for _, link := range links {
		normalized, err := NormalizeURL(link)
		if err != nil {
			continue
		}
		if !SameSite(normalized, parent.URL) || seen[normalized] {
			continue
		}
		seen[normalized] = true

		candidates = append(candidates, store.CrawlQueueEntry{
			AgentID:      agentID,
			URL:          normalized,
			Depth:        depth,
			Status:       store.QueueStatusPending,
			DiscoveredAt: now,
		})
		if int64(len(candidates)) >= remaining {
			break
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	added, err := o.store.Queue.EnqueueIgnore(ctx, candidates)
	if err != nil {
		return types.NewError(types.ErrStoreError, "failed to enqueue links").WithCause(err)
	}

	o.logger.Debug("links enqueued",
		zap.String("agent_id", agentID),
		zap.Int("candidates", len(candidates)),
		zap.Int64("added", added),
		zap.Int("depth", depth),
	)

	return nil
}

// Status 返回某代理的爬取状态汇总
func (o *Orchestrator) Status(ctx context.Context, agentID string) (*Status, error) {
	summary, err := o.store.Queue.Summary(ctx, agentID)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "failed to summarize crawl").WithCause(err)
	}

	return &Status{
		Summary:    summary,
		IsComplete: summary.Total > 0 && summary.Pending == 0,
	}, nil
}

// Cleanup 爬取与入库全部完成后清理队列条目
func (o *Orchestrator) Cleanup(ctx context.Context, agentID string) error {
	if err := o.store.Queue.Wipe(ctx, agentID); err != nil {
		return types.NewError(types.ErrStoreError, "failed to clean crawl queue").WithCause(err)
	}
	return nil
}
