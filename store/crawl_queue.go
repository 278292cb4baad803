// =============================================================================
// 📋 爬取队列仓储
// =============================================================================
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CrawlQueueRepo 爬取队列仓储
type CrawlQueueRepo struct {
	store *Store
}

// Wipe 清空某代理的全部队列条目（重新爬取前调用）
func (r *CrawlQueueRepo) Wipe(ctx context.Context, agentID string) error {
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Delete(&CrawlQueueEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to wipe crawl queue: %w", err)
	}
	return nil
}

// Seed 写入深度 0 的起始条目
func (r *CrawlQueueRepo) Seed(ctx context.Context, agentID, url string) error {
	entry := CrawlQueueEntry{
		AgentID:      agentID,
		URL:          url,
		Depth:        0,
		Status:       QueueStatusPending,
		DiscoveredAt: time.Now(),
	}
	if err := r.store.DB().WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to seed crawl queue: %w", err)
	}
	return nil
}

// EnqueueIgnore 批量入队，冲突（同代理同 URL）静默忽略。
// 返回实际新增条数。
func (r *CrawlQueueRepo) EnqueueIgnore(ctx context.Context, entries []CrawlQueueEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	result := r.store.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}, {Name: "url"}},
			DoNothing: true,
		}).
		Create(&entries)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to enqueue crawl entries: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// NextPending 返回最多 limit 条待抓取条目，浅层优先，同深度按发现时间排序
func (r *CrawlQueueRepo) NextPending(ctx context.Context, agentID string, limit int) ([]CrawlQueueEntry, error) {
	var entries []CrawlQueueEntry
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ? AND status = ?", agentID, QueueStatusPending).
		Order("depth ASC, discovered_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending entries: %w", err)
	}
	return entries, nil
}

// MarkScraped 标记条目抓取成功
func (r *CrawlQueueRepo) MarkScraped(ctx context.Context, id uint) error {
	now := time.Now()
	err := r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     QueueStatusScraped,
			"scraped_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark entry scraped: %w", err)
	}
	return nil
}

// MarkError 标记条目抓取失败
func (r *CrawlQueueRepo) MarkError(ctx context.Context, id uint, message string) error {
	err := r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        QueueStatusError,
			"error_message": message,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark entry error: %w", err)
	}
	return nil
}

// MarkAllPendingError 将某代理所有待抓取条目一次性标记失败。
// 抓取服务限流时调用，爬取随之终止。
func (r *CrawlQueueRepo) MarkAllPendingError(ctx context.Context, agentID, message string) (int64, error) {
	result := r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Where("agent_id = ? AND status = ?", agentID, QueueStatusPending).
		Updates(map[string]interface{}{
			"status":        QueueStatusError,
			"error_message": message,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark pending entries error: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountPending 返回某代理待抓取条目数
func (r *CrawlQueueRepo) CountPending(ctx context.Context, agentID string) (int64, error) {
	var count int64
	err := r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Where("agent_id = ? AND status = ?", agentID, QueueStatusPending).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return count, nil
}

// Count 返回某代理全部队列条目数（预算按入队总量计算）
func (r *CrawlQueueRepo) Count(ctx context.Context, agentID string) (int64, error) {
	var count int64
	err := r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Where("agent_id = ?", agentID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

// Exists 判断 URL 是否已在某代理队列中
func (r *CrawlQueueRepo) Exists(ctx context.Context, agentID, url string) (bool, error) {
	var count int64
	err := r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Where("agent_id = ? AND url = ?", agentID, url).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check queue entry: %w", err)
	}
	return count > 0, nil
}

// List 返回某代理全部队列条目
func (r *CrawlQueueRepo) List(ctx context.Context, agentID string) ([]CrawlQueueEntry, error) {
	var entries []CrawlQueueEntry
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("depth ASC, discovered_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

// Summary 返回某代理的爬取进度汇总
func (r *CrawlQueueRepo) Summary(ctx context.Context, agentID string) (*CrawlSummary, error) {
	summary := &CrawlSummary{AgentID: agentID}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Select("status, COUNT(*) as count").
		Where("agent_id = ?", agentID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize crawl queue: %w", err)
	}

	for _, row := range rows {
		switch row.Status {
		case QueueStatusPending:
			summary.Pending = row.Count
		case QueueStatusScraped:
			summary.Scraped = row.Count
		case QueueStatusError:
			summary.Errored = row.Count
		}
		summary.Total += row.Count
	}

	var maxDepth *int
	err = r.store.DB().WithContext(ctx).
		Model(&CrawlQueueEntry{}).
		Select("MAX(depth)").
		Where("agent_id = ?", agentID).
		Scan(&maxDepth).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to compute max depth: %w", err)
	}
	if maxDepth != nil {
		summary.MaxDepth = *maxDepth
	}

	return summary, nil
}
