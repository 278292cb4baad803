// =============================================================================
// 📄 知识页面仓储
// =============================================================================
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// KnowledgePageRepo 知识页面仓储
type KnowledgePageRepo struct {
	store *Store
}

// Upsert 写入页面，冲突（同代理同源 URL）时覆盖内容并重置为待处理。
// 重新抓取得到的新内容需要重新分块与向量化。
// chunk_count 保留上一轮的值，摄取时据此清理被取代的旧向量。
func (r *KnowledgePageRepo) Upsert(ctx context.Context, page *KnowledgePage) error {
	if page.Status == "" {
		page.Status = PageStatusPending
	}

	err := r.store.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agent_id"}, {Name: "source_url"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "markdown_content", "content_hash",
				"status", "error_message", "updated_at",
			}),
		}).
		Create(page).Error
	if err != nil {
		return fmt.Errorf("failed to upsert knowledge page: %w", err)
	}
	return nil
}

// Get 按源 URL 获取页面
func (r *KnowledgePageRepo) Get(ctx context.Context, agentID, sourceURL string) (*KnowledgePage, error) {
	var page KnowledgePage
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ? AND source_url = ?", agentID, sourceURL).
		First(&page).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge page: %w", err)
	}
	return &page, nil
}

// ListByStatus 返回某代理指定状态的页面
func (r *KnowledgePageRepo) ListByStatus(ctx context.Context, agentID, status string, limit int) ([]KnowledgePage, error) {
	var pages []KnowledgePage
	q := r.store.DB().WithContext(ctx).
		Where("agent_id = ? AND status = ?", agentID, status).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("failed to list knowledge pages: %w", err)
	}
	return pages, nil
}

// List 返回某代理全部页面
func (r *KnowledgePageRepo) List(ctx context.Context, agentID string) ([]KnowledgePage, error) {
	var pages []KnowledgePage
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("id ASC").
		Find(&pages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge pages: %w", err)
	}
	return pages, nil
}

// MarkChunked 标记页面已分块并记录块数
func (r *KnowledgePageRepo) MarkChunked(ctx context.Context, id uint, chunkCount int) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":      PageStatusChunked,
		"chunk_count": chunkCount,
	})
}

// MarkEmbedded 标记页面已向量化
func (r *KnowledgePageRepo) MarkEmbedded(ctx context.Context, id uint) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status": PageStatusEmbedded,
	})
}

// MarkError 标记页面处理失败
func (r *KnowledgePageRepo) MarkError(ctx context.Context, id uint, message string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":        PageStatusError,
		"error_message": message,
	})
}

func (r *KnowledgePageRepo) updateStatus(ctx context.Context, id uint, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	err := r.store.DB().WithContext(ctx).
		Model(&KnowledgePage{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update knowledge page status: %w", err)
	}
	return nil
}

// ResetAllToPending 将某代理全部页面重置为待处理（重建索引前调用）
func (r *KnowledgePageRepo) ResetAllToPending(ctx context.Context, agentID string) (int64, error) {
	result := r.store.DB().WithContext(ctx).
		Model(&KnowledgePage{}).
		Where("agent_id = ?", agentID).
		Updates(map[string]interface{}{
			"status":        PageStatusPending,
			"chunk_count":   0,
			"error_message": "",
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset knowledge pages: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Summary 返回某代理的知识状态汇总
func (r *KnowledgePageRepo) Summary(ctx context.Context, agentID string) (*KnowledgeSummary, error) {
	summary := &KnowledgeSummary{AgentID: agentID}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := r.store.DB().WithContext(ctx).
		Model(&KnowledgePage{}).
		Select("status, COUNT(*) as count").
		Where("agent_id = ?", agentID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize knowledge pages: %w", err)
	}

	for _, row := range rows {
		switch row.Status {
		case PageStatusPending:
			summary.Pending = row.Count
		case PageStatusChunked:
			summary.Chunked = row.Count
		case PageStatusEmbedded:
			summary.Embedded = row.Count
		case PageStatusError:
			summary.Errored = row.Count
		}
		summary.Total += row.Count
	}

	return summary, nil
}
