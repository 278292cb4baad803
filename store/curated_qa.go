// =============================================================================
// 💬 人工问答对仓储
// =============================================================================
package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

// CuratedQARepo 人工问答对仓储
type CuratedQARepo struct {
	store *Store
}

// Upsert 写入问答对，冲突（同代理同问题）时覆盖答案与来源。
// 问题去首尾空白后入库；回填行 ID 供向量侧定位。
func (r *CuratedQARepo) Upsert(ctx context.Context, qa *CuratedQA) error {
	qa.Question = strings.TrimSpace(qa.Question)
	qa.Answer = strings.TrimSpace(qa.Answer)
	if qa.Question == "" || qa.Answer == "" {
		return fmt.Errorf("curated qa requires question and answer")
	}

	err := r.store.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agent_id"}, {Name: "question"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"answer", "source_url", "updated_at",
			}),
		}).
		Create(qa).Error
	if err != nil {
		return fmt.Errorf("failed to upsert curated qa: %w", err)
	}

	// 冲突更新时 Create 不回填已有行的 ID，按唯一键重查一次
	if qa.ID == 0 {
		var existing CuratedQA
		err = r.store.DB().WithContext(ctx).
			Where("agent_id = ? AND question = ?", qa.AgentID, qa.Question).
			First(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to reload curated qa: %w", err)
		}
		qa.ID = existing.ID
	}

	return nil
}

// Get 按 ID 获取某代理的问答对
func (r *CuratedQARepo) Get(ctx context.Context, agentID string, id uint) (*CuratedQA, error) {
	var qa CuratedQA
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ? AND id = ?", agentID, id).
		First(&qa).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get curated qa: %w", err)
	}
	return &qa, nil
}

// List 返回某代理全部问答对，按创建顺序
func (r *CuratedQARepo) List(ctx context.Context, agentID string) ([]CuratedQA, error) {
	var pairs []CuratedQA
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("id ASC").
		Find(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list curated qa: %w", err)
	}
	return pairs, nil
}

// Delete 删除某代理的问答对
func (r *CuratedQARepo) Delete(ctx context.Context, agentID string, id uint) error {
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ? AND id = ?", agentID, id).
		Delete(&CuratedQA{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete curated qa: %w", err)
	}
	return nil
}
