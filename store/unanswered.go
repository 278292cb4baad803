// =============================================================================
// ❓ 未回答问题台账
// =============================================================================
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UnansweredQuestionRepo 未回答问题仓储
type UnansweredQuestionRepo struct {
	store *Store
}

// Record 记录一次未能回答的问题。
// 同代理下问题首次出现则新建；已存在则 times_asked 自增，
// best_similarity_score 取历史最大值。问题入库前统一小写去空白。
func (r *UnansweredQuestionRepo) Record(ctx context.Context, agentID, question string, score float64) error {
	normalized := strings.ToLower(strings.TrimSpace(question))
	if normalized == "" {
		return nil
	}
	now := time.Now()

	return r.store.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		var existing UnansweredQuestion
		err := tx.Where("agent_id = ? AND question = ?", agentID, normalized).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&UnansweredQuestion{
				AgentID:             agentID,
				Question:            normalized,
				TimesAsked:          1,
				BestSimilarityScore: score,
				LastAskedAt:         now,
			}).Error
		}
		if err != nil {
			return err
		}

		best := existing.BestSimilarityScore
		if score > best {
			best = score
		}

		return tx.Model(&existing).Updates(map[string]interface{}{
			"times_asked":           existing.TimesAsked + 1,
			"best_similarity_score": best,
			"last_asked_at":         now,
		}).Error
	})
}

// List 返回某代理的未回答问题，按提问次数降序
func (r *UnansweredQuestionRepo) List(ctx context.Context, agentID string, limit int) ([]UnansweredQuestion, error) {
	var questions []UnansweredQuestion
	q := r.store.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("times_asked DESC, last_asked_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to list unanswered questions: %w", err)
	}
	return questions, nil
}

// Wipe 清空某代理的未回答问题台账
func (r *UnansweredQuestionRepo) Wipe(ctx context.Context, agentID string) error {
	err := r.store.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Delete(&UnansweredQuestion{}).Error
	if err != nil {
		return fmt.Errorf("failed to wipe unanswered questions: %w", err)
	}
	return nil
}
