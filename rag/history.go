package rag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/internal/cache"
)

// =============================================================================
// 🗂️ 会话历史
// =============================================================================

// ConversationHistoryConfig 会话历史配置
type ConversationHistoryConfig struct {
	// 会话过期时间
	TTL time.Duration `json:"ttl"`

	// 单会话保留的消息条数上限（超出时丢弃最旧的）
	MaxMessages int `json:"max_messages"`
}

// DefaultConversationHistoryConfig 返回默认会话历史配置
func DefaultConversationHistoryConfig() ConversationHistoryConfig {
	return ConversationHistoryConfig{
		TTL:         30 * time.Minute,
		MaxMessages: 10,
	}
}

// ConversationHistory 基于 Redis 的会话历史。
// 与回答缓存同一降级约定：缓存故障退化为空历史，只记日志。
type ConversationHistory struct {
	manager *cache.Manager
	config  ConversationHistoryConfig
	logger  *zap.Logger
}

// NewConversationHistory 创建会话历史
func NewConversationHistory(manager *cache.Manager, config ConversationHistoryConfig, logger *zap.Logger) *ConversationHistory {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	if config.MaxMessages <= 0 {
		config.MaxMessages = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConversationHistory{
		manager: manager,
		config:  config,
		logger:  logger.With(zap.String("component", "conversation_history")),
	}
}

func (h *ConversationHistory) key(conversationID string) string {
	return fmt.Sprintf("siteagent:history:%s", conversationID)
}

// History 返回会话的最近消息，最旧的在前。不存在的会话返回空历史。
func (h *ConversationHistory) History(ctx context.Context, conversationID string) ([]Message, error) {
	var messages []Message
	err := h.manager.GetJSON(ctx, h.key(conversationID), &messages)
	if err != nil {
		if cache.IsCacheMiss(err) {
			return nil, nil
		}
		return nil, err
	}
	return messages, nil
}

// Append 追加消息并续期会话。超出容量时按条数裁掉最旧的消息。
func (h *ConversationHistory) Append(ctx context.Context, conversationID string, messages ...Message) {
	if conversationID == "" || len(messages) == 0 {
		return
	}

	key := h.key(conversationID)

	var existing []Message
	if err := h.manager.GetJSON(ctx, key, &existing); err != nil && !cache.IsCacheMiss(err) {
		h.logger.Warn("history read failed, starting fresh",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		existing = nil
	}

	existing = append(existing, messages...)
	if len(existing) > h.config.MaxMessages {
		existing = existing[len(existing)-h.config.MaxMessages:]
	}

	if err := h.manager.SetJSON(ctx, key, existing, h.config.TTL); err != nil {
		h.logger.Warn("history write failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}
