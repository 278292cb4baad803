package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/internal/cache"
)

// 缓存层编号，写入响应元数据供观测
const (
	CacheLayerExact    = 1 // 精确命中
	CacheLayerSemantic = 2 // 语义命中
	CacheLayerResponse = 3 // 响应同一性命中
)

// CacheEntry 已缓存的回答
type CacheEntry struct {
	Answer             string    `json:"answer"`
	Sources            []string  `json:"sources"`
	Embedding          []float64 `json:"embedding,omitempty"`
	ChunksIdentityHash string    `json:"chunks_identity_hash,omitempty"`
	CachedAt           time.Time `json:"cached_at"`
}

// AnswerCacheConfig 回答缓存配置
type AnswerCacheConfig struct {
	// 总开关
	Enabled bool `json:"enabled"`

	// 条目过期时间
	TTL time.Duration `json:"ttl"`

	// 语义命中阈值（余弦相似度，达到即命中）
	SemanticThreshold float64 `json:"semantic_threshold"`

	// 语义索引容量（按最近写入保留）
	SemanticIndexSize int `json:"semantic_index_size"`
}

// DefaultAnswerCacheConfig 返回默认回答缓存配置
func DefaultAnswerCacheConfig() AnswerCacheConfig {
	return AnswerCacheConfig{
		Enabled:           true,
		TTL:               24 * time.Hour,
		SemanticThreshold: 0.95,
		SemanticIndexSize: 100,
	}
}

// AnswerCache 三层回答缓存。
// 第一层按归一化问句的精确哈希；第二层对最近 N 条缓存向量做
// 线性余弦扫描；第三层按检索结果的同一性哈希在生成前拦截。
// 任何缓存故障都降级为未命中，只记日志，绝不向上抛出。
type AnswerCache struct {
	manager *cache.Manager
	config  AnswerCacheConfig
	logger  *zap.Logger
}

// NewAnswerCache 创建回答缓存
func NewAnswerCache(manager *cache.Manager, config AnswerCacheConfig, logger *zap.Logger) *AnswerCache {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.SemanticIndexSize <= 0 {
		config.SemanticIndexSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnswerCache{
		manager: manager,
		config:  config,
		logger:  logger.With(zap.String("component", "answer_cache")),
	}
}

// =============================================================================
// 🔑 键与归一化
// =============================================================================

// NormalizeQuery 问句归一化：小写、去标点、空白折叠
func NormalizeQuery(query string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(query) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// QueryHash 归一化问句的 SHA-256 摘要
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

func (c *AnswerCache) entryKey(agentID, hash string) string {
	return fmt.Sprintf("agent:%s:answer:entry:%s", agentID, hash)
}

func (c *AnswerCache) responseKey(agentID, chunksHash string) string {
	return fmt.Sprintf("agent:%s:answer:resp:%s", agentID, chunksHash)
}

func (c *AnswerCache) indexKey(agentID string) string {
	return fmt.Sprintf("agent:%s:answer:index", agentID)
}

func (c *AnswerCache) agentPattern(agentID string) string {
	return fmt.Sprintf("agent:%s:answer:*", agentID)
}

// =============================================================================
// 🎯 三层读取
// =============================================================================

// GetExact 第一层：精确哈希命中。命中时无需任何向量化调用。
func (c *AnswerCache) GetExact(ctx context.Context, agentID, query string) (*CacheEntry, bool) {
	if !c.config.Enabled {
		return nil, false
	}

	var entry CacheEntry
	err := c.manager.GetJSON(ctx, c.entryKey(agentID, QueryHash(query)), &entry)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("exact cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	return &entry, true
}

// GetSemantic 第二层：对最近缓存条目做余弦线性扫描，
// 最佳相似度达到阈值即命中；严格低于阈值一律未命中。
func (c *AnswerCache) GetSemantic(ctx context.Context, agentID string, embedding []float64) (*CacheEntry, float64, bool) {
	if !c.config.Enabled || len(embedding) == 0 {
		return nil, 0, false
	}

	members, err := c.manager.ZRevRange(ctx, c.indexKey(agentID), 0, int64(c.config.SemanticIndexSize)-1)
	if err != nil {
		c.logger.Warn("semantic index scan failed", zap.Error(err))
		return nil, 0, false
	}

	var best *CacheEntry
	bestScore := -1.0
	for _, member := range members {
		var entry CacheEntry
		if err := c.manager.GetJSON(ctx, c.entryKey(agentID, member.Member), &entry); err != nil {
			// 条目已过期，索引残留
			continue
		}
		score := CosineSimilarity(embedding, entry.Embedding)
		if score > bestScore {
			bestScore = score
			entryCopy := entry
			best = &entryCopy
		}
	}

	if best == nil || bestScore < c.config.SemanticThreshold {
		return nil, bestScore, false
	}
	return best, bestScore, true
}

// GetByChunks 第三层：检索结果同一性命中，跳过生成
func (c *AnswerCache) GetByChunks(ctx context.Context, agentID, chunksHash string) (*CacheEntry, bool) {
	if !c.config.Enabled || chunksHash == "" {
		return nil, false
	}

	var entry CacheEntry
	err := c.manager.GetJSON(ctx, c.responseKey(agentID, chunksHash), &entry)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("response identity lookup failed", zap.Error(err))
		}
		return nil, false
	}
	return &entry, true
}

// =============================================================================
// ✍️ 写入与失效
// =============================================================================

// Store 把新回答写入全部三个视图。写入失败只记日志。
func (c *AnswerCache) Store(ctx context.Context, agentID, query string, entry CacheEntry) {
	if !c.config.Enabled {
		return
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}

	hash := QueryHash(query)

	if err := c.manager.SetJSON(ctx, c.entryKey(agentID, hash), entry, c.config.TTL); err != nil {
		c.logger.Warn("cache entry write failed", zap.Error(err))
		return
	}

	indexKey := c.indexKey(agentID)
	if err := c.manager.ZAdd(ctx, indexKey, float64(time.Now().UnixNano()), hash); err != nil {
		c.logger.Warn("semantic index write failed", zap.Error(err))
	} else {
		// 按最近写入裁剪索引
		if _, err := c.manager.ZRemRangeByRank(ctx, indexKey, 0, int64(-c.config.SemanticIndexSize-1)); err != nil {
			c.logger.Warn("semantic index trim failed", zap.Error(err))
		}
		if err := c.manager.Expire(ctx, indexKey, c.config.TTL); err != nil {
			c.logger.Warn("semantic index expire failed", zap.Error(err))
		}
	}

	if entry.ChunksIdentityHash != "" {
		if err := c.manager.SetJSON(ctx, c.responseKey(agentID, entry.ChunksIdentityHash), entry, c.config.TTL); err != nil {
			c.logger.Warn("response identity write failed", zap.Error(err))
		}
	}
}

// Wipe 整代理失效：重新爬取或重建索引后调用
func (c *AnswerCache) Wipe(ctx context.Context, agentID string) {
	deleted, err := c.manager.DeleteByPattern(ctx, c.agentPattern(agentID))
	if err != nil {
		c.logger.Warn("answer cache wipe failed", zap.String("agent_id", agentID), zap.Error(err))
		return
	}

	c.logger.Info("answer cache wiped",
		zap.String("agent_id", agentID),
		zap.Int64("keys_deleted", deleted),
	)
}

// ChunksIdentityHash 对检索结果集合计算同一性哈希：
// 按（来源 + 文本前缀 + 分数）排序后摘要，与结果顺序无关
func ChunksIdentityHash(chunks []ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	identities := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		prefix := chunk.Unit.Text
		if len(prefix) > 64 {
			prefix = prefix[:64]
		}
		identities = append(identities, fmt.Sprintf("%s|%s|%.6f", chunk.Unit.SourceURL, prefix, chunk.Score))
	}
	sort.Strings(identities)

	sum := sha256.Sum256([]byte(strings.Join(identities, "\n")))
	return hex.EncodeToString(sum[:])
}
