package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VectorDoc 向量库文档：一个检索单元的向量与元数据
type VectorDoc struct {
	ID        string         `json:"id"`
	Embedding []float64      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Match 向量检索命中
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorStore 向量检索服务。namespace 为代理 ID，
// 代理之间的知识完全隔离。
type VectorStore interface {
	// Upsert 批量写入向量
	Upsert(ctx context.Context, namespace string, docs []VectorDoc) error

	// Query 返回与查询向量最相近的 topK 个文档，按相似度降序
	Query(ctx context.Context, namespace string, embedding []float64, topK int) ([]Match, error)

	// DeleteByIDs 按 ID 删除向量（重新摄取时清理被取代的旧块）
	DeleteByIDs(ctx context.Context, namespace string, ids []string) error

	// DeleteNamespace 删除整个命名空间（重建索引时调用）
	DeleteNamespace(ctx context.Context, namespace string) error
}

// =============================================================================
// 🔄 检索单元 ↔ 元数据转换
// =============================================================================

// UnitToMetadata 把检索单元编码进向量元数据
func UnitToMetadata(unit RetrievalUnit) map[string]any {
	return map[string]any{
		"source_url":     unit.SourceURL,
		"page_title":     unit.PageTitle,
		"chunk_index":    unit.ChunkIndex,
		"text":           unit.Text,
		"section_header": unit.SectionHeader,
		"chunk_type":     unit.ChunkType,
	}
}

// UnitFromMetadata 从向量元数据还原检索单元
func UnitFromMetadata(meta map[string]any) RetrievalUnit {
	unit := RetrievalUnit{}
	if meta == nil {
		return unit
	}

	if v, ok := meta["source_url"].(string); ok {
		unit.SourceURL = v
	}
	if v, ok := meta["page_title"].(string); ok {
		unit.PageTitle = v
	}
	if v, ok := meta["text"].(string); ok {
		unit.Text = v
	}
	if v, ok := meta["section_header"].(string); ok {
		unit.SectionHeader = v
	}
	if v, ok := meta["chunk_type"].(string); ok {
		unit.ChunkType = v
	}
	switch v := meta["chunk_index"].(type) {
	case int:
		unit.ChunkIndex = v
	case float64:
		unit.ChunkIndex = int(v)
	}

	return unit
}

// CosineSimilarity 余弦相似度。维度不一致或零向量返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// =============================================================================
// 💾 内存向量库
// =============================================================================

// MemoryVectorStore 内存向量库，用于开发与测试
type MemoryVectorStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]VectorDoc
	logger     *zap.Logger
}

// NewMemoryVectorStore 创建内存向量库
func NewMemoryVectorStore(logger *zap.Logger) *MemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryVectorStore{
		namespaces: make(map[string]map[string]VectorDoc),
		logger:     logger.With(zap.String("component", "memory_vector_store")),
	}
}

// Upsert 批量写入向量
func (s *MemoryVectorStore) Upsert(ctx context.Context, namespace string, docs []VectorDoc) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]VectorDoc)
		s.namespaces[namespace] = ns
	}

	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("doc[%d] has empty id", i)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("doc[%d] has no embedding", i)
		}
		ns[doc.ID] = doc
	}

	return nil
}

// Query 余弦相似度线性扫描，返回 topK
func (s *MemoryVectorStore) Query(ctx context.Context, namespace string, embedding []float64, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	matches := make([]Match, 0, len(ns))
	for _, doc := range ns {
		matches = append(matches, Match{
			ID:       doc.ID,
			Score:    CosineSimilarity(embedding, doc.Embedding),
			Metadata: doc.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByIDs 按 ID 删除向量，不存在的 ID 忽略
func (s *MemoryVectorStore) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

// DeleteNamespace 删除整个命名空间
func (s *MemoryVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, namespace)
	return nil
}

// Count 返回命名空间内的向量数（测试用）
func (s *MemoryVectorStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}
