package rag

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/types"
)

// Embedder 查询向量化协作方
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Reranker 重排协作方：返回每段文本与查询的相关性分数
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// ScoredChunk 带分数的检索单元
type ScoredChunk struct {
	Unit  RetrievalUnit `json:"unit"`
	Score float64       `json:"score"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// 向量检索条数
	TopK int `json:"top_k"`

	// 向量分数的置信下限
	ConfidenceFloor float64 `json:"confidence_floor"`

	// 重排分数的置信下限（重排分数分布不同，下限更低）
	RerankFloor float64 `json:"rerank_floor"`

	// 是否启用重排
	RerankEnabled bool `json:"rerank_enabled"`
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:            8,
		ConfidenceFloor: 0.45,
		RerankFloor:     0.30,
		RerankEnabled:   false,
	}
}

// RetrievalResult 检索结果：置信子集用于生成，
// 全量结果用于回退时挑选最佳线索
type RetrievalResult struct {
	// 达到置信下限的单元，分数降序
	Confident []ScoredChunk `json:"confident"`

	// 全部返回的单元，分数降序
	All []ScoredChunk `json:"all"`

	// 是否经过重排
	Reranked bool `json:"reranked"`

	// 检索耗时（毫秒）
	TimeMs int64 `json:"time_ms"`
}

// Retriever 检索器：向量查询 + 可选重排 + 置信过滤
type Retriever struct {
	store    VectorStore
	reranker Reranker
	config   RetrievalConfig
	logger   *zap.Logger
}

// NewRetriever 创建检索器。reranker 可为 nil。
func NewRetriever(store VectorStore, reranker Reranker, config RetrievalConfig, logger *zap.Logger) *Retriever {
	if config.TopK <= 0 {
		config.TopK = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Retriever{
		store:    store,
		reranker: reranker,
		config:   config,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve 用查询向量检索并做置信过滤
func (r *Retriever) Retrieve(ctx context.Context, agentID string, embedding []float64, query string) (*RetrievalResult, error) {
	start := time.Now()

	matches, err := r.store.Query(ctx, agentID, embedding, r.config.TopK)
	if err != nil {
		return nil, types.NewError(types.ErrVectorStoreError, "vector query failed").WithCause(err)
	}

	chunks := make([]ScoredChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, ScoredChunk{
			Unit:  UnitFromMetadata(m.Metadata),
			Score: m.Score,
		})
	}

	floor := r.config.ConfidenceFloor
	reranked := false

	if r.config.RerankEnabled && r.reranker != nil && len(chunks) > 0 {
		if rerankedChunks, ok := r.rerank(ctx, query, chunks); ok {
			chunks = rerankedChunks
			floor = r.config.RerankFloor
			reranked = true
		}
	}

	confident := make([]ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Score >= floor {
			confident = append(confident, chunk)
		}
	}

	return &RetrievalResult{
		Confident: confident,
		All:       chunks,
		Reranked:  reranked,
		TimeMs:    time.Since(start).Milliseconds(),
	}, nil
}

// rerank 调用重排协作方替换分数。失败时回退到向量分数。
func (r *Retriever) rerank(ctx context.Context, query string, chunks []ScoredChunk) ([]ScoredChunk, bool) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Unit.Text
	}

	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil || len(scores) != len(chunks) {
		r.logger.Warn("rerank failed, keeping vector scores", zap.Error(err))
		return nil, false
	}

	out := make([]ScoredChunk, len(chunks))
	for i := range chunks {
		out[i] = ScoredChunk{Unit: chunks[i].Unit, Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	return out, true
}
