package rag

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Message 会话历史消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest 生成协作方请求
type GenerationRequest struct {
	Query     string        `json:"query"`
	Chunks    []ScoredChunk `json:"chunks"`
	History   []Message     `json:"history,omitempty"`
	AgentName string        `json:"agent_name"`
}

// GenerationResult 生成协作方结果
type GenerationResult struct {
	Answer    string `json:"answer"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
	TimeMs    int64  `json:"time_ms"`
}

// Generator 回答生成协作方
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// HistoryProvider 会话历史协作方（可选）
type HistoryProvider interface {
	History(ctx context.Context, conversationID string) ([]Message, error)
}

// Ledger 未回答问题台账（可选）
type Ledger interface {
	Record(ctx context.Context, agentID, question string, score float64) error
}

// 终态标识
const (
	OutcomeRouted    = "routed"    // 路由短路
	OutcomeCacheHit  = "cache_hit" // 缓存命中（任一层）
	OutcomeGenerated = "generated" // 生成回答
	OutcomeFallback  = "fallback"  // 回退回答
	OutcomeError     = "error"     // 不可恢复失败（对外仍是致歉话术）
)

// 不可恢复失败时的对外话术，访客永远看不到内部错误
const apologyAnswer = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."

// QueryRequest 一次访客提问
type QueryRequest struct {
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	SiteName       string `json:"site_name,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
}

// QueryResponse 提问结果与观测元数据
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`

	Intent  Intent `json:"intent"`
	Outcome string `json:"outcome"`

	CacheHit   bool `json:"cache_hit"`
	CacheLayer int  `json:"cache_layer,omitempty"`

	// 回退路径上最佳线索的相似度
	BestScore float64 `json:"best_score,omitempty"`

	TokensIn         int   `json:"tokens_in"`
	TokensOut        int   `json:"tokens_out"`
	RetrievalTimeMs  int64 `json:"retrieval_time_ms"`
	GenerationTimeMs int64 `json:"generation_time_ms"`
}

// Pipeline 服务链路：路由 → 三层缓存 → 检索 → 生成或回退。
// 每个阶段每次提问至多执行一次。
type Pipeline struct {
	router    *Router
	cache     *AnswerCache
	embedder  Embedder
	retriever *Retriever
	generator Generator
	history   HistoryProvider
	ledger    Ledger
	logger    *zap.Logger
}

// NewPipeline 创建服务链路。history 与 ledger 可为 nil。
func NewPipeline(
	router *Router,
	answerCache *AnswerCache,
	embedder Embedder,
	retriever *Retriever,
	generator Generator,
	history HistoryProvider,
	ledger Ledger,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		router:    router,
		cache:     answerCache,
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		history:   history,
		ledger:    ledger,
		logger:    logger.With(zap.String("component", "pipeline")),
	}
}

// Query 处理一次访客提问
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) *QueryResponse {
	// 1. 路由短路：问候 / 道别 / 闲聊直接回复
	routed := p.router.Route(req.Query, req.AgentName)
	if routed.ShortCircuit() {
		return &QueryResponse{
			Answer:  routed.DirectResponse,
			Intent:  routed.Intent,
			Outcome: OutcomeRouted,
		}
	}

	// 2. 第一层：精确缓存，命中时连向量化调用都省掉
	if entry, ok := p.cache.GetExact(ctx, req.AgentID, req.Query); ok {
		return p.cachedResponse(entry, CacheLayerExact)
	}

	// 3. 查询向量化与历史拉取并发执行；向量与语义缓存层共用
	embedding, history := p.embedAndFetchHistory(ctx, req)
	if embedding == nil {
		return p.apology(req, "query embedding failed")
	}

	// 4. 第二层：语义缓存
	if entry, score, ok := p.cache.GetSemantic(ctx, req.AgentID, embedding); ok {
		p.logger.Debug("semantic cache hit",
			zap.String("agent_id", req.AgentID),
			zap.Float64("similarity", score),
		)
		return p.cachedResponse(entry, CacheLayerSemantic)
	}

	// 5. 检索与置信过滤
	retrieval, err := p.retriever.Retrieve(ctx, req.AgentID, embedding, req.Query)
	if err != nil {
		p.logger.Error("retrieval failed", zap.String("agent_id", req.AgentID), zap.Error(err))
		return p.apology(req, "retrieval failed")
	}

	// 6. 置信结果为空走回退，生成服务不被调用
	if len(retrieval.Confident) == 0 {
		return p.fallback(ctx, req, retrieval)
	}

	// 7. 第三层：同一批证据已经生成过回答则直接复用
	chunksHash := ChunksIdentityHash(retrieval.Confident)
	if entry, ok := p.cache.GetByChunks(ctx, req.AgentID, chunksHash); ok {
		resp := p.cachedResponse(entry, CacheLayerResponse)
		resp.RetrievalTimeMs = retrieval.TimeMs
		return resp
	}

	// 8. 生成回答
	return p.generate(ctx, req, retrieval, embedding, chunksHash, history)
}

// embedAndFetchHistory 并发执行查询向量化与历史拉取。
// 历史失败只降级为空历史，向量化失败返回 nil。
func (p *Pipeline) embedAndFetchHistory(ctx context.Context, req QueryRequest) ([]float64, []Message) {
	var embedding []float64
	var history []Message

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		embedding, err = p.embedder.EmbedQuery(gctx, req.Query)
		if err != nil {
			p.logger.Error("embedding failed", zap.String("agent_id", req.AgentID), zap.Error(err))
			embedding = nil
		}
		return nil
	})

	if p.history != nil && req.ConversationID != "" {
		g.Go(func() error {
			h, err := p.history.History(gctx, req.ConversationID)
			if err != nil {
				p.logger.Warn("history fetch failed, continuing without history",
					zap.String("conversation_id", req.ConversationID),
					zap.Error(err),
				)
				return nil
			}
			history = h
			return nil
		})
	}

	_ = g.Wait()
	return embedding, history
}

// fallback 回退路径：不调用生成服务，记录未回答台账
func (p *Pipeline) fallback(ctx context.Context, req QueryRequest, retrieval *RetrievalResult) *QueryResponse {
	var best *ScoredChunk
	bestScore := 0.0
	if len(retrieval.All) > 0 {
		best = &retrieval.All[0]
		bestScore = best.Score
	}

	if p.ledger != nil {
		if err := p.ledger.Record(ctx, req.AgentID, req.Query, bestScore); err != nil {
			p.logger.Warn("unanswered ledger record failed",
				zap.String("agent_id", req.AgentID),
				zap.Error(err),
			)
		}
	}

	p.logger.Info("query fell back",
		zap.String("agent_id", req.AgentID),
		zap.Float64("best_score", bestScore),
	)

	return &QueryResponse{
		Answer:          FallbackAnswer(req.Query, req.AgentName, req.SiteName, best),
		Intent:          IntentWebsiteQuery,
		Outcome:         OutcomeFallback,
		BestScore:       bestScore,
		RetrievalTimeMs: retrieval.TimeMs,
	}
}

// generate 调用生成服务并把新回答写入全部缓存视图
func (p *Pipeline) generate(
	ctx context.Context,
	req QueryRequest,
	retrieval *RetrievalResult,
	embedding []float64,
	chunksHash string,
	history []Message,
) *QueryResponse {
	result, err := p.generator.Generate(ctx, GenerationRequest{
		Query:     req.Query,
		Chunks:    retrieval.Confident,
		History:   history,
		AgentName: req.AgentName,
	})
	if err != nil {
		p.logger.Error("generation failed", zap.String("agent_id", req.AgentID), zap.Error(err))
		resp := p.apology(req, "generation failed")
		resp.RetrievalTimeMs = retrieval.TimeMs
		return resp
	}

	sources := uniqueSources(retrieval.Confident)

	p.cache.Store(ctx, req.AgentID, req.Query, CacheEntry{
		Answer:             result.Answer,
		Sources:            sources,
		Embedding:          embedding,
		ChunksIdentityHash: chunksHash,
		CachedAt:           time.Now(),
	})

	return &QueryResponse{
		Answer:           result.Answer,
		Sources:          sources,
		Intent:           IntentWebsiteQuery,
		Outcome:          OutcomeGenerated,
		TokensIn:         result.TokensIn,
		TokensOut:        result.TokensOut,
		RetrievalTimeMs:  retrieval.TimeMs,
		GenerationTimeMs: result.TimeMs,
	}
}

// cachedResponse 缓存命中的统一出口
func (p *Pipeline) cachedResponse(entry *CacheEntry, layer int) *QueryResponse {
	return &QueryResponse{
		Answer:     entry.Answer,
		Sources:    entry.Sources,
		Intent:     IntentWebsiteQuery,
		Outcome:    OutcomeCacheHit,
		CacheHit:   true,
		CacheLayer: layer,
	}
}

// apology 不可恢复失败的对外出口
func (p *Pipeline) apology(req QueryRequest, reason string) *QueryResponse {
	p.logger.Error("query failed, returning apology",
		zap.String("agent_id", req.AgentID),
		zap.String("reason", reason),
	)
	return &QueryResponse{
		Answer:  apologyAnswer,
		Intent:  IntentWebsiteQuery,
		Outcome: OutcomeError,
	}
}

// uniqueSources 去重后的来源 URL，保持出现顺序
func uniqueSources(chunks []ScoredChunk) []string {
	seen := make(map[string]bool, len(chunks))
	var sources []string
	for _, chunk := range chunks {
		url := chunk.Unit.SourceURL
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		sources = append(sources, url)
	}
	return sources
}
