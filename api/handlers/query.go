package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/api"
	"github.com/BaSui01/siteagent/internal/metrics"
	"github.com/BaSui01/siteagent/rag"
	"github.com/BaSui01/siteagent/types"
)

// =============================================================================
// 💬 提问接口 Handler
// =============================================================================

// QueryHandler 访客提问处理器
type QueryHandler struct {
	pipeline *rag.Pipeline
	history  *rag.ConversationHistory
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewQueryHandler 创建提问处理器。history 与 metrics 可为 nil。
func NewQueryHandler(pipeline *rag.Pipeline, history *rag.ConversationHistory, collector *metrics.Collector, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		pipeline: pipeline,
		history:  history,
		metrics:  collector,
		logger:   logger,
	}
}

// HandleQuery 处理访客提问
// @Summary 访客提问
// @Description 路由 → 三层缓存 → 检索 → 生成或回退，永远返回可展示的回答
// @Tags 提问
// @Accept json
// @Produce json
// @Param request body api.QueryRequest true "提问请求"
// @Success 200 {object} rag.QueryResponse "回答"
// @Failure 400 {object} Response "无效请求"
// @Router /api/v1/query [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}
	if req.Query == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "query is required"), h.logger)
		return
	}

	start := time.Now()
	resp := h.pipeline.Query(r.Context(), rag.QueryRequest{
		AgentID:        req.AgentID,
		AgentName:      req.AgentName,
		SiteName:       req.SiteName,
		ConversationID: req.ConversationID,
		Query:          req.Query,
	})
	duration := time.Since(start)

	h.recordMetrics(resp, duration)

	// 会话历史只记录成功出口的问答对
	if h.history != nil && req.ConversationID != "" && resp.Outcome != rag.OutcomeError {
		h.history.Append(r.Context(), req.ConversationID,
			rag.Message{Role: "user", Content: req.Query},
			rag.Message{Role: "assistant", Content: resp.Answer},
		)
	}

	h.logger.Info("query answered",
		zap.String("agent_id", req.AgentID),
		zap.String("intent", string(resp.Intent)),
		zap.String("outcome", resp.Outcome),
		zap.Bool("cache_hit", resp.CacheHit),
		zap.Int("cache_layer", resp.CacheLayer),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, resp)
}

// recordMetrics 从响应字段回填指标，链路本身不感知指标系统
func (h *QueryHandler) recordMetrics(resp *rag.QueryResponse, duration time.Duration) {
	if h.metrics == nil {
		return
	}

	h.metrics.RecordQuery(string(resp.Intent), resp.Outcome, resp.CacheLayer, duration)

	if resp.CacheHit {
		h.metrics.RecordCacheHit(resp.CacheLayer)
	} else if resp.Intent == rag.IntentWebsiteQuery {
		h.metrics.RecordCacheMiss()
	}

	if resp.RetrievalTimeMs > 0 {
		h.metrics.RecordRetrieval(time.Duration(resp.RetrievalTimeMs) * time.Millisecond)
	}
	if resp.Outcome == rag.OutcomeGenerated {
		h.metrics.RecordGeneration(
			time.Duration(resp.GenerationTimeMs)*time.Millisecond,
			resp.TokensIn,
			resp.TokensOut,
		)
	}
}
