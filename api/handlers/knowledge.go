package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/api"
	"github.com/BaSui01/siteagent/ingest"
	"github.com/BaSui01/siteagent/internal/metrics"
	"github.com/BaSui01/siteagent/rag"
	"github.com/BaSui01/siteagent/store"
	"github.com/BaSui01/siteagent/types"
)

// =============================================================================
// 📚 知识库接口 Handler
// =============================================================================

// KnowledgeHandler 知识库处理器：页面、摄取、未回答问题与问答建议
type KnowledgeHandler struct {
	store    *store.Store
	ingestor *ingest.Ingestor
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewKnowledgeHandler 创建知识库处理器。metrics 可为 nil。
func NewKnowledgeHandler(st *store.Store, ingestor *ingest.Ingestor, collector *metrics.Collector, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		store:    st,
		ingestor: ingestor,
		metrics:  collector,
		logger:   logger,
	}
}

// HandlePages 列出代理的知识页面
// @Summary 知识页面列表
// @Description 返回代理全部页面的元信息（不含正文）
// @Tags 知识库
// @Produce json
// @Param agent_id query string true "代理 ID"
// @Success 200 {array} api.PageInfo "页面列表"
// @Router /api/v1/knowledge/pages [get]
func (h *KnowledgeHandler) HandlePages(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	pages, err := h.store.Pages.List(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	infos := make([]api.PageInfo, len(pages))
	for i, page := range pages {
		infos[i] = api.PageInfo{
			ID:         page.ID,
			SourceURL:  page.SourceURL,
			Title:      page.Title,
			Status:     page.Status,
			ChunkCount: page.ChunkCount,
		}
	}

	WriteSuccess(w, infos)
}

// HandleSummary 知识状态汇总
// @Summary 知识状态汇总
// @Description 按状态统计代理的页面数
// @Tags 知识库
// @Produce json
// @Param agent_id query string true "代理 ID"
// @Success 200 {object} store.KnowledgeSummary "汇总"
// @Router /api/v1/knowledge/summary [get]
func (h *KnowledgeHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	summary, err := h.store.Pages.Summary(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, summary)
}

// HandleProcess 处理待摄取页面
// @Summary 摄取待处理页面
// @Description 把 pending 页面分块、嵌入并写入向量索引
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.IngestRequest true "摄取请求"
// @Success 200 {object} ingest.Result "摄取结果"
// @Router /api/v1/knowledge/process [post]
func (h *KnowledgeHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	h.runIngest(w, r, h.ingestor.ProcessPendingPages)
}

// HandleReindex 重建向量索引
// @Summary 重建索引
// @Description 清空向量命名空间与回答缓存后重新摄取全部页面
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.IngestRequest true "重建请求"
// @Success 200 {object} ingest.Result "摄取结果"
// @Router /api/v1/knowledge/reindex [post]
func (h *KnowledgeHandler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	h.runIngest(w, r, h.ingestor.Reindex)
}

// HandleUnanswered 列出未回答问题台账
// @Summary 未回答问题
// @Description 按最近提问时间倒序返回回退路径记录的问题
// @Tags 知识库
// @Produce json
// @Param agent_id query string true "代理 ID"
// @Param limit query int false "返回条数上限（默认 50）"
// @Success 200 {array} store.UnansweredQuestion "问题列表"
// @Router /api/v1/knowledge/unanswered [get]
func (h *KnowledgeHandler) HandleUnanswered(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "limit must be a positive integer"), h.logger)
			return
		}
		limit = parsed
	}

	questions, err := h.store.Unanswered.List(r.Context(), agentID, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, questions)
}

// HandleSuggestions 从已入库页面提取问答建议
// @Summary 问答建议
// @Description 按关键词模板扫描页面正文，产出可配置的问答候选
// @Tags 知识库
// @Produce json
// @Param agent_id query string true "代理 ID"
// @Success 200 {array} rag.QASuggestion "建议列表"
// @Router /api/v1/knowledge/suggestions [get]
func (h *KnowledgeHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	pages, err := h.store.Pages.List(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	suggestions := make([]rag.QASuggestion, 0)
	for _, page := range pages {
		suggestions = append(suggestions, rag.ExtractQASuggestions(page.MarkdownContent, page.SourceURL)...)
	}

	WriteSuccess(w, suggestions)
}

// HandleQASave 保存问答对
// @Summary 保存问答对
// @Description 把运营筛选后的问答对入库并作为 qa 类型检索单元写入向量索引
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.SaveQARequest true "保存请求"
// @Success 200 {array} store.CuratedQA "保存后的问答对"
// @Router /api/v1/knowledge/qa/save [post]
func (h *KnowledgeHandler) HandleQASave(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SaveQARequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}
	if len(req.Pairs) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "pairs must not be empty"), h.logger)
		return
	}

	pairs := make([]store.CuratedQA, len(req.Pairs))
	for i, pair := range req.Pairs {
		if pair.Question == "" || pair.Answer == "" {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "each pair requires question and answer"), h.logger)
			return
		}
		pairs[i] = store.CuratedQA{
			Question:  pair.Question,
			Answer:    pair.Answer,
			SourceURL: pair.SourceURL,
		}
	}

	saved, err := h.ingestor.SaveCuratedQA(r.Context(), req.AgentID, pairs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, saved)
}

// HandleQAList 列出问答对
// @Summary 问答对列表
// @Description 返回代理全部人工问答对
// @Tags 知识库
// @Produce json
// @Param agent_id query string true "代理 ID"
// @Success 200 {array} store.CuratedQA "问答对列表"
// @Router /api/v1/knowledge/qa [get]
func (h *KnowledgeHandler) HandleQAList(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	pairs, err := h.store.CuratedQA.List(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, pairs)
}

// HandleQADelete 删除问答对
// @Summary 删除问答对
// @Description 删除问答对及其向量
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.DeleteQARequest true "删除请求"
// @Success 200 {object} map[string]uint "被删除的 ID"
// @Router /api/v1/knowledge/qa/delete [post]
func (h *KnowledgeHandler) HandleQADelete(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.DeleteQARequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" || req.ID == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id and id are required"), h.logger)
		return
	}

	if err := h.ingestor.DeleteCuratedQA(r.Context(), req.AgentID, req.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, map[string]uint{"id": req.ID})
}

// runIngest 摄取操作的公共外壳：解码请求、执行、回填指标
func (h *KnowledgeHandler) runIngest(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, agentID string) (*ingest.Result, error),
) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.IngestRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	result, err := op(r.Context(), req.AgentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordIngest(result.PagesEmbedded, result.PagesFailed, result.ChunksUpserted)
	}

	WriteSuccess(w, result)
}

// writeDomainError 领域错误统一转换为 API 响应
func (h *KnowledgeHandler) writeDomainError(w http.ResponseWriter, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, typedErr, h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, "knowledge operation failed").WithCause(err), h.logger)
}
