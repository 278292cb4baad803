package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/api"
	"github.com/BaSui01/siteagent/crawler"
	"github.com/BaSui01/siteagent/internal/metrics"
	"github.com/BaSui01/siteagent/types"
)

// =============================================================================
// 🕷️ 爬取接口 Handler
// =============================================================================

// CrawlHandler 爬取接口处理器
type CrawlHandler struct {
	orchestrator *crawler.Orchestrator
	metrics      *metrics.Collector
	logger       *zap.Logger
}

// NewCrawlHandler 创建爬取处理器。metrics 可为 nil。
func NewCrawlHandler(orchestrator *crawler.Orchestrator, collector *metrics.Collector, logger *zap.Logger) *CrawlHandler {
	return &CrawlHandler{
		orchestrator: orchestrator,
		metrics:      collector,
		logger:       logger,
	}
}

// HandleStart 处理启动爬取请求
// @Summary 启动爬取
// @Description 重置代理的爬取队列并写入起始 URL
// @Tags 爬取
// @Accept json
// @Produce json
// @Param request body api.CrawlStartRequest true "启动请求"
// @Success 200 {object} Response "已启动"
// @Failure 400 {object} Response "无效请求"
// @Router /api/v1/crawl/start [post]
func (h *CrawlHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.CrawlStartRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}
	if req.RootURL == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "root_url is required"), h.logger)
		return
	}

	if err := h.orchestrator.StartCrawl(r.Context(), req.AgentID, req.RootURL); err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, map[string]string{
		"agent_id": req.AgentID,
		"status":   "started",
	})
}

// HandleBatch 处理一批待抓取条目
// @Summary 处理爬取批次
// @Description 抓取下一批待处理条目并入队新发现的链接
// @Tags 爬取
// @Accept json
// @Produce json
// @Param request body api.CrawlBatchRequest true "批次请求"
// @Success 200 {object} crawler.BatchResult "批次结果"
// @Failure 400 {object} Response "无效请求"
// @Router /api/v1/crawl/batch [post]
func (h *CrawlHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.CrawlBatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	start := time.Now()
	result, err := h.orchestrator.ProcessBatch(r.Context(), req.AgentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordCrawlBatch(time.Since(start), result.RateLimited)
		for i := 0; i < result.Scraped; i++ {
			h.metrics.RecordCrawlPage("scraped")
		}
		for i := 0; i < result.Errored; i++ {
			h.metrics.RecordCrawlPage("errored")
		}
	}

	WriteSuccess(w, result)
}

// HandleStatus 查询爬取状态
// @Summary 爬取状态
// @Description 返回代理的爬取队列汇总
// @Tags 爬取
// @Produce json
// @Param agent_id query string true "代理 ID"
// @Success 200 {object} crawler.Status "爬取状态"
// @Failure 400 {object} Response "无效请求"
// @Router /api/v1/crawl/status [get]
func (h *CrawlHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	status, err := h.orchestrator.Status(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, status)
}

// HandleCleanup 清理爬取队列
// @Summary 清理爬取队列
// @Description 删除代理的全部队列条目（爬取与入库完成后调用）
// @Tags 爬取
// @Accept json
// @Produce json
// @Param request body api.CrawlBatchRequest true "清理请求"
// @Success 200 {object} Response "已清理"
// @Router /api/v1/crawl/cleanup [post]
func (h *CrawlHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.CrawlBatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "agent_id is required"), h.logger)
		return
	}

	if err := h.orchestrator.Cleanup(r.Context(), req.AgentID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	WriteSuccess(w, map[string]string{
		"agent_id": req.AgentID,
		"status":   "cleaned",
	})
}

// writeDomainError 领域错误统一转换为 API 响应
func (h *CrawlHandler) writeDomainError(w http.ResponseWriter, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, typedErr, h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, "crawl operation failed").WithCause(err), h.logger)
}
