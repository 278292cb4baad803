package api

// =============================================================================
// 爬取类型
// =============================================================================

// CrawlStartRequest 启动爬取请求。
// @Description 重置爬取队列并写入起始 URL
type CrawlStartRequest struct {
	// 代理 ID
	AgentID string `json:"agent_id" example:"agent-1" binding:"required"`
	// 站点起始 URL
	RootURL string `json:"root_url" example:"https://example.com" binding:"required"`
}

// CrawlBatchRequest 按代理处理一批爬取条目的请求。
// @Description 批次 / 状态 / 清理共用的请求结构
type CrawlBatchRequest struct {
	// 代理 ID
	AgentID string `json:"agent_id" example:"agent-1" binding:"required"`
}

// =============================================================================
// 提问类型
// =============================================================================

// QueryRequest 访客提问请求。
// @Description 访客提问请求结构
type QueryRequest struct {
	// 代理 ID
	AgentID string `json:"agent_id" example:"agent-1" binding:"required"`
	// 代理展示名（用于寒暄与回退话术）
	AgentName string `json:"agent_name,omitempty" example:"Ava"`
	// 站点展示名
	SiteName string `json:"site_name,omitempty" example:"Example Plumbing"`
	// 会话 ID（用于加载对话历史）
	ConversationID string `json:"conversation_id,omitempty" example:"conv-42"`
	// 访客问题
	Query string `json:"query" example:"How much does a plan cost?" binding:"required"`
}

// =============================================================================
// 知识库类型
// =============================================================================

// IngestRequest 摄取 / 重建索引请求。
// @Description 摄取请求结构
type IngestRequest struct {
	// 代理 ID
	AgentID string `json:"agent_id" example:"agent-1" binding:"required"`
}

// QAPair 问答对。
// @Description 运营筛选后的问答对
type QAPair struct {
	// 问题
	Question string `json:"question" example:"What are your hours?" binding:"required"`
	// 答案
	Answer string `json:"answer" example:"We are open 9 to 5, Monday through Friday." binding:"required"`
	// 来源页面 URL（可选）
	SourceURL string `json:"source_url,omitempty" example:"https://example.com/contact"`
}

// SaveQARequest 保存问答对请求。
// @Description 批量保存问答对，同代理同问题覆盖旧答案
type SaveQARequest struct {
	// 代理 ID
	AgentID string `json:"agent_id" example:"agent-1" binding:"required"`
	// 问答对列表
	Pairs []QAPair `json:"pairs" binding:"required"`
}

// DeleteQARequest 删除问答对请求。
// @Description 按 ID 删除问答对及其向量
type DeleteQARequest struct {
	// 代理 ID
	AgentID string `json:"agent_id" example:"agent-1" binding:"required"`
	// 问答对 ID
	ID uint `json:"id" example:"3" binding:"required"`
}

// PageInfo 知识页面元信息（不含正文）。
// @Description 页面列表项
type PageInfo struct {
	// 页面 ID
	ID uint `json:"id" example:"1"`
	// 源 URL
	SourceURL string `json:"source_url" example:"https://example.com/pricing"`
	// 页面标题
	Title string `json:"title" example:"Pricing"`
	// 处理状态（pending、chunked、embedded、error）
	Status string `json:"status" example:"embedded"`
	// 分块数
	ChunkCount int `json:"chunk_count" example:"4"`
}
