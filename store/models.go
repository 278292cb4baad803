// =============================================================================
// 🗄️ SiteAgent 持久化模型
// =============================================================================
// 爬取队列、知识页面与未回答问题的 GORM 模型定义
// =============================================================================
package store

import "time"

// 爬取队列条目状态
const (
	QueueStatusPending = "pending" // 待抓取
	QueueStatusScraped = "scraped" // 已抓取
	QueueStatusError   = "error"   // 抓取失败
)

// 知识页面状态
const (
	PageStatusPending  = "pending"  // 待处理
	PageStatusChunked  = "chunked"  // 已分块
	PageStatusEmbedded = "embedded" // 已向量化
	PageStatusError    = "error"    // 处理失败
)

// CrawlQueueEntry 爬取队列条目
//
// 同一代理下 URL 唯一；URL 在入库前已归一化（去 fragment、去尾斜杠、
// 主机名小写）。深度从 0 开始，入队后不再减小。
type CrawlQueueEntry struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AgentID      string     `gorm:"size:64;not null;uniqueIndex:idx_agent_url;index:idx_queue_agent_status" json:"agent_id"`
	URL          string     `gorm:"size:2048;not null;uniqueIndex:idx_agent_url" json:"url"`
	Depth        int        `gorm:"not null;default:0" json:"depth"`
	Status       string     `gorm:"size:16;not null;default:pending;index:idx_queue_agent_status" json:"status"`
	DiscoveredAt time.Time  `gorm:"not null" json:"discovered_at"`
	ScrapedAt    *time.Time `json:"scraped_at,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName 指定表名
func (CrawlQueueEntry) TableName() string { return "crawl_queue_entries" }

// KnowledgePage 抓取到的知识页面
//
// 同一代理下源 URL 唯一；重复抓取按冲突更新内容与状态。
type KnowledgePage struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AgentID         string    `gorm:"size:64;not null;uniqueIndex:idx_agent_source;index:idx_page_agent_status" json:"agent_id"`
	SourceURL       string    `gorm:"size:2048;not null;uniqueIndex:idx_agent_source" json:"source_url"`
	Title           string    `gorm:"size:512" json:"title"`
	MarkdownContent string    `gorm:"type:text" json:"markdown_content"`
	ContentHash     string    `gorm:"size:64" json:"content_hash"`
	ChunkCount      int       `gorm:"default:0" json:"chunk_count"`
	Status          string    `gorm:"size:16;not null;default:pending;index:idx_page_agent_status" json:"status"`
	ErrorMessage    string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName 指定表名
func (KnowledgePage) TableName() string { return "knowledge_pages" }

// UnansweredQuestion 未回答问题台账
//
// 问题文本在入库前统一小写并去首尾空白，同一代理下唯一。
type UnansweredQuestion struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	AgentID             string    `gorm:"size:64;not null;uniqueIndex:idx_agent_question" json:"agent_id"`
	Question            string    `gorm:"size:1024;not null;uniqueIndex:idx_agent_question" json:"question"`
	TimesAsked          int       `gorm:"not null;default:1" json:"times_asked"`
	BestSimilarityScore float64   `gorm:"not null;default:0" json:"best_similarity_score"`
	LastAskedAt         time.Time `gorm:"not null" json:"last_asked_at"`
}

// TableName 指定表名
func (UnansweredQuestion) TableName() string { return "unanswered_questions" }

// CuratedQA 运营人工维护的问答对
//
// 同一代理下问题唯一；保存后作为 qa 类型检索单元写入向量索引，
// 重建索引时随页面一起重新嵌入。
type CuratedQA struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AgentID   string    `gorm:"size:64;not null;uniqueIndex:idx_agent_qa" json:"agent_id"`
	Question  string    `gorm:"size:1024;not null;uniqueIndex:idx_agent_qa" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	SourceURL string    `gorm:"size:2048" json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (CuratedQA) TableName() string { return "curated_qa_pairs" }

// CrawlSummary 某代理的爬取进度汇总
type CrawlSummary struct {
	AgentID  string `json:"agent_id"`
	Pending  int64  `json:"pending"`
	Scraped  int64  `json:"scraped"`
	Errored  int64  `json:"errored"`
	Total    int64  `json:"total"`
	MaxDepth int    `json:"max_depth"`
}

// KnowledgeSummary 某代理的知识状态汇总
type KnowledgeSummary struct {
	AgentID  string `json:"agent_id"`
	Pending  int64  `json:"pending"`
	Chunked  int64  `json:"chunked"`
	Embedded int64  `json:"embedded"`
	Errored  int64  `json:"errored"`
	Total    int64  `json:"total"`
}
