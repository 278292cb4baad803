// Package rerank 提供统一的重排提供者接口和实现.
package rerank

import (
	"context"
	"fmt"
	"time"
)

// RerankRequest 表示重排文档的请求.
type RerankRequest struct {
	Query           string     `json:"query"`
	Documents       []Document `json:"documents"`
	Model           string     `json:"model,omitempty"`
	TopN            int        `json:"top_n,omitempty"`            // Return top N results
	ReturnDocuments bool       `json:"return_documents,omitempty"` // Include document text in response
}

// Document 表示要重排的文档.
type Document struct {
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
}

// RerankResponse 表示重排请求的响应.
type RerankResponse struct {
	ID        string         `json:"id,omitempty"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Results   []RerankResult `json:"results"`
	Usage     RerankUsage    `json:"usage"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// RerankResult 表示单个重排结果.
type RerankResult struct {
	Index          int      `json:"index"`           // Original index in input
	RelevanceScore float64  `json:"relevance_score"` // 0-1 normalized score
	Document       Document `json:"document,omitempty"`
}

// RerankUsage 表示用量统计.
type RerankUsage struct {
	SearchUnits int `json:"search_units,omitempty"`
	TotalTokens int `json:"total_tokens,omitempty"`
}

// Provider 定义统一的重排提供者接口.
type Provider interface {
	// Rerank 按与查询的相关性对文档重排.
	Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error)

	// RerankSimple 是简单重排的便捷方法.
	RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)

	// Name 返回提供者名称.
	Name() string

	// MaxDocuments 返回支持的最大文档数量.
	MaxDocuments() int
}

// Adapter 把 Provider 适配成检索链路需要的打分接口：
// 返回与输入文档一一对应（按原顺序）的相关性分数.
type Adapter struct {
	Provider Provider
}

// Rerank 返回按输入顺序对齐的相关性分数.
func (a Adapter) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	results, err := a.Provider.RerankSimple(ctx, query, texts, len(texts))
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank result missing for document %d", i)
		}
	}

	return scores, nil
}
