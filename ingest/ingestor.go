// 版权所有 2026 SiteAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package ingest 把已抓取的知识页面转成向量索引：
// 分块、批量嵌入、按代理命名空间写入向量存储。
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/rag"
	"github.com/BaSui01/siteagent/store"
	"github.com/BaSui01/siteagent/types"
)

// DocumentEmbedder 文档嵌入协作方（摄取侧批量接口）
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
}

// AnswerInvalidator 重建索引时需要连带失效的回答缓存
type AnswerInvalidator interface {
	Wipe(ctx context.Context, agentID string)
}

// Result 一次摄取的汇总
type Result struct {
	PagesProcessed  int `json:"pages_processed"`
	PagesEmbedded   int `json:"pages_embedded"`
	PagesEmpty      int `json:"pages_empty"`
	PagesFailed     int `json:"pages_failed"`
	ChunksUpserted  int `json:"chunks_upserted"`
	QAPairsEmbedded int `json:"qa_pairs_embedded,omitempty"`
}

// Ingestor 摄取器：pending 页面 → 检索单元 → 向量索引
type Ingestor struct {
	store    *store.Store
	chunker  *rag.Chunker
	embedder DocumentEmbedder
	vectors  rag.VectorStore
	answers  AnswerInvalidator
	logger   *zap.Logger
}

// NewIngestor 创建摄取器。answers 可为 nil。
func NewIngestor(
	st *store.Store,
	chunker *rag.Chunker,
	embedder DocumentEmbedder,
	vectors rag.VectorStore,
	answers AnswerInvalidator,
	logger *zap.Logger,
) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ingestor{
		store:    st,
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		answers:  answers,
		logger:   logger.With(zap.String("component", "ingestor")),
	}
}

// ProcessPendingPages 处理某代理全部 pending 页面。
// 单页失败只标记该页错误并继续，不打断整批。
func (in *Ingestor) ProcessPendingPages(ctx context.Context, agentID string) (*Result, error) {
	pages, err := in.store.Pages.ListByStatus(ctx, agentID, store.PageStatusPending, 0)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "failed to list pending pages").WithCause(err)
	}

	result := &Result{}
	for i := range pages {
		page := &pages[i]
		result.PagesProcessed++

		upserted, err := in.processPage(ctx, page)
		if err != nil {
			result.PagesFailed++
			in.logger.Error("page ingest failed",
				zap.String("agent_id", agentID),
				zap.String("source_url", page.SourceURL),
				zap.Error(err),
			)
			if markErr := in.store.Pages.MarkError(ctx, page.ID, err.Error()); markErr != nil {
				in.logger.Error("failed to mark page error", zap.Uint("page_id", page.ID), zap.Error(markErr))
			}
			continue
		}

		if upserted == 0 {
			result.PagesEmpty++
		}
		result.PagesEmbedded++
		result.ChunksUpserted += upserted
	}

	in.logger.Info("ingest pass complete",
		zap.String("agent_id", agentID),
		zap.Int("pages_processed", result.PagesProcessed),
		zap.Int("pages_embedded", result.PagesEmbedded),
		zap.Int("pages_failed", result.PagesFailed),
		zap.Int("chunks_upserted", result.ChunksUpserted),
	)

	return result, nil
}

// processPage 单页处理：分块 → 标记 chunked → 嵌入 → 写向量 → 标记 embedded。
// 新块集合整体取代旧集合：上一轮多出的尾部块 ID 会从命名空间删除。
func (in *Ingestor) processPage(ctx context.Context, page *store.KnowledgePage) (int, error) {
	prevCount := page.ChunkCount
	units := in.chunker.Chunk(page.MarkdownContent, page.SourceURL, page.Title)

	if err := in.store.Pages.MarkChunked(ctx, page.ID, len(units)); err != nil {
		return 0, fmt.Errorf("failed to mark page chunked: %w", err)
	}

	// 空页面直接进入 embedded 终态，块数为零
	if len(units) == 0 {
		if err := in.deleteStaleChunks(ctx, page, prevCount, 0); err != nil {
			return 0, err
		}
		if err := in.store.Pages.MarkEmbedded(ctx, page.ID); err != nil {
			return 0, fmt.Errorf("failed to mark empty page embedded: %w", err)
		}
		return 0, nil
	}

	texts := make([]string, len(units))
	for i, unit := range units {
		texts[i] = unit.Text
	}

	embeddings, err := in.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, types.NewError(types.ErrEmbeddingFailed, "document embedding failed").WithCause(err)
	}
	if len(embeddings) != len(units) {
		return 0, types.NewError(types.ErrEmbeddingFailed,
			fmt.Sprintf("embedding count mismatch: want %d got %d", len(units), len(embeddings)))
	}

	docs := make([]rag.VectorDoc, len(units))
	for i, unit := range units {
		docs[i] = rag.VectorDoc{
			ID:        chunkID(page.ID, unit.ChunkIndex),
			Embedding: embeddings[i],
			Metadata:  rag.UnitToMetadata(unit),
		}
	}

	if err := in.vectors.Upsert(ctx, page.AgentID, docs); err != nil {
		return 0, types.NewError(types.ErrVectorStoreError, "vector upsert failed").WithCause(err)
	}

	if err := in.deleteStaleChunks(ctx, page, prevCount, len(units)); err != nil {
		return 0, err
	}

	if err := in.store.Pages.MarkEmbedded(ctx, page.ID); err != nil {
		return 0, fmt.Errorf("failed to mark page embedded: %w", err)
	}

	return len(docs), nil
}

// deleteStaleChunks 删除上一轮分块多出的尾部向量
func (in *Ingestor) deleteStaleChunks(ctx context.Context, page *store.KnowledgePage, prevCount, newCount int) error {
	if prevCount <= newCount {
		return nil
	}

	stale := make([]string, 0, prevCount-newCount)
	for i := newCount; i < prevCount; i++ {
		stale = append(stale, chunkID(page.ID, i))
	}
	if err := in.vectors.DeleteByIDs(ctx, page.AgentID, stale); err != nil {
		return types.NewError(types.ErrVectorStoreError, "failed to delete superseded chunks").WithCause(err)
	}

	in.logger.Debug("superseded chunks removed",
		zap.String("agent_id", page.AgentID),
		zap.String("source_url", page.SourceURL),
		zap.Int("removed", len(stale)),
	)
	return nil
}

// SaveCuratedQA 保存一组问答对并作为 qa 类型检索单元写入向量索引。
// 同代理同问题的旧答案被覆盖，对应向量一并更新。
func (in *Ingestor) SaveCuratedQA(ctx context.Context, agentID string, pairs []store.CuratedQA) ([]store.CuratedQA, error) {
	saved := make([]store.CuratedQA, 0, len(pairs))
	for i := range pairs {
		qa := pairs[i]
		qa.AgentID = agentID
		if err := in.store.CuratedQA.Upsert(ctx, &qa); err != nil {
			return nil, types.NewError(types.ErrStoreError, "failed to save curated qa").WithCause(err)
		}
		saved = append(saved, qa)
	}

	if err := in.upsertCuratedVectors(ctx, agentID, saved); err != nil {
		return nil, err
	}

	in.logger.Info("curated qa saved",
		zap.String("agent_id", agentID),
		zap.Int("pairs", len(saved)),
	)
	return saved, nil
}

// DeleteCuratedQA 删除问答对及其向量
func (in *Ingestor) DeleteCuratedQA(ctx context.Context, agentID string, id uint) error {
	if _, err := in.store.CuratedQA.Get(ctx, agentID, id); err != nil {
		return types.NewError(types.ErrNotFound, "curated qa not found").WithCause(err)
	}

	if err := in.vectors.DeleteByIDs(ctx, agentID, []string{curatedQAID(id)}); err != nil {
		return types.NewError(types.ErrVectorStoreError, "failed to delete curated qa vector").WithCause(err)
	}
	if err := in.store.CuratedQA.Delete(ctx, agentID, id); err != nil {
		return types.NewError(types.ErrStoreError, "failed to delete curated qa").WithCause(err)
	}
	return nil
}

// upsertCuratedVectors 批量嵌入问答对并按行 ID 写入向量索引
func (in *Ingestor) upsertCuratedVectors(ctx context.Context, agentID string, pairs []store.CuratedQA) error {
	if len(pairs) == 0 {
		return nil
	}

	units := make([]rag.RetrievalUnit, len(pairs))
	texts := make([]string, len(pairs))
	for i, qa := range pairs {
		units[i] = rag.RetrievalUnit{
			SourceURL:     qa.SourceURL,
			PageTitle:     qa.Question,
			Text:          fmt.Sprintf("Q: %s\nA: %s", qa.Question, qa.Answer),
			SectionHeader: qa.Question,
			ChunkType:     rag.ChunkTypeQA,
		}
		texts[i] = units[i].Text
	}

	embeddings, err := in.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return types.NewError(types.ErrEmbeddingFailed, "curated qa embedding failed").WithCause(err)
	}
	if len(embeddings) != len(pairs) {
		return types.NewError(types.ErrEmbeddingFailed,
			fmt.Sprintf("embedding count mismatch: want %d got %d", len(pairs), len(embeddings)))
	}

	docs := make([]rag.VectorDoc, len(pairs))
	for i := range pairs {
		docs[i] = rag.VectorDoc{
			ID:        curatedQAID(pairs[i].ID),
			Embedding: embeddings[i],
			Metadata:  rag.UnitToMetadata(units[i]),
		}
	}

	if err := in.vectors.Upsert(ctx, agentID, docs); err != nil {
		return types.NewError(types.ErrVectorStoreError, "curated qa vector upsert failed").WithCause(err)
	}
	return nil
}

// Reindex 重建某代理的向量索引：清空命名空间与回答缓存，
// 把全部页面重置为 pending 后重新摄取，最后重新嵌入问答对
func (in *Ingestor) Reindex(ctx context.Context, agentID string) (*Result, error) {
	if err := in.vectors.DeleteNamespace(ctx, agentID); err != nil {
		return nil, types.NewError(types.ErrVectorStoreError, "failed to clear vector namespace").WithCause(err)
	}

	if in.answers != nil {
		in.answers.Wipe(ctx, agentID)
	}

	reset, err := in.store.Pages.ResetAllToPending(ctx, agentID)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "failed to reset pages").WithCause(err)
	}

	in.logger.Info("reindex started",
		zap.String("agent_id", agentID),
		zap.Int64("pages_reset", reset),
	)

	result, err := in.ProcessPendingPages(ctx, agentID)
	if err != nil {
		return nil, err
	}

	pairs, err := in.store.CuratedQA.List(ctx, agentID)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "failed to list curated qa").WithCause(err)
	}
	if err := in.upsertCuratedVectors(ctx, agentID, pairs); err != nil {
		return nil, err
	}
	result.QAPairsEmbedded = len(pairs)

	return result, nil
}

// chunkID 页面内稳定的向量 ID
func chunkID(pageID uint, chunkIndex int) string {
	return fmt.Sprintf("page-%d-chunk-%d", pageID, chunkIndex)
}

// curatedQAID 问答对的向量 ID
func curatedQAID(id uint) string {
	return fmt.Sprintf("qa-%d", id)
}
