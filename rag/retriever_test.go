package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/types"
)

type fakeReranker struct {
	scores []float64
	err    error
	calls  int
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

type failingVectorStore struct{}

func (failingVectorStore) Upsert(ctx context.Context, namespace string, docs []VectorDoc) error {
	return errors.New("unreachable")
}

func (failingVectorStore) Query(ctx context.Context, namespace string, embedding []float64, topK int) ([]Match, error) {
	return nil, errors.New("index unreachable")
}

func (failingVectorStore) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	return errors.New("unreachable")
}

func (failingVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	return errors.New("unreachable")
}

func seedRetrieverStore(t *testing.T, store *MemoryVectorStore, agentID string) {
	t.Helper()

	docs := []VectorDoc{
		{ID: "c1", Embedding: []float64{1, 0, 0}, Metadata: UnitToMetadata(RetrievalUnit{
			SourceURL: "https://example.com/pricing", Text: "Plans start at $10/month.", ChunkIndex: 0,
		})},
		{ID: "c2", Embedding: []float64{0.8, 0.6, 0}, Metadata: UnitToMetadata(RetrievalUnit{
			SourceURL: "https://example.com/features", Text: "We support SSO.", ChunkIndex: 1,
		})},
		{ID: "c3", Embedding: []float64{0, 1, 0}, Metadata: UnitToMetadata(RetrievalUnit{
			SourceURL: "https://example.com/about", Text: "Founded in 2020.", ChunkIndex: 2,
		})},
	}
	require.NoError(t, store.Upsert(context.Background(), agentID, docs))
}

func TestRetriever_ConfidenceFloorSplit(t *testing.T) {
	store := NewMemoryVectorStore(zap.NewNop())
	seedRetrieverStore(t, store, "agent-1")

	r := NewRetriever(store, nil, DefaultRetrievalConfig(), zap.NewNop())

	// 与 (1,0,0) 的余弦：c1=1.0 c2=0.8 c3=0.0，下限 0.45
	result, err := r.Retrieve(context.Background(), "agent-1", []float64{1, 0, 0}, "pricing")
	require.NoError(t, err)

	assert.Len(t, result.All, 3)
	require.Len(t, result.Confident, 2)
	assert.Equal(t, "https://example.com/pricing", result.Confident[0].Unit.SourceURL)
	assert.Equal(t, "https://example.com/features", result.Confident[1].Unit.SourceURL)
	assert.False(t, result.Reranked)
	assert.GreaterOrEqual(t, result.Confident[0].Score, result.Confident[1].Score)
}

func TestRetriever_AllBelowFloor(t *testing.T) {
	store := NewMemoryVectorStore(zap.NewNop())
	seedRetrieverStore(t, store, "agent-1")

	r := NewRetriever(store, nil, DefaultRetrievalConfig(), zap.NewNop())

	// 与 (0,0,1) 正交，全部低于下限
	result, err := r.Retrieve(context.Background(), "agent-1", []float64{0, 0, 1}, "unrelated")
	require.NoError(t, err)

	assert.Empty(t, result.Confident)
	assert.Len(t, result.All, 3)
}

func TestRetriever_RerankReplacesScoresAndFloor(t *testing.T) {
	store := NewMemoryVectorStore(zap.NewNop())
	seedRetrieverStore(t, store, "agent-1")

	// 重排后 c3 反超；0.35 在向量下限之下、重排下限之上
	reranker := &fakeReranker{scores: []float64{0.2, 0.35, 0.9}}

	config := DefaultRetrievalConfig()
	config.RerankEnabled = true
	r := NewRetriever(store, reranker, config, zap.NewNop())

	result, err := r.Retrieve(context.Background(), "agent-1", []float64{1, 0, 0}, "pricing")
	require.NoError(t, err)

	assert.True(t, result.Reranked)
	assert.Equal(t, 1, reranker.calls)

	require.Len(t, result.Confident, 2)
	assert.Equal(t, "https://example.com/about", result.Confident[0].Unit.SourceURL)
	assert.InDelta(t, 0.9, result.Confident[0].Score, 1e-9)
	assert.Equal(t, "https://example.com/features", result.Confident[1].Unit.SourceURL)
	assert.InDelta(t, 0.35, result.Confident[1].Score, 1e-9)
}

func TestRetriever_RerankFailureKeepsVectorScores(t *testing.T) {
	store := NewMemoryVectorStore(zap.NewNop())
	seedRetrieverStore(t, store, "agent-1")

	reranker := &fakeReranker{err: errors.New("rerank service down")}

	config := DefaultRetrievalConfig()
	config.RerankEnabled = true
	r := NewRetriever(store, reranker, config, zap.NewNop())

	result, err := r.Retrieve(context.Background(), "agent-1", []float64{1, 0, 0}, "pricing")
	require.NoError(t, err)

	assert.False(t, result.Reranked)
	require.Len(t, result.Confident, 2)
	assert.Equal(t, "https://example.com/pricing", result.Confident[0].Unit.SourceURL)
}

func TestRetriever_RerankDisabledSkipsReranker(t *testing.T) {
	store := NewMemoryVectorStore(zap.NewNop())
	seedRetrieverStore(t, store, "agent-1")

	reranker := &fakeReranker{scores: []float64{0.9, 0.9, 0.9}}
	r := NewRetriever(store, reranker, DefaultRetrievalConfig(), zap.NewNop())

	_, err := r.Retrieve(context.Background(), "agent-1", []float64{1, 0, 0}, "pricing")
	require.NoError(t, err)
	assert.Equal(t, 0, reranker.calls)
}

func TestRetriever_VectorStoreErrorSurfaced(t *testing.T) {
	r := NewRetriever(failingVectorStore{}, nil, DefaultRetrievalConfig(), zap.NewNop())

	_, err := r.Retrieve(context.Background(), "agent-1", []float64{1, 0, 0}, "pricing")
	require.Error(t, err)
	assert.Equal(t, types.ErrVectorStoreError, types.GetErrorCode(err))
}

func TestRetriever_NamespaceIsolation(t *testing.T) {
	store := NewMemoryVectorStore(zap.NewNop())
	seedRetrieverStore(t, store, "agent-1")

	r := NewRetriever(store, nil, DefaultRetrievalConfig(), zap.NewNop())

	result, err := r.Retrieve(context.Background(), "agent-2", []float64{1, 0, 0}, "pricing")
	require.NoError(t, err)
	assert.Empty(t, result.All)
	assert.Empty(t, result.Confident)
}
