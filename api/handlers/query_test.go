package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/internal/cache"
	"github.com/BaSui01/siteagent/rag"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

// stubEmbedder 固定向量的嵌入桩
type stubEmbedder struct {
	vector []float64
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return s.vector, nil
}

// stubGenerator 固定回答的生成桩
type stubGenerator struct {
	answer string
	calls  int
}

func (s *stubGenerator) Generate(ctx context.Context, req rag.GenerationRequest) (*rag.GenerationResult, error) {
	s.calls++
	return &rag.GenerationResult{
		Answer:    s.answer,
		TokensIn:  300,
		TokensOut: 40,
		TimeMs:    8,
	}, nil
}

func setupQueryHandler(t *testing.T, embedder *stubEmbedder, generator *stubGenerator) *QueryHandler {
	t.Helper()

	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	answers := rag.NewAnswerCache(manager, rag.DefaultAnswerCacheConfig(), zap.NewNop())

	vectors := rag.NewMemoryVectorStore(zap.NewNop())
	require.NoError(t, vectors.Upsert(context.Background(), "agent-1", []rag.VectorDoc{
		{
			ID:        "page-1-chunk-0",
			Embedding: []float64{1, 0, 0},
			Metadata: map[string]any{
				"source_url": "https://example.com/pricing",
				"page_title": "Pricing",
				"text":       "Plans start at ten dollars per month.",
			},
		},
	}))

	retriever := rag.NewRetriever(vectors, nil, rag.RetrievalConfig{
		TopK:            4,
		ConfidenceFloor: 0.45,
	}, zap.NewNop())

	pipeline := rag.NewPipeline(
		rag.NewRouter(), answers, embedder, retriever, generator, nil, nil, zap.NewNop(),
	)

	return NewQueryHandler(pipeline, nil, nil, zap.NewNop())
}

func queryResponse(t *testing.T, resp apiResponse) rag.QueryResponse {
	t.Helper()
	var out rag.QueryResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

// =============================================================================
// 🧪 QueryHandler 测试
// =============================================================================

func TestQueryHandler_GreetingShortCircuits(t *testing.T) {
	generator := &stubGenerator{answer: "unused"}
	handler := setupQueryHandler(t, &stubEmbedder{vector: []float64{1, 0, 0}}, generator)

	w := postJSON(t, handler.HandleQuery, "/api/v1/query",
		`{"agent_id":"agent-1","agent_name":"Ava","query":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	out := queryResponse(t, decodeResponse(t, w))
	assert.Equal(t, rag.OutcomeRouted, out.Outcome)
	assert.Equal(t, rag.IntentGreeting, out.Intent)
	assert.NotEmpty(t, out.Answer)
	assert.Zero(t, generator.calls)
}

func TestQueryHandler_GeneratesAnswer(t *testing.T) {
	generator := &stubGenerator{answer: "Plans start at ten dollars per month."}
	handler := setupQueryHandler(t, &stubEmbedder{vector: []float64{1, 0, 0}}, generator)

	w := postJSON(t, handler.HandleQuery, "/api/v1/query",
		`{"agent_id":"agent-1","query":"how much does a plan cost"}`)
	require.Equal(t, http.StatusOK, w.Code)

	out := queryResponse(t, decodeResponse(t, w))
	assert.Equal(t, rag.OutcomeGenerated, out.Outcome)
	assert.Contains(t, out.Sources, "https://example.com/pricing")
	assert.Equal(t, 300, out.TokensIn)
	assert.Equal(t, 1, generator.calls)
}

func TestQueryHandler_RepeatQueryHitsCache(t *testing.T) {
	generator := &stubGenerator{answer: "Plans start at ten dollars per month."}
	handler := setupQueryHandler(t, &stubEmbedder{vector: []float64{1, 0, 0}}, generator)

	body := `{"agent_id":"agent-1","query":"how much does a plan cost"}`

	w := postJSON(t, handler.HandleQuery, "/api/v1/query", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, handler.HandleQuery, "/api/v1/query", body)
	require.Equal(t, http.StatusOK, w.Code)

	out := queryResponse(t, decodeResponse(t, w))
	assert.Equal(t, rag.OutcomeCacheHit, out.Outcome)
	assert.True(t, out.CacheHit)
	assert.Equal(t, 1, out.CacheLayer)
	assert.Equal(t, 1, generator.calls, "cached answer must not trigger generation")
}

func TestQueryHandler_FallbackWhenNothingConfident(t *testing.T) {
	generator := &stubGenerator{answer: "unused"}
	// 与索引中的 [1,0,0] 近乎正交，低于置信下限
	handler := setupQueryHandler(t, &stubEmbedder{vector: []float64{0.1, 0, 0.995}}, generator)

	w := postJSON(t, handler.HandleQuery, "/api/v1/query",
		`{"agent_id":"agent-1","site_name":"Example Plumbing","query":"do you ship to mars"}`)
	require.Equal(t, http.StatusOK, w.Code)

	out := queryResponse(t, decodeResponse(t, w))
	assert.Equal(t, rag.OutcomeFallback, out.Outcome)
	assert.NotEmpty(t, out.Answer)
	assert.Zero(t, out.TokensIn)
	assert.Zero(t, generator.calls)
}

func TestQueryHandler_Validation(t *testing.T) {
	handler := setupQueryHandler(t, &stubEmbedder{vector: []float64{1, 0, 0}}, &stubGenerator{})

	tests := []struct {
		name string
		body string
	}{
		{"missing agent_id", `{"query":"hello"}`},
		{"missing query", `{"agent_id":"agent-1"}`},
		{"invalid json", `{"agent_id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.HandleQuery, "/api/v1/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
