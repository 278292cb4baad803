package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/api"
	"github.com/BaSui01/siteagent/ingest"
	"github.com/BaSui01/siteagent/rag"
	"github.com/BaSui01/siteagent/store"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

// stubDocEmbedder 文档嵌入桩
type stubDocEmbedder struct{}

func (s *stubDocEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, len(documents))
	for i := range documents {
		out[i] = []float64{1, float64(i), 0}
	}
	return out, nil
}

func setupKnowledgeHandler(t *testing.T) (*KnowledgeHandler, *store.Store) {
	t.Helper()

	st, err := store.Open(store.Config{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.AutoMigrate())
	t.Cleanup(func() { st.Close() })

	chunker := rag.NewChunker(rag.DefaultChunkerConfig(), rag.EstimatorTokenizer{}, zap.NewNop())
	vectors := rag.NewMemoryVectorStore(zap.NewNop())
	ingestor := ingest.NewIngestor(st, chunker, &stubDocEmbedder{}, vectors, nil, zap.NewNop())

	return NewKnowledgeHandler(st, ingestor, nil, zap.NewNop()), st
}

func seedKnowledgePage(t *testing.T, st *store.Store, agentID, url, markdown string) {
	t.Helper()
	require.NoError(t, st.Pages.Upsert(context.Background(), &store.KnowledgePage{
		AgentID:         agentID,
		SourceURL:       url,
		Title:           "Seeded Page",
		MarkdownContent: markdown,
		ContentHash:     "hash-" + url,
	}))
}

const servicesMarkdown = `# Our Services

We offer drain cleaning and pipe repair across the city.
Contact us by phone or email for emergency service any time.

## Pricing

Standard visits start at ninety dollars.
`

// =============================================================================
// 🧪 KnowledgeHandler 测试
// =============================================================================

func TestKnowledgeHandler_ProcessAndList(t *testing.T) {
	handler, _ := setupKnowledgeHandler(t)

	seedKnowledgePage(t, handler.store, "agent-1", "https://example.com/services", servicesMarkdown)

	w := postJSON(t, handler.HandleProcess, "/api/v1/knowledge/process", `{"agent_id":"agent-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(decodeResponse(t, w).Data, &result))
	assert.Equal(t, 1, result.PagesEmbedded)
	assert.Greater(t, result.ChunksUpserted, 0)

	lw := httptest.NewRecorder()
	lr := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/pages?agent_id=agent-1", nil)
	handler.HandlePages(lw, lr)
	require.Equal(t, http.StatusOK, lw.Code)

	var infos []api.PageInfo
	require.NoError(t, json.Unmarshal(decodeResponse(t, lw).Data, &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "embedded", infos[0].Status)
	assert.Equal(t, result.ChunksUpserted, infos[0].ChunkCount)
}

func TestKnowledgeHandler_Summary(t *testing.T) {
	handler, st := setupKnowledgeHandler(t)

	seedKnowledgePage(t, st, "agent-1", "https://example.com/a", servicesMarkdown)
	seedKnowledgePage(t, st, "agent-1", "https://example.com/b", servicesMarkdown)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/summary?agent_id=agent-1", nil)
	handler.HandleSummary(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var summary store.KnowledgeSummary
	require.NoError(t, json.Unmarshal(decodeResponse(t, w).Data, &summary))
	assert.Equal(t, int64(2), summary.Total)
	assert.Equal(t, int64(2), summary.Pending)
}

func TestKnowledgeHandler_Reindex(t *testing.T) {
	handler, st := setupKnowledgeHandler(t)

	seedKnowledgePage(t, st, "agent-1", "https://example.com/services", servicesMarkdown)

	w := postJSON(t, handler.HandleProcess, "/api/v1/knowledge/process", `{"agent_id":"agent-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	rw := postJSON(t, handler.HandleReindex, "/api/v1/knowledge/reindex", `{"agent_id":"agent-1"}`)
	require.Equal(t, http.StatusOK, rw.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(decodeResponse(t, rw).Data, &result))
	assert.Equal(t, 1, result.PagesEmbedded)
}

func TestKnowledgeHandler_Unanswered(t *testing.T) {
	handler, st := setupKnowledgeHandler(t)
	ctx := context.Background()

	require.NoError(t, st.Unanswered.Record(ctx, "agent-1", "do you sell gift cards", 0.21))
	require.NoError(t, st.Unanswered.Record(ctx, "agent-1", "what are your hours", 0.38))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/unanswered?agent_id=agent-1&limit=10", nil)
	handler.HandleUnanswered(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var questions []store.UnansweredQuestion
	require.NoError(t, json.Unmarshal(decodeResponse(t, w).Data, &questions))
	assert.Len(t, questions, 2)
}

func TestKnowledgeHandler_Unanswered_RejectsBadLimit(t *testing.T) {
	handler, _ := setupKnowledgeHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/unanswered?agent_id=agent-1&limit=zero", nil)
	handler.HandleUnanswered(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKnowledgeHandler_Suggestions(t *testing.T) {
	handler, st := setupKnowledgeHandler(t)

	seedKnowledgePage(t, st, "agent-1", "https://example.com/services", servicesMarkdown)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/suggestions?agent_id=agent-1", nil)
	handler.HandleSuggestions(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var suggestions []rag.QASuggestion
	require.NoError(t, json.Unmarshal(decodeResponse(t, w).Data, &suggestions))
	assert.NotEmpty(t, suggestions)

	for _, s := range suggestions {
		assert.Equal(t, "https://example.com/services", s.SourceURL)
		assert.NotEmpty(t, s.Question)
	}
}

func TestKnowledgeHandler_QASaveListDelete(t *testing.T) {
	handler, st := setupKnowledgeHandler(t)

	w := postJSON(t, handler.HandleQASave, "/api/v1/knowledge/qa/save",
		`{"agent_id":"agent-1","pairs":[
			{"question":"What are your hours?","answer":"9 to 5 on weekdays.","source_url":"https://example.com/contact"},
			{"question":"Do you deliver?","answer":"Yes, city-wide."}
		]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var saved []store.CuratedQA
	require.NoError(t, json.Unmarshal(decodeResponse(t, w).Data, &saved))
	require.Len(t, saved, 2)
	assert.NotZero(t, saved[0].ID)

	lw := httptest.NewRecorder()
	lr := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/qa?agent_id=agent-1", nil)
	handler.HandleQAList(lw, lr)
	require.Equal(t, http.StatusOK, lw.Code)

	var pairs []store.CuratedQA
	require.NoError(t, json.Unmarshal(decodeResponse(t, lw).Data, &pairs))
	assert.Len(t, pairs, 2)

	dw := postJSON(t, handler.HandleQADelete, "/api/v1/knowledge/qa/delete",
		fmt.Sprintf(`{"agent_id":"agent-1","id":%d}`, saved[0].ID))
	require.Equal(t, http.StatusOK, dw.Code)

	remaining, err := st.CuratedQA.List(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestKnowledgeHandler_QASave_Validation(t *testing.T) {
	handler, _ := setupKnowledgeHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing agent_id", `{"pairs":[{"question":"q","answer":"a"}]}`},
		{"empty pairs", `{"agent_id":"agent-1","pairs":[]}`},
		{"pair missing answer", `{"agent_id":"agent-1","pairs":[{"question":"q"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.HandleQASave, "/api/v1/knowledge/qa/save", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestKnowledgeHandler_QADelete_NotFound(t *testing.T) {
	handler, _ := setupKnowledgeHandler(t)

	w := postJSON(t, handler.HandleQADelete, "/api/v1/knowledge/qa/delete",
		`{"agent_id":"agent-1","id":42}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKnowledgeHandler_RequiresAgentID(t *testing.T) {
	handler, _ := setupKnowledgeHandler(t)

	gets := []http.HandlerFunc{handler.HandlePages, handler.HandleSummary, handler.HandleUnanswered, handler.HandleSuggestions}
	for _, fn := range gets {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge", nil)
		fn(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	posts := []http.HandlerFunc{handler.HandleProcess, handler.HandleReindex}
	for _, fn := range posts {
		w := postJSON(t, fn, "/api/v1/knowledge", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}
