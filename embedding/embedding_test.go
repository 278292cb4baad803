package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/siteagent/types"
)

func TestOpenAIProvider_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"hello"}, req.Input)
		assert.Equal(t, "text-embedding-3-small", req.Model)

		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2, 0.3}},
			},
			"usage": map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	vec, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestJinaProvider_TaskMapping(t *testing.T) {
	var gotTask string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jinaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotTask = req.Task

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float64{0.5, 0.5}}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"data":  data,
			"usage": map[string]int{"total_tokens": 4},
		})
	}))
	defer server.Close()

	p := NewJinaProvider(JinaConfig{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "retrieval.query", gotTask)

	_, err = p.EmbedDocuments(context.Background(), []string{"doc one", "doc two"})
	require.NoError(t, err)
	assert.Equal(t, "retrieval.passage", gotTask)
}

func TestBaseProvider_EmbedDocumentsBatches(t *testing.T) {
	p := NewBaseProvider(BaseConfig{Name: "fake", MaxBatch: 2})

	var batches [][]string
	embedFn := func(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
		batches = append(batches, req.Input)
		out := make([]EmbeddingData, len(req.Input))
		for i := range req.Input {
			out[i] = EmbeddingData{Index: i, Embedding: []float64{float64(len(batches))}}
		}
		return &EmbeddingResponse{Embeddings: out}, nil
	}

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c", "d", "e"}, embedFn)
	require.NoError(t, err)

	assert.Len(t, vecs, 5)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
	assert.Equal(t, []string{"e"}, batches[2])
}

func TestBaseProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusBadGateway, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
		_, err := p.EmbedQuery(context.Background(), "hello")
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.wantCode, types.GetErrorCode(err), "status %d", tt.status)
		assert.Equal(t, tt.retryable, types.IsRetryable(err), "status %d", tt.status)

		server.Close()
	}
}

func TestNew_ProviderSelection(t *testing.T) {
	p, err := New(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai-embedding", p.Name())

	p, err = New(Config{Provider: "jina", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "jina-embedding", p.Name())

	// 空串默认 openai
	p, err = New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai-embedding", p.Name())

	_, err = New(Config{Provider: "nope"})
	assert.Error(t, err)
}
