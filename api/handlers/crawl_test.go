package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/crawler"
	"github.com/BaSui01/siteagent/scrape"
	"github.com/BaSui01/siteagent/store"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

// apiResponse 测试侧的响应解码结构
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

// stubScraper 固定页面表的抓取桩
type stubScraper struct {
	mu    sync.Mutex
	pages map[string]*scrape.Result
}

func (s *stubScraper) Name() string { return "stub" }

func (s *stubScraper) Scrape(ctx context.Context, url string) (*scrape.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page, ok := s.pages[url]; ok {
		return page, nil
	}
	return nil, fmt.Errorf("page not found: %s", url)
}

func setupCrawlHandler(t *testing.T) (*CrawlHandler, *stubScraper, *store.Store) {
	t.Helper()

	st, err := store.Open(store.Config{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.AutoMigrate())
	t.Cleanup(func() { st.Close() })

	scraper := &stubScraper{pages: make(map[string]*scrape.Result)}
	orchestrator := crawler.NewOrchestrator(st, scraper, nil, crawler.Config{
		MaxPages:  10,
		MaxDepth:  2,
		BatchSize: 3,
	}, zap.NewNop())

	return NewCrawlHandler(orchestrator, nil, zap.NewNop()), scraper, st
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	handler(w, r)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// =============================================================================
// 🧪 CrawlHandler 测试
// =============================================================================

func TestCrawlHandler_StartAndStatus(t *testing.T) {
	handler, _, _ := setupCrawlHandler(t)

	w := postJSON(t, handler.HandleStart, "/api/v1/crawl/start",
		`{"agent_id":"agent-1","root_url":"https://example.com"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResponse(t, w).Success)

	sw := httptest.NewRecorder()
	sr := httptest.NewRequest(http.MethodGet, "/api/v1/crawl/status?agent_id=agent-1", nil)
	handler.HandleStatus(sw, sr)
	assert.Equal(t, http.StatusOK, sw.Code)

	var status crawler.Status
	require.NoError(t, json.Unmarshal(decodeResponse(t, sw).Data, &status))
	assert.Equal(t, int64(1), status.Summary.Total)
	assert.Equal(t, int64(1), status.Summary.Pending)
	assert.False(t, status.IsComplete)
}

func TestCrawlHandler_Start_Validation(t *testing.T) {
	handler, _, _ := setupCrawlHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing agent_id", `{"root_url":"https://example.com"}`},
		{"missing root_url", `{"agent_id":"agent-1"}`},
		{"invalid root_url", `{"agent_id":"agent-1","root_url":"::not a url"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.HandleStart, "/api/v1/crawl/start", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, decodeResponse(t, w).Success)
		})
	}
}

func TestCrawlHandler_Start_RejectsNonJSON(t *testing.T) {
	handler, _, _ := setupCrawlHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/crawl/start",
		bytes.NewBufferString("agent_id=agent-1"))
	r.Header.Set("Content-Type", "text/plain")
	handler.HandleStart(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCrawlHandler_Batch(t *testing.T) {
	handler, scraper, st := setupCrawlHandler(t)

	scraper.pages["https://example.com"] = &scrape.Result{
		Markdown: "# Welcome\n\nSee our services.",
		Title:    "Welcome",
		Links:    []string{"https://example.com/services"},
	}
	scraper.pages["https://example.com/services"] = &scrape.Result{
		Markdown: "# Services\n\nWe fix pipes.",
		Title:    "Services",
	}

	w := postJSON(t, handler.HandleStart, "/api/v1/crawl/start",
		`{"agent_id":"agent-1","root_url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// 第一批：起始页抓取成功并入队 services 链接
	bw := postJSON(t, handler.HandleBatch, "/api/v1/crawl/batch", `{"agent_id":"agent-1"}`)
	require.Equal(t, http.StatusOK, bw.Code)

	var result crawler.BatchResult
	require.NoError(t, json.Unmarshal(decodeResponse(t, bw).Data, &result))
	assert.Equal(t, 1, result.Scraped)
	assert.Zero(t, result.Errored)
	assert.Equal(t, int64(1), result.PendingRemaining)
	assert.False(t, result.IsComplete)

	// 第二批：抓完队列
	bw = postJSON(t, handler.HandleBatch, "/api/v1/crawl/batch", `{"agent_id":"agent-1"}`)
	require.Equal(t, http.StatusOK, bw.Code)
	require.NoError(t, json.Unmarshal(decodeResponse(t, bw).Data, &result))
	assert.True(t, result.IsComplete)

	// 页面已入库
	pages, err := st.Pages.List(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawlHandler_Cleanup(t *testing.T) {
	handler, _, _ := setupCrawlHandler(t)

	w := postJSON(t, handler.HandleStart, "/api/v1/crawl/start",
		`{"agent_id":"agent-1","root_url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	cw := postJSON(t, handler.HandleCleanup, "/api/v1/crawl/cleanup", `{"agent_id":"agent-1"}`)
	assert.Equal(t, http.StatusOK, cw.Code)

	sw := httptest.NewRecorder()
	sr := httptest.NewRequest(http.MethodGet, "/api/v1/crawl/status?agent_id=agent-1", nil)
	handler.HandleStatus(sw, sr)

	var status crawler.Status
	require.NoError(t, json.Unmarshal(decodeResponse(t, sw).Data, &status))
	assert.Equal(t, int64(0), status.Summary.Total)
}

func TestCrawlHandler_Status_RequiresAgentID(t *testing.T) {
	handler, _, _ := setupCrawlHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/crawl/status", nil)
	handler.HandleStatus(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
