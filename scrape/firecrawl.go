package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/types"
)

// FirecrawlScraper implements Scraper using the Firecrawl REST API.
type FirecrawlScraper struct {
	cfg    Config
	logger *zap.Logger
	client *http.Client
}

// NewFirecrawlScraper creates a Firecrawl-backed Scraper.
func NewFirecrawlScraper(cfg Config, logger *zap.Logger) *FirecrawlScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.firecrawl.dev"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &FirecrawlScraper{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "firecrawl_scraper")),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (s *FirecrawlScraper) Name() string { return "firecrawl" }

// Scrape fetches the URL through Firecrawl's /v1/scrape endpoint.
func (s *FirecrawlScraper) Scrape(ctx context.Context, pageURL string) (*Result, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "firecrawl api_key is required")
	}

	req := struct {
		URL     string   `json:"url"`
		Formats []string `json:"formats"`
	}{
		URL:     pageURL,
		Formats: []string{"markdown", "links"},
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Markdown string   `json:"markdown"`
			Links    []string `json:"links"`
			Metadata struct {
				Title      string `json:"title"`
				StatusCode int    `json:"statusCode"`
			} `json:"metadata"`
		} `json:"data"`
		Error string `json:"error,omitempty"`
	}

	if err := s.doJSON(ctx, http.MethodPost, "/v1/scrape", req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "firecrawl reported failure without detail"
		}
		return nil, types.NewError(types.ErrScrapeFailed, msg).WithProvider("firecrawl")
	}

	return &Result{
		Markdown: resp.Data.Markdown,
		Title:    resp.Data.Metadata.Title,
		Links:    resp.Data.Links,
	}, nil
}

func (s *FirecrawlScraper) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.cfg.BaseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrUpstreamError, fmt.Sprintf("firecrawl request failed: %v", err)).
			WithProvider("firecrawl").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return s.mapHTTPError(resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// mapHTTPError translates Firecrawl HTTP failures into structured errors.
// 429 is the signal the crawl orchestrator uses to halt the whole crawl.
func (s *FirecrawlScraper) mapHTTPError(status int, body string) error {
	msg := fmt.Sprintf("firecrawl returned status %d: %s", status, truncate(body, 256))

	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithProvider("firecrawl").
			WithHTTPStatus(status).
			WithRetryable(true)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrUnauthorized, msg).
			WithProvider("firecrawl").
			WithHTTPStatus(status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrTimeout, msg).
			WithProvider("firecrawl").
			WithHTTPStatus(status).
			WithRetryable(true)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).
			WithProvider("firecrawl").
			WithHTTPStatus(status).
			WithRetryable(true)
	default:
		return types.NewError(types.ErrScrapeFailed, msg).
			WithProvider("firecrawl").
			WithHTTPStatus(status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
