// Package scrape provides the scraping collaborator used by the crawl
// orchestrator. A Scraper turns a URL into markdown content plus the
// internal links discovered on the page.
package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of scraping a single URL.
type Result struct {
	// Markdown content of the page.
	Markdown string `json:"markdown"`

	// Title extracted from the page, may be empty.
	Title string `json:"title"`

	// Links found on the page, absolute URLs. The caller decides which
	// ones are same-site and worth enqueueing.
	Links []string `json:"links"`
}

// Scraper fetches a page and converts it to markdown.
type Scraper interface {
	// Scrape fetches the URL. Rate limiting from the upstream service is
	// reported as a types.ErrRateLimited error so the caller can halt.
	Scrape(ctx context.Context, url string) (*Result, error)

	// Name returns the provider name for logging.
	Name() string
}

// Config selects and configures the scraping provider.
type Config struct {
	// Provider: "firecrawl" or "local".
	Provider string `yaml:"provider" json:"provider"`

	// APIKey for hosted providers.
	APIKey string `yaml:"api_key" json:"api_key"`

	// BaseURL overrides the provider endpoint (tests, self-hosted).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timeout per page fetch.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// New builds a Scraper for the configured provider.
func New(cfg Config, logger *zap.Logger) (Scraper, error) {
	switch cfg.Provider {
	case "firecrawl":
		return NewFirecrawlScraper(cfg, logger), nil
	case "local", "":
		return NewLocalScraper(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported scrape provider: %s", cfg.Provider)
	}
}
