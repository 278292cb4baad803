package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/BaSui01/siteagent/types"
)

// LocalScraper fetches pages directly and converts the HTML to markdown.
// It is the default provider; no external service, no API key.
type LocalScraper struct {
	cfg    Config
	logger *zap.Logger
	client *http.Client
}

// NewLocalScraper creates a self-contained Scraper.
func NewLocalScraper(cfg Config, logger *zap.Logger) *LocalScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}

	return &LocalScraper{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "local_scraper")),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (s *LocalScraper) Name() string { return "local" }

// Scrape fetches the URL and converts the response body to markdown.
func (s *LocalScraper) Scrape(ctx context.Context, pageURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid url: %v", err)).WithCause(err)
	}
	req.Header.Set("User-Agent", "siteagent/1.0 (+https://github.com/BaSui01/siteagent)")
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrScrapeFailed, fmt.Sprintf("fetch failed: %v", err)).
			WithProvider("local").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, types.NewError(types.ErrRateLimited, "target site rate limited the crawler").
			WithProvider("local").
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(true)
	case resp.StatusCode >= 500:
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("target returned status %d", resp.StatusCode)).
			WithProvider("local").
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(true)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, types.NewError(types.ErrScrapeFailed, fmt.Sprintf("target returned status %d", resp.StatusCode)).
			WithProvider("local").
			WithHTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.NewError(types.ErrScrapeFailed, "failed to read response body").WithCause(err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, types.NewError(types.ErrScrapeFailed, "failed to parse html").WithCause(err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid base url: %v", err)).WithCause(err)
	}

	conv := &htmlConverter{base: base}
	conv.walk(doc)

	return &Result{
		Markdown: conv.markdown(),
		Title:    conv.title,
		Links:    conv.links,
	}, nil
}

// htmlConverter walks an HTML tree collecting title, links and a markdown
// rendering of the visible content.
type htmlConverter struct {
	base   *url.URL
	title  string
	links  []string
	blocks []string

	seen map[string]bool
}

func (c *htmlConverter) markdown() string {
	return strings.TrimSpace(strings.Join(c.blocks, "\n\n"))
}

func (c *htmlConverter) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg":
			return
		case "title":
			if c.title == "" && n.FirstChild != nil {
				c.title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		case "a":
			c.collectLink(n)
			// fall through so the anchor text still lands in the
			// surrounding block
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(n.Data[1] - '0')
			text := collapseSpace(textContent(n))
			if text != "" {
				c.blocks = append(c.blocks, strings.Repeat("#", level)+" "+text)
			}
			c.collectLinksIn(n)
			return
		case "p", "blockquote":
			text := collapseSpace(textContent(n))
			if text != "" {
				if n.Data == "blockquote" {
					text = "> " + text
				}
				c.blocks = append(c.blocks, text)
			}
			// 段落整体作为一个块输出，锚点单独收集
			c.collectLinksIn(n)
			return
		case "pre":
			text := strings.TrimRight(textContent(n), "\n")
			if strings.TrimSpace(text) != "" {
				c.blocks = append(c.blocks, "```\n"+text+"\n```")
			}
			c.collectLinksIn(n)
			return
		case "ul", "ol":
			c.collectList(n)
			return
		case "table":
			text := collapseSpace(textContent(n))
			if text != "" {
				c.blocks = append(c.blocks, text)
			}
			c.collectLinksIn(n)
			return
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child)
	}
}

func (c *htmlConverter) collectLink(n *html.Node) {
	for _, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		href := strings.TrimSpace(attr.Val)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		absolute := c.base.ResolveReference(ref)
		if absolute.Scheme != "http" && absolute.Scheme != "https" {
			continue
		}

		if c.seen == nil {
			c.seen = make(map[string]bool)
		}
		link := absolute.String()
		if !c.seen[link] {
			c.seen[link] = true
			c.links = append(c.links, link)
		}
	}
}

func (c *htmlConverter) collectList(n *html.Node) {
	var items []string
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "li" {
			// anchors inside list items still count as links
			c.collectLinksIn(child)
			text := collapseSpace(textContent(child))
			if text != "" {
				items = append(items, "- "+text)
			}
		}
	}
	if len(items) > 0 {
		c.blocks = append(c.blocks, strings.Join(items, "\n"))
	}
}

func (c *htmlConverter) collectLinksIn(n *html.Node) {
	if n.Type == html.ElementNode && n.Data == "a" {
		c.collectLink(n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.collectLinksIn(child)
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return ""
		case "br":
			return "\n"
		}
	}

	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(textContent(child))
	}
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
