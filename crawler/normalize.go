// =============================================================================
// 🔗 URL 归一化
// =============================================================================
package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL 归一化 URL：去掉 fragment 与尾部斜杠，主机名小写。
// `https://x.com` 与 `https://x.com/` 归一化后相同。
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

// SameSite 判断两个已归一化 URL 是否属于同一站点（主机名相同）
func SameSite(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}
