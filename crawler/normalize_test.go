package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare domain", "https://x.com", "https://x.com"},
		{"trailing slash stripped", "https://x.com/", "https://x.com"},
		{"path trailing slash stripped", "https://x.com/docs/", "https://x.com/docs"},
		{"fragment stripped", "https://x.com/docs#section", "https://x.com/docs"},
		{"host lowercased", "https://X.Com/Docs", "https://x.com/Docs"},
		{"query preserved", "https://x.com/search?q=a", "https://x.com/search?q=a"},
		{"whitespace trimmed", "  https://x.com  ", "https://x.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL_Equivalence(t *testing.T) {
	a, err := NormalizeURL("https://x.com")
	require.NoError(t, err)
	b, err := NormalizeURL("https://x.com/")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://x.com/file", "not a url", "/relative/path"} {
		_, err := NormalizeURL(in)
		assert.Error(t, err, "input %q", in)
	}
}

// 归一化是幂等的：对输出再归一化不改变结果
func TestNormalizeURL_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		host := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9-]{0,10}\.(com|org|io)`).Draw(t, "host")
		path := rapid.StringMatching(`(/[a-zA-Z0-9_-]{0,8}){0,4}/?`).Draw(t, "path")
		fragment := rapid.StringMatching(`(#[a-zA-Z0-9]{0,6})?`).Draw(t, "fragment")

		raw := "https://" + host + path + fragment

		once, err := NormalizeURL(raw)
		if err != nil {
			t.Skip()
		}
		twice, err := NormalizeURL(once)
		if err != nil {
			t.Fatalf("normalized url %q failed to re-normalize: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
		if strings.Contains(once, "#") {
			t.Fatalf("fragment survived normalization: %q", once)
		}
		if strings.HasSuffix(once, "/") {
			t.Fatalf("trailing slash survived: %q", once)
		}
	})
}

func TestSameSite(t *testing.T) {
	assert.True(t, SameSite("https://x.com/docs", "https://x.com"))
	assert.True(t, SameSite("https://X.com", "https://x.COM/a"))
	assert.False(t, SameSite("https://x.com", "https://y.com"))
	assert.False(t, SameSite("https://x.com", "https://sub.x.com"))
}
