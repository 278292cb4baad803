package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// 🧪 路由器测试
// =============================================================================

func TestRouter_Greeting(t *testing.T) {
	r := NewRouter()

	for _, q := range []string{"Hi", "hello", "  HEY  ", "Good morning", "hi there", "hello!", "你好"} {
		result := r.Route(q, "Ava")
		assert.Equal(t, IntentGreeting, result.Intent, "query %q", q)
		assert.True(t, result.ShortCircuit())
		assert.Contains(t, result.DirectResponse, "Ava")
	}
}

func TestRouter_Farewell(t *testing.T) {
	r := NewRouter()

	for _, q := range []string{"bye", "Goodbye", "see you later", "再见"} {
		result := r.Route(q, "Ava")
		assert.Equal(t, IntentFarewell, result.Intent, "query %q", q)
		assert.NotEmpty(t, result.DirectResponse)
	}
}

func TestRouter_Chitchat(t *testing.T) {
	r := NewRouter()

	for _, q := range []string{"how are you", "Who are you?", "what can you do", "thanks"} {
		result := r.Route(q, "Ava")
		assert.Equal(t, IntentChitchat, result.Intent, "query %q", q)
	}
}

func TestRouter_WebsiteQuery(t *testing.T) {
	r := NewRouter()

	queries := []string{
		"What is your pricing?",
		"history of the company", // "hi" 前缀不应误判
		"how are your invoices generated",
		"byproducts of the process",
		"Where can I download the installer?",
	}
	for _, q := range queries {
		result := r.Route(q, "Ava")
		assert.Equal(t, IntentWebsiteQuery, result.Intent, "query %q", q)
		assert.Empty(t, result.DirectResponse)
		assert.False(t, result.ShortCircuit())
	}
}

// 问候优先于闲聊：同时命中时第一优先级生效
func TestRouter_PriorityGreetingOverChitchat(t *testing.T) {
	r := NewRouter()

	result := r.Route("hey, how are you", "Ava")
	assert.Equal(t, IntentGreeting, result.Intent)
}

func TestRouter_EmptyQuery(t *testing.T) {
	r := NewRouter()
	result := r.Route("   ", "Ava")
	assert.Equal(t, IntentWebsiteQuery, result.Intent)
}
