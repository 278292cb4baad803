package rag

import (
	"fmt"
	"strings"
)

// 查询意图
type Intent string

const (
	IntentGreeting     Intent = "greeting"      // 问候
	IntentFarewell     Intent = "farewell"      // 道别
	IntentChitchat     Intent = "chitchat"      // 闲聊
	IntentWebsiteQuery Intent = "website_query" // 站点知识问题
)

// RouterResult 路由结果。命中短路意图时带有现成回复，
// 后续检索与生成全部跳过。
type RouterResult struct {
	Intent         Intent `json:"intent"`
	DirectResponse string `json:"direct_response,omitempty"`
}

// ShortCircuit 是否短路（无需检索与生成）
func (r RouterResult) ShortCircuit() bool {
	return r.Intent != IntentWebsiteQuery
}

// Router 查询路由器。前缀匹配，优先级
// greeting > farewell > chitchat，都不命中则视为站点问题。
type Router struct {
	greetingPrefixes []string
	farewellPrefixes []string
	chitchatPrefixes []string
}

// NewRouter 创建路由器
func NewRouter() *Router {
	return &Router{
		greetingPrefixes: []string{
			"hi", "hello", "hey", "yo", "hiya", "howdy",
			"good morning", "good afternoon", "good evening",
			"你好", "您好", "嗨",
		},
		farewellPrefixes: []string{
			"bye", "goodbye", "good bye", "see you", "see ya",
			"farewell", "good night", "再见", "拜拜",
		},
		chitchatPrefixes: []string{
			"how are you", "how's it going", "hows it going",
			"who are you", "what are you", "what can you do",
			"what's up", "whats up", "thank you", "thanks",
			"你是谁", "谢谢",
		},
	}
}

// Route 路由一条查询。匹配在去空白、小写化后的文本上按前缀进行，
// 第一个命中的意图生效。
func (r *Router) Route(query, agentName string) RouterResult {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = strings.TrimRight(normalized, "!！.。?？~ ")

	switch {
	case matchesPrefix(normalized, r.greetingPrefixes):
		return RouterResult{
			Intent: IntentGreeting,
			DirectResponse: fmt.Sprintf(
				"Hi! I'm %s. Ask me anything about this site and I'll do my best to help.",
				agentName),
		}
	case matchesPrefix(normalized, r.farewellPrefixes):
		return RouterResult{
			Intent: IntentFarewell,
			DirectResponse: fmt.Sprintf(
				"Goodbye! Feel free to come back whenever you have more questions. %s is always here.",
				agentName),
		}
	case matchesPrefix(normalized, r.chitchatPrefixes):
		return RouterResult{
			Intent: IntentChitchat,
			DirectResponse: fmt.Sprintf(
				"I'm %s, a site assistant. I answer questions based on this website's content. Try asking about its products, docs, or policies.",
				agentName),
		}
	default:
		return RouterResult{Intent: IntentWebsiteQuery}
	}
}

// matchesPrefix 前缀命中：完全相等，或前缀后跟分隔符
func matchesPrefix(query string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if query == prefix {
			return true
		}
		if strings.HasPrefix(query, prefix) {
			rest := query[len(prefix):]
			if strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, ",") ||
				strings.HasPrefix(rest, "，") {
				return true
			}
		}
	}
	return false
}
