package rag

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// 回退话术模板。生成服务在回退路径绝不会被调用，
// 回答由模板与最佳低置信线索拼装。
var fallbackTemplates = []string{
	"I don't have specific information about that on %s. Would you like me to help with something else?",
	"I'm not sure about that particular question. Is there something else about %s I can help you with?",
	"That's not something I have information on. Feel free to ask about anything else covered on %s.",
}

// FallbackAnswer 合成回退回答。
// 话术按问句哈希轮换（同一问句稳定拿到同一条），
// 有低置信线索时附带最相关的一条出处提示。
func FallbackAnswer(query, agentName, siteName string, best *ScoredChunk) string {
	if siteName == "" {
		siteName = "this site"
	}

	idx := queryBucket(query, len(fallbackTemplates))
	answer := fmt.Sprintf(fallbackTemplates[idx], siteName)

	if best != nil && strings.TrimSpace(best.Unit.Text) != "" {
		hint := best.Unit.PageTitle
		if hint == "" {
			hint = best.Unit.SourceURL
		}
		if hint != "" {
			answer += fmt.Sprintf(" The closest page I found was \"%s\", it might be worth a look.", hint)
		}
	}
	if agentName != "" {
		answer += fmt.Sprintf(" - %s", agentName)
	}

	return answer
}

// queryBucket 问句到桶的稳定映射
func queryBucket(query string, buckets int) int {
	if buckets <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(NormalizeQuery(query)))
	return int(h.Sum32() % uint32(buckets))
}
