package rag

import (
	"regexp"
	"strings"
)

// QASuggestion 从页面内容归纳出的问答建议，供运营人工筛选后
// 作为 qa 类型检索单元入库
type QASuggestion struct {
	Question      string   `json:"question"`
	SourceContent string   `json:"source_content"`
	SourceURL     string   `json:"source_url"`
	Keywords      []string `json:"keywords"`
}

// questionTemplate 问题模板：命中关键词即产生建议
type questionTemplate struct {
	question string
	keywords *regexp.Regexp
	words    []string
}

var questionTemplates = []questionTemplate{
	{"What services do you offer?", regexp.MustCompile(`services`), []string{"services"}},
	{"What are your hours?", regexp.MustCompile(`hours|open|schedule`), []string{"hours", "open", "schedule"}},
	{"How can I contact you?", regexp.MustCompile(`contact|call|email|phone`), []string{"contact", "call", "email", "phone"}},
	{"Where are you located?", regexp.MustCompile(`location|address|area`), []string{"location", "address", "area"}},
	{"Do you offer emergency services?", regexp.MustCompile(`emergency|24|urgent`), []string{"emergency", "24", "urgent"}},
	{"What are your prices?", regexp.MustCompile(`price|cost|rate|fee`), []string{"price", "cost", "rate", "fee"}},
}

// ExtractQASuggestions 按关键词模板从页面正文提取问答建议。
// 每条建议附带最多三句命中关键词的原文句子。
func ExtractQASuggestions(markdown, sourceURL string) []QASuggestion {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	contentLower := strings.ToLower(markdown)
	sentences := splitSentences(markdown)

	var suggestions []QASuggestion
	for _, tmpl := range questionTemplates {
		if !tmpl.keywords.MatchString(contentLower) {
			continue
		}

		var relevant []string
		for _, sentence := range sentences {
			trimmed := strings.TrimSpace(sentence)
			if len(trimmed) > 20 && tmpl.keywords.MatchString(strings.ToLower(trimmed)) {
				relevant = append(relevant, trimmed)
				if len(relevant) == 3 {
					break
				}
			}
		}
		if len(relevant) == 0 {
			continue
		}

		suggestions = append(suggestions, QASuggestion{
			Question:      tmpl.question,
			SourceContent: strings.Join(relevant, " "),
			SourceURL:     sourceURL,
			Keywords:      tmpl.words,
		})
	}

	return suggestions
}
