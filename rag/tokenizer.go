package rag

import (
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 分词器接口，分块时用于估算 token 预算
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer 基于 tiktoken 编码的分词器
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

// NewTiktokenTokenizer 创建 tiktoken 分词器。
// model 为空或未知时回退到 cl100k_base 编码。
func NewTiktokenTokenizer(model string, logger *zap.Logger) (*TiktokenTokenizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var enc *tiktoken.Tiktoken
	var err error
	if model != "" {
		enc, err = tiktoken.EncodingForModel(model)
	}
	if model == "" || err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return nil, err
	}

	return &TiktokenTokenizer{encoding: enc, logger: logger}, nil
}

// CountTokens 返回文本的 token 数
func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// EstimatorTokenizer 无需外部编码数据的估算分词器。
// CJK 字符约 1 字符/token，其余约 4 字符/token。
type EstimatorTokenizer struct{}

// CountTokens 估算文本的 token 数
func (t EstimatorTokenizer) CountTokens(text string) int {
	cjk := 0
	other := 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		} else {
			other++
		}
	}

	count := cjk + other/4
	if count == 0 && len(text) > 0 {
		count = 1
	}
	return count
}

// NewTokenizer 创建分词器：tiktoken 可用则使用，否则回退到估算器
func NewTokenizer(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}

	tok, err := NewTiktokenTokenizer(model, logger)
	if err != nil {
		logger.Warn("tiktoken unavailable, falling back to estimator", zap.Error(err))
		return &EstimatorTokenizer{}
	}
	return tok
}
