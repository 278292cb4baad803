// Package generation 实现基于 OpenAI 兼容 Chat Completions API 的回答生成.
package generation

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

	"github.com/BaSui01/siteagent/rag"
	"github.com/BaSui01/siteagent/types"
)

// Config 生成提供者配置
type Config struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float32       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Provider 回答生成提供者，对接任意 OpenAI 兼容端点
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewProvider 创建生成提供者
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "generation")),
	}
}

func (p *Provider) Name() string { return "openai-generation" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate 基于检索证据生成回答
func (p *Provider) Generate(ctx context.Context, req rag.GenerationRequest) (*rag.GenerationResult, error) {
	if len(req.Chunks) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "generation requires at least one chunk")
	}

	start := time.Now()

	body := chatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    buildMessages(req),
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &types.Error{
			Code:       types.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, mapHTTPError(resp.StatusCode, string(msg), p.Name())
	}

	var ccResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ccResp); err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "failed to decode completion response").WithCause(err)
	}
	if len(ccResp.Choices) == 0 || strings.TrimSpace(ccResp.Choices[0].Message.Content) == "" {
		return nil, types.NewError(types.ErrGenerationFailed, "completion returned no content").WithProvider(p.Name())
	}

	return &rag.GenerationResult{
		Answer:    strings.TrimSpace(ccResp.Choices[0].Message.Content),
		TokensIn:  ccResp.Usage.PromptTokens,
		TokensOut: ccResp.Usage.CompletionTokens,
		TimeMs:    time.Since(start).Milliseconds(),
	}, nil
}

// buildMessages 组装对话消息：系统提示携带检索证据，
// 其后是截断的会话历史，最后是当前问句
func buildMessages(req rag.GenerationRequest) []chatMessage {
	messages := make([]chatMessage, 0, len(req.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: buildSystemPrompt(req)})

	// 只保留最近 6 条历史，避免撑爆上下文
	history := req.History
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	for _, msg := range history {
		role := msg.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, chatMessage{Role: role, Content: msg.Content})
	}

	messages = append(messages, chatMessage{Role: "user", Content: req.Query})
	return messages
}

func buildSystemPrompt(req rag.GenerationRequest) string {
	var sb strings.Builder

	name := req.AgentName
	if name == "" {
		name = "the site assistant"
	}

	fmt.Fprintf(&sb, "You are %s, a helpful assistant answering visitor questions about this website.\n", name)
	sb.WriteString("Answer using ONLY the website content below. ")
	sb.WriteString("If the content does not cover the question, say you don't have that information. ")
	sb.WriteString("Keep answers short and conversational.\n\n")
	sb.WriteString("Website content:\n")

	for i, chunk := range req.Chunks {
		fmt.Fprintf(&sb, "\n[%d] (source: %s)\n%s\n", i+1, chunk.Unit.SourceURL, chunk.Unit.Text)
	}

	return sb.String()
}

// mapHTTPError 把 HTTP 状态映射为 types.Error
func mapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	}

	return &types.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}
