package processors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videoInsight/core"
)

// CompletionOptions 单次补全的采样参数
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ChatModel 聊天补全接口
type ChatModel interface {
	Complete(ctx context.Context, messages []core.ChatMessage, opts CompletionOptions) (string, error)
}

// OpenAIChatModel OpenAI 兼容接口（Groq 等）
type OpenAIChatModel struct {
	cli *openai.Client
}

func NewOpenAIChatModel(apiKey, baseURL string) *OpenAIChatModel {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIChatModel{cli: openai.NewClientWithConfig(clientConfig)}
}

func (m *OpenAIChatModel) Complete(ctx context.Context, messages []core.ChatMessage, opts CompletionOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: temperature(opts.Temperature),
		TopP:        opts.TopP,
	}

	resp, err := m.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// temperature 字段带 omitempty，0 会被省略，用最小正数代替
func temperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func toOpenAIMessages(messages []core.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case core.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case core.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
