package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultChatModel       = "gpt-4o-mini"
	DefaultChatMaxTokens   = 500
	DefaultChatTemperature = 0.7
	// DefaultChatHTTPTimeout caps a completion request even when the caller's
	// context has no deadline.
	DefaultChatHTTPTimeout = 60 * time.Second
)

// ErrNoChoices is returned when the model answers with no completion.
var ErrNoChoices = errors.New("chat completion returned no choices")

// ChatAPI is the subset of the go-openai client used for replies.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClient produces support replies from a system prompt and conversation.
type ChatClient struct {
	api         ChatAPI
	model       string
	maxTokens   int
	temperature float32
}

func NewChatClient(apiKey, model string) *ChatClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: DefaultChatHTTPTimeout}
	return NewChatClientWithAPI(openai.NewClientWithConfig(cfg), model)
}

func NewChatClientWithAPI(api ChatAPI, model string) *ChatClient {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{
		api:         api,
		model:       model,
		maxTokens:   DefaultChatMaxTokens,
		temperature: DefaultChatTemperature,
	}
}

// Complete sends the system prompt, prior turns and the new user message.
func (c *ChatClient) Complete(ctx context.Context, system string, history []domain.ChatMessage, message string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            c.model,
		Messages:         messages,
		MaxTokens:        c.maxTokens,
		Temperature:      c.temperature,
		PresencePenalty:  0.6,
		FrequencyPenalty: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
