package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// openaiRepo implements the generator over any OpenAI-compatible endpoint
type openaiRepo struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIRepo creates an OpenAI-compatible generator.
// baseURL may be empty for the public endpoint.
func NewOpenAIRepo(apiKey, baseURL, model string) repo.GeneratorRepo {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &openaiRepo{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: 30 * time.Second,
	}
}

func (r *openaiRepo) Name() string { return "openai:" + r.model }

// Generate sends the prompt as one system and one user message
func (r *openaiRepo) Generate(ctx context.Context, p repo.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.UserText()})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.ErrEmptyGeneration
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", &domain.BlockedError{Reason: string(choice.FinishReason)}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", domain.ErrEmptyGeneration
	}
	return text, nil
}
