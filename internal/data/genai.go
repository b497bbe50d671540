package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// genaiRepo implements the generator over the Gemini API
type genaiRepo struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAIRepo creates a Gemini generator
func NewGenAIRepo(ctx context.Context, apiKey, model string) (repo.GeneratorRepo, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &genaiRepo{client: client, model: model, timeout: 30 * time.Second}, nil
}

func (r *genaiRepo) Name() string { return "gemini:" + r.model }

// Generate runs one content generation with the persona as system instruction
func (r *genaiRepo) Generate(ctx context.Context, p repo.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(p.UserText(), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{}
	if p.System != "" {
		config.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	resp, err := r.client.Models.GenerateContent(ctx, r.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return genaiText(resp)
}

// genaiText extracts the reply text, mapping refusals to *domain.BlockedError
func genaiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", domain.ErrEmptyGeneration
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", &domain.BlockedError{Reason: string(fb.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return "", domain.ErrEmptyGeneration
	}
	switch resp.Candidates[0].FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return "", &domain.BlockedError{Reason: string(resp.Candidates[0].FinishReason)}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", domain.ErrEmptyGeneration
	}
	return text, nil
}
