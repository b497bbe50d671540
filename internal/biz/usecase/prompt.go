package usecase

import (
	"strings"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// PromptConfig contains prompt configuration
type PromptConfig struct {
	SystemPrompt string // System prompt (persona)
	BotName      string

	// History truncation config
	MaxHistoryCount int // Max history messages to keep (0 = no limit)
	MaxPromptRunes  int // Budget for history plus question (0 = no limit)
	MaxLineRunes    int // Per-message cap inside history
}

// DefaultPromptConfig contains default prompt configuration
var DefaultPromptConfig = PromptConfig{
	SystemPrompt: `You are {{bot_name}}, a member of this chat. Reply in the language of the last message.
Keep answers short: one to three sentences unless asked for detail.
Output the reply text only, without prefixes such as "{{bot_name}}:".`,
	BotName:         "Warden",
	MaxHistoryCount: 15,
	MaxPromptRunes:  6000,
	MaxLineRunes:    300,
}

// PromptBuilder turns a transcript and a question into a bounded prompt
type PromptBuilder struct {
	cfg PromptConfig
}

// NewPromptBuilder creates a prompt builder
func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	return &PromptBuilder{cfg: cfg}
}

// Build produces the generator input
func (b *PromptBuilder) Build(history []domain.Message, question string) repo.Prompt {
	question = truncateRunes(question, b.cfg.MaxPromptRunes)
	kept := b.truncateHistory(history)

	budget := b.cfg.MaxPromptRunes - runeLen(question)
	if b.cfg.MaxPromptRunes > 0 {
		// drop oldest lines until the history fits the budget
		for len(kept) > 0 && historyRunes(kept) > budget {
			kept = kept[1:]
		}
	}

	return repo.Prompt{
		System:   strings.ReplaceAll(b.cfg.SystemPrompt, "{{bot_name}}", b.cfg.BotName),
		History:  kept,
		Question: question,
	}
}

// truncateHistory keeps the last N messages, clipping each line
func (b *PromptBuilder) truncateHistory(messages []domain.Message) []domain.Message {
	n := len(messages)
	if n == 0 {
		return nil
	}
	recent := b.cfg.MaxHistoryCount
	if recent <= 0 || recent > n {
		recent = n
	}

	out := make([]domain.Message, 0, recent)
	for _, m := range messages[n-recent:] {
		m.Text = truncateRunes(m.Text, b.cfg.MaxLineRunes)
		out = append(out, m)
	}
	return out
}

func historyRunes(ms []domain.Message) int {
	total := 0
	for i := range ms {
		total += runeLen(ms[i].Display()) + 1
	}
	return total
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
