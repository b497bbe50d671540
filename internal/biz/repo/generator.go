package repo

import (
	"context"
	"strings"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// Prompt is the input of one generation
type Prompt struct {
	System   string
	History  []domain.Message
	Question string
}

// UserText renders history and question as the user turn of a
// single-exchange chat request
func (p Prompt) UserText() string {
	var sb strings.Builder
	if len(p.History) > 0 {
		sb.WriteString("[Recent chat messages - for reference]\n")
		for i := range p.History {
			sb.WriteString(p.History[i].Display())
			sb.WriteByte('\n')
		}
		sb.WriteString("\n---\n\n")
	}
	sb.WriteString("[Current message]\n")
	sb.WriteString(p.Question)
	return sb.String()
}

// GeneratorRepo is the generative-text service interface
type GeneratorRepo interface {
	// Generate returns the reply text
	// Returns *domain.BlockedError when the service refuses, domain.ErrEmptyGeneration on empty output
	Generate(ctx context.Context, p Prompt) (string, error)

	// Name identifies the backend in logs and metrics
	Name() string
}
