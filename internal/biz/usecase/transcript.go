package usecase

import (
	"sync"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// Transcript keeps a bounded rolling history per conversation
type Transcript struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]domain.Message
}

// NewTranscript creates a transcript holding at most limit messages per conversation
func NewTranscript(limit int) *Transcript {
	if limit < 1 {
		limit = 1
	}
	return &Transcript{
		limit:   limit,
		entries: make(map[string][]domain.Message),
	}
}

// Append adds a message, dropping the oldest past the limit
func (t *Transcript) Append(conversationID string, msg domain.Message) {
	key := domain.NormalizeID(conversationID)

	t.mu.Lock()
	defer t.mu.Unlock()

	list := append(t.entries[key], msg)
	if over := len(list) - t.limit; over > 0 {
		list = append([]domain.Message(nil), list[over:]...)
	}
	t.entries[key] = list
}

// Recent returns a copy of the conversation's history, oldest first
func (t *Transcript) Recent(conversationID string) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	src := t.entries[domain.NormalizeID(conversationID)]
	out := make([]domain.Message, len(src))
	copy(out, src)
	return out
}
