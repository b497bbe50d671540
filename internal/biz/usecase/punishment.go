package usecase

import (
	"sync"
	"time"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// MuteLedger tracks time-boxed suppression of actors
type MuteLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMuteLedger creates a mute ledger
func NewMuteLedger() *MuteLedger {
	return &MuteLedger{entries: make(map[string]time.Time)}
}

// Mute suppresses the actor until the given time
func (m *MuteLedger) Mute(actorID string, until time.Time) {
	m.mu.Lock()
	m.entries[domain.NormalizeID(actorID)] = until
	m.mu.Unlock()
}

// Unmute lifts a mute; returns false if none was recorded
func (m *MuteLedger) Unmute(actorID string) bool {
	key := domain.NormalizeID(actorID)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok
}

// IsMuted reports whether the actor is muted at now.
// Expired records are deleted.
func (m *MuteLedger) IsMuted(actorID string, now time.Time) bool {
	key := domain.NormalizeID(actorID)
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.entries[key]
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	delete(m.entries, key)
	return false
}

// Active returns the unexpired mutes at now
func (m *MuteLedger) Active(now time.Time) map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time, len(m.entries))
	for k, until := range m.entries {
		if now.Before(until) {
			out[k] = until
		}
	}
	return out
}
