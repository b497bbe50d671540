package usecase

import (
	"sync"
	"time"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// VaultEntry is one captured view-once payload
type VaultEntry struct {
	Kind       domain.ContentKind
	Data       []byte
	MimeType   string
	Caption    string
	CapturedAt time.Time
}

// MediaVault keeps at most one captured payload per actor until it is
// revealed or it expires
type MediaVault struct {
	mu         sync.Mutex
	expiration time.Duration
	entries    map[string]VaultEntry
}

// NewMediaVault creates a media vault
func NewMediaVault(expiration time.Duration) *MediaVault {
	return &MediaVault{
		expiration: expiration,
		entries:    make(map[string]VaultEntry),
	}
}

// Capture stores the payload, replacing any previous one for the actor
func (v *MediaVault) Capture(actorID string, entry VaultEntry, now time.Time) {
	entry.CapturedAt = now
	v.mu.Lock()
	v.entries[domain.NormalizeID(actorID)] = entry
	v.mu.Unlock()
}

// Reveal returns and consumes the actor's payload.
// Expired entries are deleted and reported absent.
func (v *MediaVault) Reveal(actorID string, now time.Time) (VaultEntry, bool) {
	key := domain.NormalizeID(actorID)

	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[key]
	if !ok {
		return VaultEntry{}, false
	}
	delete(v.entries, key)
	if now.Sub(e.CapturedAt) > v.expiration {
		return VaultEntry{}, false
	}
	return e, true
}

// Sweep deletes every entry older than the expiration window
func (v *MediaVault) Sweep(now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	removed := 0
	for k, e := range v.entries {
		if now.Sub(e.CapturedAt) > v.expiration {
			delete(v.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries
func (v *MediaVault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}
