package usecase

import (
	"sync"
	"time"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// PresenceEmitFunc delivers a typing state to a conversation
type PresenceEmitFunc func(conversationID string, state repo.PresenceState)

type presenceTimer struct {
	conversationID string
	timer          *time.Timer
}

// PresenceDebouncer coalesces typing indicators per conversation
type PresenceDebouncer struct {
	hold time.Duration
	emit PresenceEmitFunc

	mu       sync.Mutex
	timers   map[string]*presenceTimer
	closed   bool
	inflight sync.WaitGroup
}

// NewPresenceDebouncer creates a presence debouncer
func NewPresenceDebouncer(hold time.Duration, emit PresenceEmitFunc) *PresenceDebouncer {
	return &PresenceDebouncer{
		hold:   hold,
		emit:   emit,
		timers: make(map[string]*presenceTimer),
	}
}

// Touch emits "composing" if the conversation is idle and arms the stop
// timer; an armed timer is extended without re-emitting. It reports false
// once the debouncer is closed.
func (p *PresenceDebouncer) Touch(conversationID string) bool {
	key := domain.NormalizeID(conversationID)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	existing, armed := p.timers[key]
	if armed {
		existing.timer.Stop()
	}
	pt := &presenceTimer{conversationID: conversationID}
	pt.timer = time.AfterFunc(p.hold, func() { p.fire(key, pt) })
	p.timers[key] = pt
	if !armed {
		p.inflight.Add(1)
	}
	p.mu.Unlock()

	if !armed {
		defer p.inflight.Done()
		p.emit(conversationID, repo.PresenceComposing)
	}
	return true
}

func (p *PresenceDebouncer) fire(key string, pt *presenceTimer) {
	p.mu.Lock()
	if p.closed || p.timers[key] != pt {
		// replaced by a later Touch or cancelled
		p.mu.Unlock()
		return
	}
	delete(p.timers, key)
	p.inflight.Add(1)
	p.mu.Unlock()

	defer p.inflight.Done()
	p.emit(pt.conversationID, repo.PresencePaused)
}

// Pending reports whether a stop timer is armed for the conversation
func (p *PresenceDebouncer) Pending(conversationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[domain.NormalizeID(conversationID)]
	return ok
}

// CancelAll disarms every timer without emitting "paused". Later touches
// arm new timers.
func (p *PresenceDebouncer) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

// Close disarms every timer, refuses further touches and waits for
// emissions already under way
func (p *PresenceDebouncer) Close() {
	p.mu.Lock()
	p.closed = true
	p.cancelLocked()
	p.mu.Unlock()
	p.inflight.Wait()
}

func (p *PresenceDebouncer) cancelLocked() {
	for k, pt := range p.timers {
		pt.timer.Stop()
		delete(p.timers, k)
	}
}
