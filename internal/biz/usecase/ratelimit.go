package usecase

import (
	"sync"
	"time"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// RateLimiter is the per-actor cooldown gate for command invocation.
// One cooldown is shared by every command.
type RateLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	return &RateLimiter{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether the actor may run a command at now.
// When rejected, the remaining wait is returned.
func (rl *RateLimiter) Allow(actorID string, privileged bool, now time.Time) (bool, time.Duration) {
	if privileged {
		return true, 0
	}
	key := domain.NormalizeID(actorID)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if last, ok := rl.last[key]; ok {
		if elapsed := now.Sub(last); elapsed < rl.cooldown {
			return false, rl.cooldown - elapsed
		}
	}
	rl.last[key] = now
	return true, 0
}

// CeilSeconds rounds a wait up to whole seconds
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
