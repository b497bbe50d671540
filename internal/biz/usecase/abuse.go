package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// AbuseConfig configures the abuse detector
type AbuseConfig struct {
	BlockedPatterns []string
	SpamWindow      time.Duration
	SpamThreshold   int
	MaxWarnings     int
}

// AbuseDetector holds the burst windows and the warning ledger.
// Remediation is left to the caller.
type AbuseDetector struct {
	blocked     *regexp.Regexp
	window      time.Duration
	threshold   int
	maxWarnings int

	mu       sync.Mutex
	bursts   map[string][]time.Time
	warnings map[string]int
}

// NewAbuseDetector creates an abuse detector.
// Blocked patterns are literal substrings matched case-insensitively.
func NewAbuseDetector(cfg AbuseConfig) (*AbuseDetector, error) {
	d := &AbuseDetector{
		window:      cfg.SpamWindow,
		threshold:   cfg.SpamThreshold,
		maxWarnings: cfg.MaxWarnings,
		bursts:      make(map[string][]time.Time),
		warnings:    make(map[string]int),
	}

	var parts []string
	for _, p := range cfg.BlockedPatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(p))
	}
	if len(parts) > 0 {
		re, err := regexp.Compile("(?i)(" + strings.Join(parts, "|") + ")")
		if err != nil {
			return nil, fmt.Errorf("compile blocked patterns: %w", err)
		}
		d.blocked = re
	}
	return d, nil
}

// MaxWarnings returns the escalation ceiling
func (d *AbuseDetector) MaxWarnings() int {
	return d.maxWarnings
}

// CheckBlockedContent reports whether text contains blocked content
func (d *AbuseDetector) CheckBlockedContent(text string) bool {
	if d.blocked == nil || text == "" {
		return false
	}
	return d.blocked.MatchString(text)
}

// CheckBurst records a message at now and reports whether the actor
// exceeded the threshold within the spam window
func (d *AbuseDetector) CheckBurst(actorID string, now time.Time) bool {
	key := domain.NormalizeID(actorID)

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.window)
	kept := d.bursts[key][:0]
	for _, ts := range d.bursts[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	d.bursts[key] = kept

	return len(kept) > d.threshold
}

// ClearBurst forgets the actor's recent timestamps
func (d *AbuseDetector) ClearBurst(actorID string) {
	d.mu.Lock()
	delete(d.bursts, domain.NormalizeID(actorID))
	d.mu.Unlock()
}

// AddWarning increments the actor's warning count.
// escalate is true once the count reaches the maximum.
func (d *AbuseDetector) AddWarning(actorID string) (count int, escalate bool) {
	key := domain.NormalizeID(actorID)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.warnings[key]++
	count = d.warnings[key]
	return count, count >= d.maxWarnings
}

// Warnings returns the actor's current warning count
func (d *AbuseDetector) Warnings(actorID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.warnings[domain.NormalizeID(actorID)]
}

// ResetWarnings clears the actor's ledger entry
func (d *AbuseDetector) ResetWarnings(actorID string) {
	d.mu.Lock()
	delete(d.warnings, domain.NormalizeID(actorID))
	d.mu.Unlock()
}
