package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// Trigger names the rule that made the bot answer
type Trigger string

const (
	TriggerNone       Trigger = ""
	TriggerAlways     Trigger = "always"
	TriggerMention    Trigger = "mention"
	TriggerQuote      Trigger = "quote"
	TriggerName       Trigger = "name"
	TriggerHandle     Trigger = "handle"
	TriggerRandomDraw Trigger = "random"
)

// ResponderConfig configures the generative-response decision
type ResponderConfig struct {
	BaseProbability float64
	PrivilegedBoost float64
	TalkativeBoost  float64
	AlwaysRespond   bool
	NamePatterns    []string
	Handle          string
	CallsPerMinute  int64
}

// Responder decides whether to answer and produces generated replies
type Responder struct {
	gen     repo.GeneratorRepo
	prompts *PromptBuilder
	cache   *ResponseCache
	budget  *slidingwindow.Limiter
	stop    slidingwindow.StopFunc
	names   []*regexp.Regexp
	cfg     ResponderConfig
	draw    func() float64
}

// NewResponder creates a responder
func NewResponder(gen repo.GeneratorRepo, prompts *PromptBuilder, cache *ResponseCache, cfg ResponderConfig) (*Responder, error) {
	if prompts == nil {
		prompts = NewPromptBuilder(DefaultPromptConfig)
	}
	r := &Responder{
		gen:     gen,
		prompts: prompts,
		cache:   cache,
		cfg:     cfg,
		draw:    rand.Float64,
	}
	for _, p := range cfg.NamePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile name pattern %q: %w", p, err)
		}
		r.names = append(r.names, re)
	}
	if cfg.CallsPerMinute > 0 {
		lim, stop := slidingwindow.NewLimiter(time.Minute, cfg.CallsPerMinute, func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
		r.budget, r.stop = lim, stop
	}
	return r, nil
}

// SetDraw replaces the random source used for the probabilistic trigger
func (r *Responder) SetDraw(draw func() float64) {
	r.draw = draw
}

// Close releases the budget limiter
func (r *Responder) Close() {
	if r.stop != nil {
		r.stop()
	}
}

// Decide evaluates the trigger rules in order; the first match wins
func (r *Responder) Decide(c *domain.Context, selfID string, privileged, talkative bool) Trigger {
	if !c.IsGroup || r.cfg.AlwaysRespond {
		return TriggerAlways
	}
	self := domain.NormalizeID(selfID)
	if self != "" && c.Mentioned(self) {
		return TriggerMention
	}
	if self != "" && c.ReplyTarget != nil && c.ReplyTarget.AuthorID == self {
		return TriggerQuote
	}
	for _, re := range r.names {
		if re.MatchString(c.Text) {
			return TriggerName
		}
	}
	if r.cfg.Handle != "" && strings.Contains(c.Text, "@"+r.cfg.Handle) {
		return TriggerHandle
	}

	p := r.cfg.BaseProbability
	if privileged {
		p += r.cfg.PrivilegedBoost
	}
	if talkative {
		p += r.cfg.TalkativeBoost
	}
	if r.draw() < p {
		return TriggerRandomDraw
	}
	return TriggerNone
}

// Generate answers question with history as context.
// When useCache is set, answers are memoized by normalized question.
func (r *Responder) Generate(ctx context.Context, history []domain.Message, question string, useCache bool, now time.Time) (string, bool, error) {
	key := CacheKey(question)
	if useCache && r.cache != nil && key != "" {
		if v, ok := r.cache.Get(key, now); ok {
			return v, true, nil
		}
	}

	if r.budget != nil && !r.budget.AllowN(now, 1) {
		return "", false, domain.ErrRateLimited
	}

	text, err := r.gen.Generate(ctx, r.prompts.Build(history, question))
	if err != nil {
		return "", false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false, domain.ErrEmptyGeneration
	}

	if useCache && r.cache != nil && key != "" {
		r.cache.Set(key, text, now)
	}
	return text, false, nil
}

// IsExternalFailure reports whether err came from the generative service
func IsExternalFailure(err error) bool {
	return errors.Is(err, domain.ErrBlocked) ||
		errors.Is(err, domain.ErrEmptyGeneration) ||
		errors.Is(err, domain.ErrRateLimited)
}
