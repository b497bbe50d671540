package service

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/biz/usecase"
	"github.com/devricklin/chatwarden/internal/conf"
	"github.com/devricklin/chatwarden/internal/infra/logger"
)

// Stage names the pipeline step that ended a message's run
type Stage string

const (
	StageRejected       Stage = "rejected"
	StageMuted          Stage = "muted"
	StageOverride       Stage = "override"
	StageInsult         Stage = "insult"
	StageBlockedContent Stage = "blocked_content"
	StageBurst          Stage = "burst"
	StageCommand        Stage = "command"
	StageAI             Stage = "ai"
	StageVault          Stage = "vault"
	StageReaction       Stage = "reaction"
	StageNone           Stage = "none"
	StageFailed         Stage = "failed"
)

const storeApologyWindow = time.Minute

// TransportResolver resolves the transport of an account key
type TransportResolver interface {
	Resolve(account string) (repo.Transport, error)
}

// Deps are the state managers and collaborators the pipeline drives
type Deps struct {
	Accounts    TransportResolver
	Normalizer  *usecase.Normalizer
	Limiter     *usecase.RateLimiter
	Abuse       *usecase.AbuseDetector
	Vault       *usecase.MediaVault
	Mutes       *usecase.MuteLedger
	Policies    *usecase.PolicyStore
	Registry    *usecase.CommandRegistry
	Transcript  *usecase.Transcript
	Progression *usecase.ProgressionUsecase
	Responder   *usecase.Responder // nil when no generator is configured
	Notifier    repo.NotifierRepo
	Locks       *usecase.KeyedMutex
	Scheduler   *Scheduler
}

// PipelineConfig contains pipeline configuration
type PipelineConfig struct {
	BotName       string
	Privileged    []string
	OverrideSigil string
	XPPerMessage  int
	PresenceHold  time.Duration
	VaultSweep    time.Duration
	Policy        *conf.PolicyConfig
}

// Pipeline is the ordered, short-circuiting interceptor chain every inbound
// message runs through
type Pipeline struct {
	Deps
	cfg        PipelineConfig
	texts      conf.MessageTemplates
	privileged map[string]bool
	insults    []*regexp.Regexp
	logger     *zap.Logger

	presenceMu     sync.Mutex
	presence       map[string]*usecase.PresenceDebouncer
	presenceClosed bool
	touches        sync.WaitGroup

	// one store-failure apology per conversation per window
	storeApologies *usecase.RateLimiter

	now  func() time.Time
	draw func() float64
}

// NewPipeline creates the pipeline and registers the built-in commands
func NewPipeline(deps Deps, cfg PipelineConfig, log *zap.Logger) (*Pipeline, error) {
	if cfg.Policy == nil {
		cfg.Policy = conf.DefaultPolicyConfig()
	}
	p := &Pipeline{
		Deps:           deps,
		cfg:            cfg,
		texts:          cfg.Policy.Messages,
		privileged:     make(map[string]bool, len(cfg.Privileged)),
		logger:         log.Named("pipeline"),
		presence:       make(map[string]*usecase.PresenceDebouncer),
		storeApologies: usecase.NewRateLimiter(storeApologyWindow),
		now:            time.Now,
		draw:           rand.Float64,
	}
	for _, id := range cfg.Privileged {
		p.privileged[domain.NormalizeID(id)] = true
	}
	for _, pat := range cfg.Policy.Insults.Patterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, fmt.Errorf("compile insult pattern %q: %w", pat, err)
		}
		p.insults = append(p.insults, re)
	}
	if err := p.registerBuiltins(); err != nil {
		return nil, err
	}
	if p.Scheduler != nil && cfg.VaultSweep > 0 {
		p.Scheduler.Every("vault-sweep", cfg.VaultSweep, p.sweepVault)
	}
	return p, nil
}

// SetClock replaces the time source
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// SetDraw replaces the random source used for reactions and canned replies
func (p *Pipeline) SetDraw(draw func() float64) {
	p.draw = draw
}

// IsPrivileged reports whether the actor is a configured operator
func (p *Pipeline) IsPrivileged(actorID string) bool {
	return p.privileged[domain.NormalizeID(actorID)]
}

// HandleBatch runs each event through the pipeline in order. A failing
// event never stops the rest of the batch.
func (p *Pipeline) HandleBatch(ctx context.Context, events []*domain.RawEvent) {
	for _, ev := range events {
		p.HandleEvent(ctx, ev)
	}
}

// HandleEvent normalizes one raw event and runs it
func (p *Pipeline) HandleEvent(ctx context.Context, ev *domain.RawEvent) Stage {
	c, reason := p.Normalizer.Normalize(ev)
	if reason != usecase.RejectNone {
		rejectedEvents.WithLabelValues(string(reason)).Inc()
		p.logger.Debug("event rejected", zap.String("reason", string(reason)))
		return StageRejected
	}
	t, err := p.Accounts.Resolve(c.Account)
	if err != nil {
		rejectedEvents.WithLabelValues("account").Inc()
		p.logger.Warn("no transport for event", zap.String("account", c.Account), zap.Error(err))
		return StageRejected
	}
	return p.Handle(ctx, t, c)
}

// Handle runs one Context through the stages and reports where it stopped
func (p *Pipeline) Handle(ctx context.Context, t repo.Transport, c *domain.Context) (stage Stage) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, t, c, "panic", fmt.Errorf("panic: %v", r))
			stage = StageFailed
		}
		pipelineExits.WithLabelValues(string(stage)).Inc()
	}()

	now := p.now()
	privileged := p.IsPrivileged(c.ActorID)
	isCommand := p.Registry.IsInvocation(c.Text)

	// 1. mute
	if p.Mutes.IsMuted(c.ActorID, now) {
		p.logger.Debug("muted actor dropped", zap.String("actor", c.ActorID))
		return StageMuted
	}

	var policy domain.GroupPolicy
	if c.IsGroup {
		policy = p.Policies.Get(c.ConversationID)
	}

	// 2. presence
	if c.IsGroup && policy.AIEnabled && p.Responder != nil && !isCommand && presenceWorthy(c) {
		p.touchPresence(t, c.ConversationID)
	}

	// 3. privileged override
	if privileged && p.cfg.OverrideSigil != "" && strings.HasPrefix(strings.TrimSpace(c.Text), p.cfg.OverrideSigil) {
		p.runOverride(ctx, t, c)
		return StageOverride
	}

	// 4. progression
	if c.Kind.Countable() && p.Progression != nil && p.cfg.XPPerMessage > 0 {
		p.award(ctx, t, c, c.ActorID, c.ActorName, p.cfg.XPPerMessage)
	}

	// 5. history
	p.Transcript.Append(c.ConversationID, domain.Message{
		ID:             c.MessageID,
		ConversationID: c.ConversationID,
		ActorID:        c.ActorID,
		ActorName:      c.ActorName,
		Text:           c.Text,
		Kind:           c.Kind,
		CreateTime:     createTime(c, now),
	})

	// 6. reactive insult
	if !c.IsGroup && p.matchesInsult(c.Text) {
		p.reply(ctx, t, c, p.pick(p.cfg.Policy.Insults.Retorts))
		return StageInsult
	}

	// 7. policy enforcement
	if c.IsGroup && !privileged {
		if s, handled := p.enforce(ctx, t, c, policy, isCommand, now); handled {
			return s
		}
	}

	// 8. command dispatch
	if isCommand {
		p.dispatchCommand(ctx, t, c, privileged, now)
		return StageCommand
	}

	// 9. generative response
	if p.Responder != nil && (!c.IsGroup || policy.AIEnabled) && c.Text != "" && c.Kind != domain.KindButtonReply {
		talkative := false
		if p.Progression != nil {
			prof, err := p.Progression.Profile(ctx, c.ActorID)
			if err != nil {
				p.fail(ctx, nil, c, "profile", err)
			} else {
				talkative = prof.Talkative
			}
		}
		if trig := p.Responder.Decide(c, t.SelfID(), privileged, talkative); trig != usecase.TriggerNone {
			p.logger.Debug("responding", zap.String("trigger", string(trig)), zap.String("chat", c.ConversationID))
			p.answer(ctx, t, c, c.Text, true)
			return StageAI
		}
	}

	// 10. residual content
	if a, ok := c.ViewOnceAttachment(); ok {
		p.captureViewOnce(ctx, t, c, a, now)
		return StageVault
	}
	if reactionEligible(c.Kind) && len(p.cfg.Policy.Reactions) > 0 && p.draw() < p.cfg.Policy.ReactionChance {
		if err := t.React(ctx, c, p.pick(p.cfg.Policy.Reactions)); err != nil {
			p.logger.Debug("react failed", zap.Error(err))
		}
		return StageReaction
	}
	return StageNone
}

// answer generates a reply to question and sends it, recording the reply
// in the transcript
func (p *Pipeline) answer(ctx context.Context, t repo.Transport, c *domain.Context, question string, useCache bool) {
	history := p.Transcript.Recent(c.ConversationID)
	if n := len(history); n > 0 && c.MessageID != "" && history[n-1].ID == c.MessageID {
		history = history[:n-1]
	}

	text, cached, err := p.Responder.Generate(ctx, history, question, useCache, p.now())
	if err != nil {
		outcome := "error"
		if usecase.IsExternalFailure(err) {
			outcome = "refused"
		}
		aiCalls.WithLabelValues(outcome).Inc()
		p.fail(ctx, t, c, "ai", err)
		return
	}
	if cached {
		aiCalls.WithLabelValues("cached").Inc()
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		aiCalls.WithLabelValues("generated").Inc()
		if useCache {
			cacheLookups.WithLabelValues("miss").Inc()
		}
	}

	id, err := t.Reply(ctx, c, text)
	if err != nil {
		p.logger.Warn("send reply failed", zap.String("chat", c.ConversationID), zap.Error(err))
		return
	}
	p.Transcript.Append(c.ConversationID, domain.Message{
		ID:             id,
		ConversationID: c.ConversationID,
		ActorID:        t.SelfID(),
		ActorName:      p.cfg.BotName,
		Text:           text,
		Kind:           domain.KindText,
		CreateTime:     p.now(),
		FromBot:        true,
	})
}

// award grants points and announces a level-up in groups
func (p *Pipeline) award(ctx context.Context, t repo.Transport, c *domain.Context, actorID, name string, points int) {
	res, err := p.Progression.Award(ctx, actorID, points)
	if err != nil {
		// an outage fails every message, so the apology is throttled
		var apologize repo.Transport
		if ok, _ := p.storeApologies.Allow(c.ConversationID, false, p.now()); ok {
			apologize = t
		}
		p.fail(ctx, apologize, c, "progression", err)
		return
	}
	if !res.LevelUp || !c.IsGroup {
		return
	}
	text := conf.Render(p.texts.LevelUp, map[string]string{
		"mention": mentionText(actorID, name),
		"name":    displayName(actorID, name),
		"level":   fmt.Sprint(res.Profile.Level),
		"title":   res.Profile.Title,
	})
	if _, err := t.SendText(ctx, c.ConversationID, text, []string{actorID}); err != nil {
		p.logger.Warn("level-up announce failed", zap.Error(err))
	}
}

func (p *Pipeline) captureViewOnce(ctx context.Context, t repo.Transport, c *domain.Context, a domain.Attachment, now time.Time) {
	data, err := t.DownloadMedia(ctx, c, a)
	if err != nil {
		p.logger.Debug("view-once download failed", zap.String("msg", c.MessageID), zap.Error(err))
		return
	}
	p.Vault.Capture(c.ActorID, usecase.VaultEntry{
		Kind:     mediaKind(a),
		Data:     data,
		MimeType: a.MimeType,
		Caption:  c.Text,
	}, now)
	vaultEntries.Set(float64(p.Vault.Len()))

	p.reply(ctx, t, c, conf.Render(p.texts.Captured, map[string]string{
		"name":   displayName(c.ActorID, c.ActorName),
		"prefix": p.Registry.Prefix(),
	}))
}

func (p *Pipeline) sweepVault(ctx context.Context, now time.Time) {
	if n := p.Vault.Sweep(now); n > 0 {
		p.logger.Debug("vault sweep", zap.Int("expired", n))
	}
	vaultEntries.Set(float64(p.Vault.Len()))
}

// fail reports a stage failure: apology to the user, detail to moderators
func (p *Pipeline) fail(ctx context.Context, t repo.Transport, c *domain.Context, stage string, err error) {
	handlerFailures.WithLabelValues(stage).Inc()
	p.logger.Error("stage failed",
		zap.String("stage", stage),
		zap.String("chat", c.ConversationID),
		zap.String("actor", c.ActorID),
		zap.String("text", logger.Truncate(c.Text, 50)),
		zap.Error(err))
	if p.Notifier != nil {
		p.Notifier.Notify(ctx, fmt.Sprintf("[%s] %s in %s: %v", stage, c.ActorID, c.ConversationID, err))
	}
	if t != nil {
		p.reply(ctx, t, c, p.pick(p.cfg.Policy.Apologies))
	}
}

func (p *Pipeline) reply(ctx context.Context, t repo.Transport, c *domain.Context, text string) {
	if text == "" {
		return
	}
	if _, err := t.Reply(ctx, c, text); err != nil {
		p.logger.Warn("reply failed", zap.String("chat", c.ConversationID), zap.Error(err))
	}
}

func (p *Pipeline) matchesInsult(text string) bool {
	for _, re := range p.insults {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (p *Pipeline) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	i := int(p.draw() * float64(len(options)))
	if i >= len(options) {
		i = len(options) - 1
	}
	return options[i]
}

// touchPresence emits typing off the pipeline's path. Nothing is armed
// once the pipeline is closed.
func (p *Pipeline) touchPresence(t repo.Transport, conversationID string) {
	p.presenceMu.Lock()
	defer p.presenceMu.Unlock()
	if p.presenceClosed {
		return
	}
	d := p.debouncerLocked(t)
	p.touches.Add(1)
	go func() {
		defer p.touches.Done()
		d.Touch(conversationID)
	}()
}

func (p *Pipeline) debouncerLocked(t repo.Transport) *usecase.PresenceDebouncer {
	d, ok := p.presence[t.Account()]
	if !ok {
		log := p.logger.Named("presence")
		d = usecase.NewPresenceDebouncer(p.cfg.PresenceHold, func(conversationID string, state repo.PresenceState) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := t.SetPresence(ctx, conversationID, state); err != nil {
				log.Debug("set presence failed", zap.String("chat", conversationID), zap.Error(err))
			}
		})
		p.presence[t.Account()] = d
	}
	return d
}

// CancelPresence cancels every armed typing timer of the account without
// emitting "paused"
func (p *Pipeline) CancelPresence(account string) {
	p.presenceMu.Lock()
	d := p.presence[account]
	p.presenceMu.Unlock()
	if d != nil {
		d.CancelAll()
	}
}

// Close stops every presence debouncer for good, waits for typing
// signals under way and releases the AI budget
func (p *Pipeline) Close() {
	p.presenceMu.Lock()
	p.presenceClosed = true
	debouncers := make([]*usecase.PresenceDebouncer, 0, len(p.presence))
	for _, d := range p.presence {
		debouncers = append(debouncers, d)
	}
	p.presenceMu.Unlock()

	for _, d := range debouncers {
		d.Close()
	}
	p.touches.Wait()
	if p.Responder != nil {
		p.Responder.Close()
	}
}

func presenceWorthy(c *domain.Context) bool {
	switch c.Kind {
	case domain.KindText:
		return c.Text != ""
	case domain.KindImage, domain.KindVideo, domain.KindSticker:
		return true
	}
	return false
}

func reactionEligible(k domain.ContentKind) bool {
	return k == domain.KindSticker || k == domain.KindImage
}

func mediaKind(a domain.Attachment) domain.ContentKind {
	if a.Kind != domain.KindViewOnce && a.Kind != "" {
		return a.Kind
	}
	switch {
	case strings.HasPrefix(a.MimeType, "image/"):
		return domain.KindImage
	case strings.HasPrefix(a.MimeType, "video/"):
		return domain.KindVideo
	case strings.HasPrefix(a.MimeType, "audio/"):
		return domain.KindAudio
	}
	return domain.KindFile
}

func createTime(c *domain.Context, now time.Time) time.Time {
	if c.CreateTime > 0 {
		return time.UnixMilli(c.CreateTime)
	}
	return now
}

func mentionText(actorID, name string) string {
	return "@" + displayName(actorID, name)
}

func displayName(actorID, name string) string {
	if name != "" {
		return name
	}
	return actorID
}
