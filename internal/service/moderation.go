package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/conf"
)

// enforce runs the abuse checks under the actor's lock. Blocked content is
// checked first; burst frequency only for non-command messages.
func (p *Pipeline) enforce(ctx context.Context, t repo.Transport, c *domain.Context, policy domain.GroupPolicy, isCommand bool, now time.Time) (Stage, bool) {
	unlock := p.Locks.Lock("abuse:" + c.ActorID)
	defer unlock()

	if policy.LinkProtectionEnabled && p.Abuse.CheckBlockedContent(c.Text) {
		p.remediateBlocked(ctx, t, c)
		return StageBlockedContent, true
	}
	if policy.SpamFilterEnabled && !isCommand && p.Abuse.CheckBurst(c.ActorID, now) {
		p.remediateBurst(ctx, t, c)
		return StageBurst, true
	}
	return "", false
}

// remediateBlocked warns the actor and deletes the message; at the warning
// ceiling the actor is removed and the ledger entry cleared
func (p *Pipeline) remediateBlocked(ctx context.Context, t repo.Transport, c *domain.Context) {
	count, escalate := p.Abuse.AddWarning(c.ActorID)
	warningsIssued.Inc()
	p.logger.Info("blocked content",
		zap.String("chat", c.ConversationID),
		zap.String("actor", c.ActorID),
		zap.Int("warnings", count))

	warning := conf.Render(p.texts.Warning, map[string]string{
		"mention": mentionText(c.ActorID, c.ActorName),
		"name":    displayName(c.ActorID, c.ActorName),
		"count":   fmt.Sprint(count),
		"max":     fmt.Sprint(p.Abuse.MaxWarnings()),
	})
	if _, err := t.SendText(ctx, c.ConversationID, warning, []string{c.ActorID}); err != nil {
		p.logger.Warn("send warning failed", zap.Error(err))
	}
	if err := t.DeleteMessage(ctx, c.ConversationID, c.MessageID); err != nil {
		p.logger.Warn("delete blocked message failed", zap.String("msg", c.MessageID), zap.Error(err))
	}

	if escalate {
		member := domain.Member{ActorID: c.ActorID, Name: c.ActorName}
		p.removeActor(ctx, t, c.ConversationID, member, "blocked_content", p.texts.Removed)
		p.Abuse.ResetWarnings(c.ActorID)
	}
}

// remediateBurst removes a flooding actor; the burst window is cleared only
// when the removal went through
func (p *Pipeline) remediateBurst(ctx context.Context, t repo.Transport, c *domain.Context) {
	p.logger.Info("burst detected", zap.String("chat", c.ConversationID), zap.String("actor", c.ActorID))
	member := domain.Member{ActorID: c.ActorID, Name: c.ActorName}
	if p.removeActor(ctx, t, c.ConversationID, member, "burst", p.texts.SpamRemoved) {
		p.Abuse.ClearBurst(c.ActorID)
	}
}

// removeActor removes member from the conversation when the bot holds admin
// rights, announcing the result with tmpl. A permission gap is reported in
// the conversation instead.
func (p *Pipeline) removeActor(ctx context.Context, t repo.Transport, conversationID string, member domain.Member, reason, tmpl string) bool {
	if conv, err := t.GetConversation(ctx, conversationID); err == nil {
		if !conv.IsAdmin(t.SelfID()) {
			removals.WithLabelValues(reason, "denied").Inc()
			p.sendText(ctx, t, conversationID, p.texts.PermissionDenied, nil)
			return false
		}
	} else {
		// fall through: the removal call reports the permission itself
		p.logger.Debug("conversation lookup failed", zap.String("chat", conversationID), zap.Error(err))
	}

	err := t.RemoveParticipants(ctx, conversationID, []string{member.ActorID})
	switch {
	case errors.Is(err, domain.ErrPermission):
		removals.WithLabelValues(reason, "denied").Inc()
		p.sendText(ctx, t, conversationID, p.texts.PermissionDenied, nil)
		return false
	case err != nil:
		removals.WithLabelValues(reason, "error").Inc()
		p.logger.Warn("remove participant failed", zap.String("actor", member.ActorID), zap.Error(err))
		if p.Notifier != nil {
			p.Notifier.Notify(ctx, fmt.Sprintf("removing %s from %s failed: %v", member.ActorID, conversationID, err))
		}
		return false
	}

	removals.WithLabelValues(reason, "removed").Inc()
	p.sendText(ctx, t, conversationID, conf.Render(tmpl, map[string]string{
		"mention": mentionText(member.ActorID, member.Name),
		"name":    displayName(member.ActorID, member.Name),
		"max":     fmt.Sprint(p.Abuse.MaxWarnings()),
	}), nil)
	return true
}

func (p *Pipeline) sendText(ctx context.Context, t repo.Transport, conversationID, text string, mentions []string) {
	if text == "" {
		return
	}
	if _, err := t.SendText(ctx, conversationID, text, mentions); err != nil {
		p.logger.Warn("send failed", zap.String("chat", conversationID), zap.Error(err))
	}
}
