package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/biz/usecase"
	"github.com/devricklin/chatwarden/internal/conf"
)

const maxSelfDestruct = time.Hour

// errUsage makes the dispatcher answer with the command's usage line
var errUsage = errors.New("usage")

// dispatchCommand enforces capability and cooldown, then runs the handler
func (p *Pipeline) dispatchCommand(ctx context.Context, t repo.Transport, c *domain.Context, privileged bool, now time.Time) {
	name, args, raw, ok := p.Registry.Parse(c.Text)
	if !ok {
		return
	}
	cmd, found := p.Registry.Lookup(name)
	if !found {
		commandsRun.WithLabelValues("unknown", "unknown").Inc()
		p.reply(ctx, t, c, conf.Render(p.texts.UnknownCommand, map[string]string{
			"cmd":    p.Registry.Prefix() + name,
			"prefix": p.Registry.Prefix(),
		}))
		return
	}

	if cmd.Capability == domain.CapabilityPrivileged && !privileged {
		commandsRun.WithLabelValues(cmd.Name, "denied").Inc()
		p.reply(ctx, t, c, conf.Render(p.texts.PrivilegedOnly, map[string]string{"cmd": p.Registry.Prefix() + cmd.Name}))
		return
	}

	if allowed, wait := p.Limiter.Allow(c.ActorID, privileged, now); !allowed {
		commandsRun.WithLabelValues(cmd.Name, "cooldown").Inc()
		p.reply(ctx, t, c, conf.Render(p.texts.Cooldown, map[string]string{"seconds": strconv.Itoa(usecase.CeilSeconds(wait))}))
		return
	}

	p.logger.Debug("command", zap.String("cmd", cmd.Name), zap.String("actor", c.ActorID))
	err := cmd.Run(ctx, &usecase.Invocation{Msg: c, Transport: t, Name: cmd.Name, Args: args, RawArgs: raw})
	switch {
	case err == nil:
		commandsRun.WithLabelValues(cmd.Name, "ok").Inc()
	case errors.Is(err, errUsage):
		commandsRun.WithLabelValues(cmd.Name, "usage").Inc()
		p.reply(ctx, t, c, "Usage: "+p.Registry.Prefix()+cmd.Usage)
	case errors.Is(err, domain.ErrPermission):
		commandsRun.WithLabelValues(cmd.Name, "denied").Inc()
		p.reply(ctx, t, c, p.texts.PermissionDenied)
	default:
		commandsRun.WithLabelValues(cmd.Name, "error").Inc()
		p.fail(ctx, t, c, "command:"+cmd.Name, err)
	}
}

func (p *Pipeline) registerBuiltins() error {
	open := []*usecase.Command{
		{Name: "help", Aliases: []string{"menu"}, Usage: "help", Description: "List commands", Run: p.cmdHelp},
		{Name: "ping", Usage: "ping", Description: "Check the bot is alive", Run: p.cmdPing},
		{Name: "rank", Aliases: []string{"level"}, Usage: "rank", Description: "Show your level and XP", Run: p.cmdRank},
		{Name: "ask", Usage: "ask <question>", Description: "Ask the AI", Run: p.cmdAsk},
		{Name: "reveal", Usage: "reveal", Description: "Get back your captured view-once media", Run: p.cmdReveal},
		{Name: "talkative", Usage: "talkative on|off", Description: "Let the bot join your conversations more often", Run: p.cmdTalkative},
		{Name: "warnings", Usage: "warnings", Description: "Show your warning count", Run: p.cmdWarnings},
	}
	privileged := []*usecase.Command{
		{Name: "ai", Usage: "ai on|off", Description: "Toggle AI replies in this group", Run: p.toggle("AI replies", func(gp *domain.GroupPolicy, on bool) { gp.AIEnabled = on })},
		{Name: "welcome", Usage: "welcome on|off", Description: "Toggle welcome messages", Run: p.toggle("Welcome messages", func(gp *domain.GroupPolicy, on bool) { gp.WelcomeEnabled = on })},
		{Name: "goodbye", Usage: "goodbye on|off", Description: "Toggle goodbye messages", Run: p.toggle("Goodbye messages", func(gp *domain.GroupPolicy, on bool) { gp.GoodbyeEnabled = on })},
		{Name: "antispam", Usage: "antispam on|off", Description: "Toggle the flood filter", Run: p.toggle("Spam filter", func(gp *domain.GroupPolicy, on bool) { gp.SpamFilterEnabled = on })},
		{Name: "antilink", Usage: "antilink on|off", Description: "Toggle link protection", Run: p.toggle("Link protection", func(gp *domain.GroupPolicy, on bool) { gp.LinkProtectionEnabled = on })},
		{Name: "resetwarn", Usage: "resetwarn @user", Description: "Clear a member's warnings", Run: p.cmdResetWarn},
		{Name: "kick", Usage: "kick @user", Description: "Remove a member", Run: p.cmdKick},
		{Name: "selfdestruct", Aliases: []string{"sd"}, Usage: "selfdestruct <seconds> <text>", Description: "Send a message that deletes itself", Run: p.cmdSelfDestruct},
		{Name: "policy", Usage: "policy", Description: "Show this group's settings", Run: p.cmdPolicy},
	}
	for _, cmd := range privileged {
		cmd.Capability = domain.CapabilityPrivileged
	}
	for _, cmd := range append(open, privileged...) {
		if err := p.Registry.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) cmdHelp(ctx context.Context, inv *usecase.Invocation) error {
	privileged := p.IsPrivileged(inv.Msg.ActorID)
	prefix := p.Registry.Prefix()

	var sb strings.Builder
	sb.WriteString(p.cfg.BotName + " commands:\n")
	for _, cmd := range p.Registry.List() {
		if cmd.Capability == domain.CapabilityPrivileged && !privileged {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s%s - %s\n", prefix, cmd.Usage, cmd.Description))
	}
	_, err := inv.Transport.Reply(ctx, inv.Msg, strings.TrimRight(sb.String(), "\n"))
	return err
}

func (p *Pipeline) cmdPing(ctx context.Context, inv *usecase.Invocation) error {
	text := "pong"
	if inv.Msg.CreateTime > 0 {
		if lag := p.now().Sub(time.UnixMilli(inv.Msg.CreateTime)); lag >= 0 {
			text = fmt.Sprintf("pong (%dms)", lag.Milliseconds())
		}
	}
	_, err := inv.Transport.Reply(ctx, inv.Msg, text)
	return err
}

func (p *Pipeline) cmdRank(ctx context.Context, inv *usecase.Invocation) error {
	if p.Progression == nil {
		_, err := inv.Transport.Reply(ctx, inv.Msg, "Progression is disabled.")
		return err
	}
	prof, err := p.Progression.Profile(ctx, inv.Msg.ActorID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s: level %d (%s), %d XP", displayName(inv.Msg.ActorID, inv.Msg.ActorName), prof.Level, prof.Title, prof.XP)
	_, err = inv.Transport.Reply(ctx, inv.Msg, text)
	return err
}

func (p *Pipeline) cmdAsk(ctx context.Context, inv *usecase.Invocation) error {
	if inv.RawArgs == "" {
		return errUsage
	}
	if p.Responder == nil {
		_, err := inv.Transport.Reply(ctx, inv.Msg, "AI is not configured.")
		return err
	}
	p.answer(ctx, inv.Transport, inv.Msg, inv.RawArgs, true)
	return nil
}

func (p *Pipeline) cmdReveal(ctx context.Context, inv *usecase.Invocation) error {
	entry, ok := p.Vault.Reveal(inv.Msg.ActorID, p.now())
	vaultEntries.Set(float64(p.Vault.Len()))
	if !ok {
		_, err := inv.Transport.Reply(ctx, inv.Msg, p.texts.NothingToReveal)
		return err
	}
	_, err := inv.Transport.SendMedia(ctx, inv.Msg.ConversationID, repo.OutboundMedia{
		Kind:     entry.Kind,
		Data:     entry.Data,
		MimeType: entry.MimeType,
		Caption:  entry.Caption,
	})
	return err
}

func (p *Pipeline) cmdTalkative(ctx context.Context, inv *usecase.Invocation) error {
	on, ok := parseSwitch(inv.Arg(0))
	if !ok {
		return errUsage
	}
	if p.Progression == nil {
		_, err := inv.Transport.Reply(ctx, inv.Msg, "Progression is disabled.")
		return err
	}
	if err := p.Progression.SetTalkative(ctx, inv.Msg.ActorID, on); err != nil {
		return err
	}
	_, err := inv.Transport.Reply(ctx, inv.Msg, "Talkative mode "+switchText(on)+".")
	return err
}

func (p *Pipeline) cmdWarnings(ctx context.Context, inv *usecase.Invocation) error {
	text := fmt.Sprintf("You have %d/%d warnings.", p.Abuse.Warnings(inv.Msg.ActorID), p.Abuse.MaxWarnings())
	_, err := inv.Transport.Reply(ctx, inv.Msg, text)
	return err
}

// toggle builds a group policy switch command
func (p *Pipeline) toggle(label string, set func(*domain.GroupPolicy, bool)) usecase.CommandFunc {
	return func(ctx context.Context, inv *usecase.Invocation) error {
		if !inv.Msg.IsGroup {
			_, err := inv.Transport.Reply(ctx, inv.Msg, "This command only works in groups.")
			return err
		}
		on, ok := parseSwitch(inv.Arg(0))
		if !ok {
			return errUsage
		}
		p.Policies.Update(inv.Msg.ConversationID, func(gp *domain.GroupPolicy) { set(gp, on) })
		_, err := inv.Transport.Reply(ctx, inv.Msg, label+" "+switchText(on)+".")
		return err
	}
}

func (p *Pipeline) cmdResetWarn(ctx context.Context, inv *usecase.Invocation) error {
	target := p.target(inv)
	if target == "" {
		return errUsage
	}
	p.Abuse.ResetWarnings(target)
	_, err := inv.Transport.Reply(ctx, inv.Msg, "Warnings cleared for @"+target+".")
	return err
}

func (p *Pipeline) cmdKick(ctx context.Context, inv *usecase.Invocation) error {
	if !inv.Msg.IsGroup {
		_, err := inv.Transport.Reply(ctx, inv.Msg, "This command only works in groups.")
		return err
	}
	target := p.target(inv)
	if target == "" {
		return errUsage
	}
	p.removeActor(ctx, inv.Transport, inv.Msg.ConversationID, domain.Member{ActorID: target}, "kick", "{{mention}} was removed.")
	return nil
}

func (p *Pipeline) cmdSelfDestruct(ctx context.Context, inv *usecase.Invocation) error {
	secs, err := strconv.Atoi(inv.Arg(0))
	if err != nil || secs < 1 || len(inv.Args) < 2 {
		return errUsage
	}
	delay := time.Duration(secs) * time.Second
	if delay > maxSelfDestruct {
		delay = maxSelfDestruct
	}
	text := strings.TrimSpace(strings.TrimPrefix(inv.RawArgs, inv.Args[0]))

	t := inv.Transport
	convID := inv.Msg.ConversationID
	id, err := t.SendText(ctx, convID, text, nil)
	if err != nil {
		return err
	}
	if p.Scheduler == nil || !p.Scheduler.After(delay, func(ctx context.Context) {
		if err := t.DeleteMessage(ctx, convID, id); err != nil {
			p.logger.Warn("self-destruct delete failed", zap.String("msg", id), zap.Error(err))
		}
	}) {
		p.logger.Warn("self-destruct not scheduled", zap.String("msg", id))
	}
	return nil
}

func (p *Pipeline) cmdPolicy(ctx context.Context, inv *usecase.Invocation) error {
	if !inv.Msg.IsGroup {
		_, err := inv.Transport.Reply(ctx, inv.Msg, "This command only works in groups.")
		return err
	}
	gp := p.Policies.Get(inv.Msg.ConversationID)
	text := fmt.Sprintf("AI replies: %s\nWelcome: %s\nGoodbye: %s\nSpam filter: %s\nLink protection: %s",
		switchText(gp.AIEnabled), switchText(gp.WelcomeEnabled), switchText(gp.GoodbyeEnabled),
		switchText(gp.SpamFilterEnabled), switchText(gp.LinkProtectionEnabled))
	_, err := inv.Transport.Reply(ctx, inv.Msg, text)
	return err
}

// target resolves the actor a moderation command points at: the first
// mention other than the bot, the quoted author, or an explicit id argument
func (p *Pipeline) target(inv *usecase.Invocation) string {
	if id := inv.Msg.TargetOther(inv.Transport.SelfID()); id != "" {
		return id
	}
	if arg := inv.Arg(0); strings.HasPrefix(arg, "@") {
		return domain.NormalizeID(arg)
	}
	return ""
}

func parseSwitch(s string) (on bool, ok bool) {
	switch strings.ToLower(s) {
	case "on", "enable", "true", "1":
		return true, true
	case "off", "disable", "false", "0":
		return false, true
	}
	return false, false
}

func switchText(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
