package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/conf"
)

const defaultMuteMinutes = 10

// runOverride executes an operator override ($mute, $unmute, $credit).
// Always terminal for the message, whatever the outcome.
func (p *Pipeline) runOverride(ctx context.Context, t repo.Transport, c *domain.Context) {
	body := strings.TrimPrefix(strings.TrimSpace(c.Text), p.cfg.OverrideSigil)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	target, rest := overrideTarget(c, t.SelfID(), args)
	if target == "" {
		p.reply(ctx, t, c, fmt.Sprintf("Usage: %s%s @user ...", p.cfg.OverrideSigil, name))
		return
	}
	vars := map[string]string{"target": "@" + target}
	p.logger.Info("override", zap.String("op", name), zap.String("actor", c.ActorID), zap.String("target", target))

	switch name {
	case "mute":
		minutes := defaultMuteMinutes
		if len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil && n > 0 {
				minutes = n
			}
		}
		p.Mutes.Mute(target, p.now().Add(time.Duration(minutes)*time.Minute))
		vars["minutes"] = strconv.Itoa(minutes)
		p.reply(ctx, t, c, conf.Render(p.texts.Muted, vars))

	case "unmute":
		p.Mutes.Unmute(target)
		p.reply(ctx, t, c, conf.Render(p.texts.Unmuted, vars))

	case "credit":
		if len(rest) == 0 {
			p.reply(ctx, t, c, fmt.Sprintf("Usage: %scredit @user <points>", p.cfg.OverrideSigil))
			return
		}
		points, err := strconv.Atoi(rest[0])
		if err != nil || points <= 0 {
			p.reply(ctx, t, c, fmt.Sprintf("Usage: %scredit @user <points>", p.cfg.OverrideSigil))
			return
		}
		if p.Progression == nil {
			p.reply(ctx, t, c, "Progression is disabled.")
			return
		}
		p.award(ctx, t, c, target, "", points)
		vars["points"] = strconv.Itoa(points)
		p.reply(ctx, t, c, conf.Render(p.texts.Credited, vars))

	default:
		p.reply(ctx, t, c, fmt.Sprintf("Unknown override %s%s.", p.cfg.OverrideSigil, name))
	}
}

// overrideTarget picks the target actor and returns the arguments after it
func overrideTarget(c *domain.Context, self string, args []string) (string, []string) {
	// an explicit @token in the first argument is consumed
	var rest []string
	if len(args) > 0 && strings.HasPrefix(args[0], "@") {
		rest = args[1:]
	} else {
		rest = args
	}
	if id := c.TargetOther(self); id != "" {
		return id, rest
	}
	if len(args) > 0 && strings.HasPrefix(args[0], "@") {
		return domain.NormalizeID(args[0]), rest
	}
	return "", rest
}
