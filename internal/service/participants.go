package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/conf"
)

// HandleParticipants greets joining members and says goodbye to leaving
// ones when the group policy enables it
func (p *Pipeline) HandleParticipants(ctx context.Context, ev *domain.ParticipantEvent) {
	t, err := p.Accounts.Resolve(ev.Account)
	if err != nil {
		p.logger.Warn("no transport for participant event", zap.String("account", ev.Account), zap.Error(err))
		return
	}
	policy := p.Policies.Get(ev.ConversationID)
	self := t.SelfID()

	var tmpl string
	switch ev.Action {
	case domain.ParticipantAdded:
		if !policy.WelcomeEnabled {
			return
		}
		tmpl = p.texts.Welcome
	case domain.ParticipantRemoved:
		if !policy.GoodbyeEnabled {
			return
		}
		tmpl = p.texts.Goodbye
	default:
		return
	}

	for _, m := range ev.Actors {
		if m.ActorID == "" || m.ActorID == self {
			continue
		}
		text := conf.Render(tmpl, map[string]string{
			"mention": mentionText(m.ActorID, m.Name),
			"name":    displayName(m.ActorID, m.Name),
		})
		var mentions []string
		if ev.Action == domain.ParticipantAdded {
			mentions = []string{m.ActorID}
		}
		p.sendText(ctx, t, ev.ConversationID, text, mentions)
	}
}

// HandleConnection reacts to transport connection changes. A closed
// connection cancels the account's typing timers without emitting "paused".
func (p *Pipeline) HandleConnection(account string, state domain.ConnectionState) {
	p.logger.Info("connection", zap.String("account", account), zap.String("state", string(state)))
	if state == domain.ConnectionClosed {
		p.CancelPresence(account)
	}
}
