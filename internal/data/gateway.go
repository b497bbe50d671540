package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/infra/gateway"
)

// GatewayAccount is the registry key of the websocket gateway transport
const GatewayAccount = "gateway"

// defaultUserServer qualifies actor ids before the gateway reports its own address
const defaultUserServer = "s.whatsapp.net"

// gatewayCaller is the subset of *gateway.Client the transport needs
type gatewayCaller interface {
	SelfID() string
	Call(ctx context.Context, method string, params interface{}, out interface{}) error
}

// GatewayTransport implements repo.Transport over the websocket gateway
type GatewayTransport struct {
	client gatewayCaller
	logger *zap.Logger
}

var _ repo.Transport = (*GatewayTransport)(nil)

// NewGatewayTransport creates the gateway transport
func NewGatewayTransport(client *gateway.Client, logger *zap.Logger) *GatewayTransport {
	return newGatewayTransport(client, logger)
}

func newGatewayTransport(client gatewayCaller, logger *zap.Logger) *GatewayTransport {
	return &GatewayTransport{client: client, logger: logger.Named("gateway-transport")}
}

func (t *GatewayTransport) Account() string { return GatewayAccount }

func (t *GatewayTransport) SelfID() string {
	return domain.NormalizeID(t.client.SelfID())
}

func (t *GatewayTransport) SendText(ctx context.Context, conversationID, text string, mentions []string) (string, error) {
	var res gateway.SendResult
	err := t.client.Call(ctx, gateway.MethodSendText, gateway.SendTextParams{
		ConversationID: conversationID,
		Text:           text,
		Mentions:       t.addresses(mentions),
	}, &res)
	if err != nil {
		return "", mapGatewayError(err)
	}
	return res.MessageID, nil
}

func (t *GatewayTransport) Reply(ctx context.Context, c *domain.Context, text string) (string, error) {
	var res gateway.SendResult
	err := t.client.Call(ctx, gateway.MethodSendText, gateway.SendTextParams{
		ConversationID: c.ConversationID,
		Text:           text,
		QuotedID:       c.MessageID,
	}, &res)
	if err != nil {
		return "", mapGatewayError(err)
	}
	return res.MessageID, nil
}

func (t *GatewayTransport) SendMedia(ctx context.Context, conversationID string, media repo.OutboundMedia) (string, error) {
	var res gateway.SendResult
	err := t.client.Call(ctx, gateway.MethodSendMedia, gateway.SendMediaParams{
		ConversationID: conversationID,
		Kind:           string(media.Kind),
		MimeType:       media.MimeType,
		Caption:        media.Caption,
		Data:           media.Data,
	}, &res)
	if err != nil {
		return "", mapGatewayError(err)
	}
	return res.MessageID, nil
}

func (t *GatewayTransport) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	params := map[string]string{"conversation_id": conversationID, "message_id": messageID}
	return mapGatewayError(t.client.Call(ctx, gateway.MethodDeleteMessage, params, nil))
}

func (t *GatewayTransport) RemoveParticipants(ctx context.Context, conversationID string, actorIDs []string) error {
	params := map[string]interface{}{"conversation_id": conversationID, "participants": t.addresses(actorIDs)}
	return mapGatewayError(t.client.Call(ctx, gateway.MethodGroupRemove, params, nil))
}

// addresses re-qualifies normalized actor ids with the user server the
// gateway expects. Ids that already carry a server are kept.
func (t *GatewayTransport) addresses(actorIDs []string) []string {
	if len(actorIDs) == 0 {
		return actorIDs
	}
	server := defaultUserServer
	if self := t.client.SelfID(); strings.Contains(self, "@") {
		server = self[strings.LastIndexByte(self, '@')+1:]
	}
	out := make([]string, 0, len(actorIDs))
	for _, id := range actorIDs {
		if id == "" {
			continue
		}
		if !strings.Contains(id, "@") {
			id += "@" + server
		}
		out = append(out, id)
	}
	return out
}

func (t *GatewayTransport) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var meta gateway.GroupMetadata
	params := map[string]string{"conversation_id": conversationID}
	if err := t.client.Call(ctx, gateway.MethodGroupMetadata, params, &meta); err != nil {
		return nil, mapGatewayError(err)
	}

	conv := &domain.Conversation{
		ID:       conversationID,
		Name:     meta.Subject,
		ChatType: domain.ChatTypeGroup,
	}
	for _, p := range meta.Participants {
		id := domain.NormalizeID(p.ID)
		conv.Members = append(conv.Members, domain.Member{ActorID: id, Name: p.Name})
		if p.Admin {
			conv.Admins = append(conv.Admins, id)
		}
	}
	return conv, nil
}

func (t *GatewayTransport) DownloadMedia(ctx context.Context, c *domain.Context, a domain.Attachment) ([]byte, error) {
	var res gateway.DownloadResult
	params := map[string]string{"message_id": c.MessageID, "key": a.Key}
	if err := t.client.Call(ctx, gateway.MethodDownload, params, &res); err != nil {
		return nil, mapGatewayError(err)
	}
	return res.Data, nil
}

func (t *GatewayTransport) React(ctx context.Context, c *domain.Context, emoji string) error {
	params := map[string]string{
		"conversation_id": c.ConversationID,
		"message_id":      c.MessageID,
		"emoji":           emoji,
	}
	return mapGatewayError(t.client.Call(ctx, gateway.MethodReact, params, nil))
}

func (t *GatewayTransport) SetPresence(ctx context.Context, conversationID string, state repo.PresenceState) error {
	params := map[string]string{"conversation_id": conversationID, "state": string(state)}
	return mapGatewayError(t.client.Call(ctx, gateway.MethodPresence, params, nil))
}

// ToRawEvents converts a messages.upsert batch. Messages the gateway failed
// to decrypt are dropped.
func (t *GatewayTransport) ToRawEvents(batch *gateway.MessagesEvent) []*domain.RawEvent {
	self := t.SelfID()
	events := make([]*domain.RawEvent, 0, len(batch.Messages))
	for i := range batch.Messages {
		m := &batch.Messages[i]
		if m.Error != "" {
			t.logger.Debug("dropping undecryptable message", zap.String("id", m.ID), zap.String("error", m.Error))
			continue
		}
		ev := &domain.RawEvent{
			Account:        GatewayAccount,
			MessageID:      m.ID,
			SenderID:       m.SenderID,
			SenderName:     m.SenderName,
			FromSelf:       m.FromMe || (self != "" && domain.NormalizeID(m.SenderID) == self),
			ConversationID: m.ConversationID,
			IsGroup:        isGroupAddress(m.ConversationID),
			CreateTime:     m.Timestamp,
			Kind:           m.Kind,
			Body:           m.Text,
			ButtonID:       m.ButtonID,
			Mentions:       m.Mentions,
			Raw:            m,
		}
		for _, media := range m.Media {
			ev.Attachments = append(ev.Attachments, domain.Attachment{
				Kind:     domain.ContentKind(media.Kind),
				Key:      media.Key,
				MimeType: media.MimeType,
				ViewOnce: media.ViewOnce,
			})
		}
		if m.Quoted != nil {
			ev.Quoted = &domain.ReplyTarget{AuthorID: m.Quoted.AuthorID, Text: m.Quoted.Text, Raw: m.Quoted.ID}
		}
		events = append(events, ev)
	}
	return events
}

// ToGatewayParticipantEvent converts a group.participants payload
func ToGatewayParticipantEvent(p *gateway.ParticipantsEvent) *domain.ParticipantEvent {
	out := &domain.ParticipantEvent{
		Account:        GatewayAccount,
		ConversationID: p.ConversationID,
		Action:         domain.ParticipantAction(p.Action),
	}
	for _, part := range p.Participants {
		out.Actors = append(out.Actors, domain.Member{ActorID: domain.NormalizeID(part.ID), Name: part.Name})
	}
	return out
}

// isGroupAddress reports whether a gateway conversation address is a group
func isGroupAddress(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			return addr[i+1:] == "g.us" || addr[i+1:] == "group"
		}
	}
	return false
}

func mapGatewayError(err error) error {
	var wireErr *gateway.WireError
	if errors.As(err, &wireErr) && wireErr.Code == gateway.CodeForbidden {
		return fmt.Errorf("%w: %s", domain.ErrPermission, wireErr.Message)
	}
	return err
}
