package data

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/infra/feishu"
)

// FeishuAccount is the registry key of the Feishu transport
const FeishuAccount = "feishu"

// feishuAPI is the subset of *feishu.Client the transport needs
type feishuAPI interface {
	BotOpenID() string
	SendText(ctx context.Context, chatID, text string, mentions []string) (string, error)
	ReplyText(ctx context.Context, messageID, text string) (string, error)
	SendImage(ctx context.Context, chatID string, data []byte) (string, error)
	SendFile(ctx context.Context, chatID, fileType, fileName string, data []byte) (string, error)
	DeleteMessage(ctx context.Context, messageID string) error
	RemoveChatMembers(ctx context.Context, chatID string, openIDs []string) error
	AddReaction(ctx context.Context, messageID, emojiType string) error
	DownloadResource(ctx context.Context, messageID string, res feishu.Resource) ([]byte, error)
	GetMessage(ctx context.Context, messageID string) (*feishu.QuotedMessage, error)
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
}

// FeishuTransport implements repo.Transport over the Feishu open platform
type FeishuTransport struct {
	client feishuAPI
	logger *zap.Logger
}

var _ repo.Transport = (*FeishuTransport)(nil)

// NewFeishuTransport creates the Feishu transport
func NewFeishuTransport(client *feishu.Client, logger *zap.Logger) *FeishuTransport {
	return newFeishuTransport(client, logger)
}

func newFeishuTransport(client feishuAPI, logger *zap.Logger) *FeishuTransport {
	return &FeishuTransport{client: client, logger: logger.Named("feishu-transport")}
}

func (t *FeishuTransport) Account() string { return FeishuAccount }

func (t *FeishuTransport) SelfID() string {
	return domain.NormalizeID(t.client.BotOpenID())
}

func (t *FeishuTransport) SendText(ctx context.Context, conversationID, text string, mentions []string) (string, error) {
	return t.client.SendText(ctx, conversationID, text, mentions)
}

func (t *FeishuTransport) Reply(ctx context.Context, c *domain.Context, text string) (string, error) {
	if c.MessageID == "" {
		return t.client.SendText(ctx, c.ConversationID, text, nil)
	}
	return t.client.ReplyText(ctx, c.MessageID, text)
}

func (t *FeishuTransport) SendMedia(ctx context.Context, conversationID string, media repo.OutboundMedia) (string, error) {
	var (
		id  string
		err error
	)
	switch media.Kind {
	case domain.KindImage, domain.KindSticker:
		id, err = t.client.SendImage(ctx, conversationID, media.Data)
	case domain.KindVideo:
		id, err = t.client.SendFile(ctx, conversationID, "mp4", "video.mp4", media.Data)
	case domain.KindAudio:
		id, err = t.client.SendFile(ctx, conversationID, "opus", "audio.opus", media.Data)
	default:
		id, err = t.client.SendFile(ctx, conversationID, "stream", "attachment", media.Data)
	}
	if err != nil {
		return "", err
	}
	if media.Caption != "" {
		if _, cerr := t.client.SendText(ctx, conversationID, media.Caption, nil); cerr != nil {
			t.logger.Warn("send caption failed", zap.Error(cerr))
		}
	}
	return id, nil
}

func (t *FeishuTransport) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return t.client.DeleteMessage(ctx, messageID)
}

func (t *FeishuTransport) RemoveParticipants(ctx context.Context, conversationID string, actorIDs []string) error {
	return mapFeishuError(t.client.RemoveChatMembers(ctx, conversationID, actorIDs))
}

func (t *FeishuTransport) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	info, err := t.client.GetChatInfo(ctx, conversationID)
	if err != nil {
		return nil, mapFeishuError(err)
	}
	members, err := t.client.GetChatMembers(ctx, conversationID)
	if err != nil {
		return nil, mapFeishuError(err)
	}

	conv := &domain.Conversation{
		ID:       conversationID,
		Name:     info.Name,
		ChatType: domain.ChatTypeGroup,
	}
	if info.ChatType == "p2p" {
		conv.ChatType = domain.ChatTypeP2P
	}
	// Feishu exposes only the owner through the chat API
	if info.OwnerID != "" {
		conv.Admins = []string{domain.NormalizeID(info.OwnerID)}
	}
	for _, m := range members {
		conv.Members = append(conv.Members, domain.Member{
			ActorID: domain.NormalizeID(m.MemberID),
			Name:    m.Name,
		})
	}
	return conv, nil
}

func (t *FeishuTransport) DownloadMedia(ctx context.Context, c *domain.Context, a domain.Attachment) ([]byte, error) {
	resType := "file"
	if a.Kind == domain.KindImage || a.MimeType == "image" {
		resType = "image"
	}
	return t.client.DownloadResource(ctx, c.MessageID, feishu.Resource{Key: a.Key, Type: resType})
}

func (t *FeishuTransport) React(ctx context.Context, c *domain.Context, emoji string) error {
	return t.client.AddReaction(ctx, c.MessageID, emoji)
}

// SetPresence is a no-op: Feishu has no typing indicator API
func (t *FeishuTransport) SetPresence(ctx context.Context, conversationID string, state repo.PresenceState) error {
	return nil
}

// ToRawEvent converts a Feishu message into a transport-neutral event,
// resolving the quoted message when the message is a reply
func (t *FeishuTransport) ToRawEvent(ctx context.Context, msg *feishu.Message) *domain.RawEvent {
	ev := &domain.RawEvent{
		Account:        FeishuAccount,
		MessageID:      msg.MsgID,
		ConversationID: msg.ChatID,
		IsGroup:        msg.ChatType == "group",
		CreateTime:     msg.CreateTime,
		Kind:           msg.MsgType,
		Body:           msg.Content,
		Raw:            msg,
	}
	if msg.Sender != nil {
		ev.SenderID = msg.Sender.SenderID
		ev.FromSelf = msg.Sender.SenderType == "app"
	}
	for _, m := range msg.Mentions {
		ev.Mentions = append(ev.Mentions, m.UserID)
	}
	for _, r := range msg.Resources {
		ev.Attachments = append(ev.Attachments, domain.Attachment{
			Kind: resourceKind(msg.MsgType, r.Type),
			Key:  r.Key,
		})
	}
	if msg.ParentID != "" {
		q, err := t.client.GetMessage(ctx, msg.ParentID)
		if err != nil {
			t.logger.Debug("resolve quoted message failed", zap.String("parent", msg.ParentID), zap.Error(err))
			ev.Quoted = &domain.ReplyTarget{Raw: msg.ParentID}
		} else if q != nil {
			ev.Quoted = &domain.ReplyTarget{AuthorID: q.SenderID, Text: q.Content, Raw: q.MsgID}
		}
	}
	return ev
}

// ToParticipantEvent converts a Feishu membership change
func ToParticipantEvent(ev *feishu.MemberEvent) *domain.ParticipantEvent {
	out := &domain.ParticipantEvent{
		Account:        FeishuAccount,
		ConversationID: ev.ChatID,
		Action:         domain.ParticipantRemoved,
	}
	if ev.Added {
		out.Action = domain.ParticipantAdded
	}
	for _, u := range ev.Users {
		out.Actors = append(out.Actors, domain.Member{ActorID: domain.NormalizeID(u.UserID), Name: u.UserName})
	}
	return out
}

func resourceKind(msgType, resType string) domain.ContentKind {
	switch msgType {
	case "post":
		if resType == "image" {
			return domain.KindImage
		}
		return domain.KindFile
	case "media":
		return domain.KindVideo
	}
	return "" // derived from the message kind during normalization
}

func mapFeishuError(err error) error {
	var apiErr *feishu.APIError
	if errors.As(err, &apiErr) && apiErr.IsPermission() {
		return fmt.Errorf("%w: %s", domain.ErrPermission, apiErr.Msg)
	}
	return err
}
