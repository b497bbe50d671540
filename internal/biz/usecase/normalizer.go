package usecase

import (
	"strings"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// RejectReason explains why a raw event produced no Context
type RejectReason string

const (
	RejectNone       RejectReason = ""
	RejectSelf       RejectReason = "self"
	RejectBroadcast  RejectReason = "broadcast"
	RejectEmpty      RejectReason = "empty"
	RejectUnresolved RejectReason = "unresolved"
)

var broadcastSuffixes = []string{"@broadcast", "@newsletter"}

// Normalizer converts raw transport events into Contexts
type Normalizer struct{}

// NewNormalizer creates a normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize builds a Context or reports why the event was rejected.
// Missing optional fields yield empty values.
func (n *Normalizer) Normalize(ev *domain.RawEvent) (*domain.Context, RejectReason) {
	if ev == nil {
		return nil, RejectUnresolved
	}
	if ev.FromSelf {
		return nil, RejectSelf
	}
	lowerConv := strings.ToLower(ev.ConversationID)
	for _, s := range broadcastSuffixes {
		if strings.HasSuffix(lowerConv, s) {
			return nil, RejectBroadcast
		}
	}

	actor := domain.NormalizeID(ev.SenderID)
	conv := strings.TrimSpace(ev.ConversationID)
	if actor == "" || conv == "" {
		return nil, RejectUnresolved
	}

	kind, viewOnce := mapKind(ev.Kind)
	text := strings.TrimSpace(ev.Body)
	if kind == domain.KindButtonReply && ev.ButtonID != "" {
		text = ev.ButtonID
	}

	attachments := make([]domain.Attachment, 0, len(ev.Attachments))
	for _, a := range ev.Attachments {
		if a.Key == "" {
			continue
		}
		if a.Kind == "" {
			a.Kind = kind
		}
		a.ViewOnce = a.ViewOnce || viewOnce
		attachments = append(attachments, a)
	}

	if text == "" && len(attachments) == 0 {
		return nil, RejectEmpty
	}

	var mentions []string
	seen := make(map[string]struct{}, len(ev.Mentions))
	for _, m := range ev.Mentions {
		id := domain.NormalizeID(m)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		mentions = append(mentions, id)
	}

	var reply *domain.ReplyTarget
	if ev.Quoted != nil && (ev.Quoted.AuthorID != "" || ev.Quoted.Raw != "") {
		reply = &domain.ReplyTarget{
			AuthorID: domain.NormalizeID(ev.Quoted.AuthorID),
			Text:     ev.Quoted.Text,
			Raw:      ev.Quoted.Raw,
		}
	}

	return &domain.Context{
		Account:        ev.Account,
		MessageID:      ev.MessageID,
		ActorID:        actor,
		ActorName:      ev.SenderName,
		ConversationID: conv,
		IsGroup:        ev.IsGroup,
		Text:           text,
		Kind:           kind,
		Mentions:       mentions,
		ReplyTarget:    reply,
		Attachments:    attachments,
		CreateTime:     ev.CreateTime,
		Raw:            ev.Raw,
	}, RejectNone
}

// mapKind maps a transport message type to a content kind
func mapKind(kind string) (domain.ContentKind, bool) {
	k := strings.ToLower(kind)
	if strings.HasPrefix(k, "view_once") {
		return domain.KindViewOnce, true
	}
	switch k {
	case "", "text", "post", "extended_text", "conversation":
		return domain.KindText, false
	case "image":
		return domain.KindImage, false
	case "video", "media":
		return domain.KindVideo, false
	case "audio":
		return domain.KindAudio, false
	case "sticker":
		return domain.KindSticker, false
	case "file":
		return domain.KindFile, false
	case "button_reply", "interactive":
		return domain.KindButtonReply, false
	}
	return domain.KindText, false
}
