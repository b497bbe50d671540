package repo

import (
	"context"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// PresenceState is the typing indicator state sent to a conversation
type PresenceState string

const (
	PresenceComposing PresenceState = "composing"
	PresencePaused    PresenceState = "paused"
)

// OutboundMedia is media sent back to a conversation
type OutboundMedia struct {
	Kind     domain.ContentKind
	Data     []byte
	MimeType string
	Caption  string
}

// Transport is the messaging-network interface of one account
// Responsible for send/delete/participant primitives and conversation metadata
type Transport interface {
	// Account returns the registry key of this transport
	Account() string

	// SelfID returns the bot's own normalized actor id on this network
	SelfID() string

	// SendText sends a text message, mentioning the given actors
	// Returns the id of the sent message
	SendText(ctx context.Context, conversationID, text string, mentions []string) (string, error)

	// Reply sends text quoting the inbound message
	Reply(ctx context.Context, c *domain.Context, text string) (string, error)

	// SendMedia sends media to the conversation
	SendMedia(ctx context.Context, conversationID string, media OutboundMedia) (string, error)

	// DeleteMessage deletes a message by id
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	// RemoveParticipants removes actors from a conversation
	// Returns domain.ErrPermission when the bot lacks elevation
	RemoveParticipants(ctx context.Context, conversationID string, actorIDs []string) error

	// GetConversation fetches members and admins of a conversation
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// DownloadMedia fetches the bytes of an inbound attachment
	DownloadMedia(ctx context.Context, c *domain.Context, a domain.Attachment) ([]byte, error)

	// React adds an emoji reaction to the inbound message
	React(ctx context.Context, c *domain.Context, emoji string) error

	// SetPresence sends a typing indicator; a no-op on networks without one
	SetPresence(ctx context.Context, conversationID string, state PresenceState) error
}
