package domain

// RawEvent is a transport-neutral inbound message before normalization.
// Transports fill what they know; the Normalizer derives the rest.
type RawEvent struct {
	Account        string
	MessageID      string
	SenderID       string
	SenderName     string
	FromSelf       bool
	ConversationID string
	IsGroup        bool
	CreateTime     int64

	// Kind is the transport's message type ("text", "post", "image",
	// "view_once_image", "button_reply", ...)
	Kind string
	// Body carries the primary text or caption
	Body string
	// ButtonID is the selected button for button replies
	ButtonID string

	Mentions    []string
	Attachments []Attachment
	Quoted      *ReplyTarget

	Raw any
}

// ParticipantAction is the kind of membership change
type ParticipantAction string

const (
	ParticipantAdded   ParticipantAction = "add"
	ParticipantRemoved ParticipantAction = "remove"
)

// ParticipantEvent reports actors joining or leaving a conversation
type ParticipantEvent struct {
	Account        string
	ConversationID string
	Action         ParticipantAction
	Actors         []Member
}

// ConnectionState is a transport connection transition
type ConnectionState string

const (
	ConnectionOpen   ConnectionState = "open"
	ConnectionClosed ConnectionState = "closed"
)
