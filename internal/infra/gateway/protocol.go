package gateway

import "encoding/json"

// Frame types
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// Methods understood by the gateway
const (
	MethodConnect       = "connect"
	MethodSendText      = "message.send"
	MethodSendMedia     = "message.send_media"
	MethodDeleteMessage = "message.delete"
	MethodReact         = "message.react"
	MethodDownload      = "media.download"
	MethodGroupMetadata = "group.metadata"
	MethodGroupRemove   = "group.remove"
	MethodPresence      = "presence.update"
)

// Events pushed by the gateway
const (
	EventMessages     = "messages.upsert"
	EventParticipants = "group.participants"
	EventConnection   = "connection.update"
)

// wireMessage is one frame on the socket
type wireMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  interface{}     `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// WireError is an error returned by the gateway
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return e.Code + ": " + e.Message
}

// Error codes
const (
	CodeForbidden = "forbidden"
	CodeNotFound  = "not_found"
	CodeDecrypt   = "decrypt_failed"
)

// ConnectResult is the payload of a successful connect
type ConnectResult struct {
	SelfID string `json:"self_id"`
}

// Media describes an attachment on an inbound message
type Media struct {
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	MimeType string `json:"mime_type"`
	ViewOnce bool   `json:"view_once"`
}

// Quoted is the quoted message on an inbound reply
type Quoted struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
}

// InboundMessage is one message of a messages.upsert batch
type InboundMessage struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	SenderID       string   `json:"sender_id"`
	SenderName     string   `json:"sender_name"`
	FromMe         bool     `json:"from_me"`
	Kind           string   `json:"kind"`
	Text           string   `json:"text"`
	ButtonID       string   `json:"button_id"`
	Mentions       []string `json:"mentions"`
	Quoted         *Quoted  `json:"quoted"`
	Media          []Media  `json:"media"`
	Timestamp      int64    `json:"timestamp"` // milliseconds
	// Error is set when the gateway could not decrypt the message
	Error string `json:"error"`
}

// MessagesEvent is the payload of messages.upsert
type MessagesEvent struct {
	Messages []InboundMessage `json:"messages"`
}

// Participant is a group member
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// ParticipantsEvent is the payload of group.participants
type ParticipantsEvent struct {
	ConversationID string        `json:"conversation_id"`
	Action         string        `json:"action"` // add, remove
	Participants   []Participant `json:"participants"`
}

// ConnectionEvent is the payload of connection.update
type ConnectionEvent struct {
	State string `json:"state"` // open, closed
}

// GroupMetadata is the result of group.metadata
type GroupMetadata struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Participants []Participant `json:"participants"`
}

// SendTextParams are the params of message.send
type SendTextParams struct {
	ConversationID string   `json:"conversation_id"`
	Text           string   `json:"text"`
	Mentions       []string `json:"mentions,omitempty"`
	QuotedID       string   `json:"quoted_id,omitempty"`
}

// SendMediaParams are the params of message.send_media; Data is base64 on the wire
type SendMediaParams struct {
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"`
	MimeType       string `json:"mime_type"`
	Caption        string `json:"caption,omitempty"`
	Data           []byte `json:"data"`
}

// SendResult is the result of a send
type SendResult struct {
	MessageID string `json:"message_id"`
}

// DownloadResult is the result of media.download
type DownloadResult struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}
