package domain

import "strings"

// ContentKind is the kind of payload carried by an inbound message
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindImage       ContentKind = "image"
	KindVideo       ContentKind = "video"
	KindAudio       ContentKind = "audio"
	KindSticker     ContentKind = "sticker"
	KindFile        ContentKind = "file"
	KindButtonReply ContentKind = "button_reply"
	KindViewOnce    ContentKind = "view_once"
)

// Countable reports whether the kind earns progression points.
// Button acknowledgments are interactions, not messages.
func (k ContentKind) Countable() bool {
	return k != KindButtonReply
}

// Summary is the transcript placeholder for non-text content
func (k ContentKind) Summary() string {
	if k == KindText {
		return ""
	}
	return "[" + strings.ReplaceAll(string(k), "_", " ") + "]"
}

// Attachment references media held by the transport
type Attachment struct {
	Kind     ContentKind
	Key      string // transport resource key (image_key, file_key, media id)
	MimeType string
	ViewOnce bool
}

// ReplyTarget is the quoted message a Context replies to
type ReplyTarget struct {
	AuthorID string
	Text     string
	Raw      string // transport message id of the quoted message
}

// Context is the canonical form of one inbound message.
// It is built once by the Normalizer and must not be mutated afterwards.
type Context struct {
	Account        string // account registry key of the transport that delivered it
	MessageID      string
	ActorID        string
	ActorName      string
	ConversationID string
	IsGroup        bool
	Text           string
	Kind           ContentKind
	Mentions       []string
	ReplyTarget    *ReplyTarget
	Attachments    []Attachment
	CreateTime     int64 // milliseconds since epoch

	// Raw is an opaque handle back to the transport message
	Raw any
}

// Mentioned reports whether actorID is in the mention set
func (c *Context) Mentioned(actorID string) bool {
	id := NormalizeID(actorID)
	for _, m := range c.Mentions {
		if m == id {
			return true
		}
	}
	return false
}

// TargetOther returns the first mentioned actor other than self, or the
// quoted author when nobody else is mentioned
func (c *Context) TargetOther(self string) string {
	for _, m := range c.Mentions {
		if m != self {
			return m
		}
	}
	if rt := c.ReplyTarget; rt != nil && rt.AuthorID != self {
		return rt.AuthorID
	}
	return ""
}

// ViewOnceAttachment returns the first view-once attachment, if any
func (c *Context) ViewOnceAttachment() (Attachment, bool) {
	for _, a := range c.Attachments {
		if a.ViewOnce {
			return a, true
		}
	}
	return Attachment{}, false
}
