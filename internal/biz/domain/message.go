package domain

import "time"

// Message is one transcript line
type Message struct {
	ID             string
	ConversationID string
	ActorID        string
	ActorName      string
	Text           string
	Kind           ContentKind
	CreateTime     time.Time
	FromBot        bool
}

// IsAfter checks if the message is after the specified time
func (m *Message) IsAfter(t time.Time) bool {
	return m.CreateTime.After(t)
}

// Display renders the message the way the generator prompt expects it
func (m *Message) Display() string {
	body := m.Text
	if body == "" {
		body = m.Kind.Summary()
	}
	name := m.ActorName
	if name == "" {
		name = m.ActorID
	}
	return name + ": " + body
}
