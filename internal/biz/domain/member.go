package domain

import "fmt"

// Member is a conversation participant (value object)
type Member struct {
	ActorID string
	Name    string
}

// FormatMention formats the mention token understood by the transports
func (m *Member) FormatMention() string {
	return fmt.Sprintf("@%s", m.ActorID)
}

// FormatDisplay formats for display
func (m *Member) FormatDisplay() string {
	if m.Name == "" {
		return m.ActorID
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.ActorID)
}
