package domain

// ChatType represents the conversation type
type ChatType string

const (
	ChatTypeGroup ChatType = "group"
	ChatTypeP2P   ChatType = "p2p"
)

// Conversation is the metadata a transport reports about a chat
type Conversation struct {
	ID       string
	Name     string
	ChatType ChatType
	Members  []Member
	Admins   []string // normalized actor ids with elevated rights
}

// IsGroup checks if this is a group chat
func (c *Conversation) IsGroup() bool {
	return c.ChatType == ChatTypeGroup
}

// IsAdmin reports whether actorID holds elevated rights in the conversation
func (c *Conversation) IsAdmin(actorID string) bool {
	id := NormalizeID(actorID)
	for _, a := range c.Admins {
		if NormalizeID(a) == id {
			return true
		}
	}
	return false
}

// FindMemberByID finds a member by ID
func (c *Conversation) FindMemberByID(actorID string) *Member {
	id := NormalizeID(actorID)
	for i := range c.Members {
		if NormalizeID(c.Members[i].ActorID) == id {
			return &c.Members[i]
		}
	}
	return nil
}
