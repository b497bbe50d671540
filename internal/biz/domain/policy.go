package domain

// GroupPolicy holds per-conversation feature switches
type GroupPolicy struct {
	AIEnabled             bool `json:"ai_enabled"`
	WelcomeEnabled        bool `json:"welcome_enabled"`
	GoodbyeEnabled        bool `json:"goodbye_enabled"`
	SpamFilterEnabled     bool `json:"spam_filter_enabled"`
	LinkProtectionEnabled bool `json:"link_protection_enabled"`
}

// DefaultGroupPolicy is applied on first access to a conversation
func DefaultGroupPolicy() GroupPolicy {
	return GroupPolicy{
		AIEnabled:             true,
		WelcomeEnabled:        true,
		GoodbyeEnabled:        true,
		SpamFilterEnabled:     true,
		LinkProtectionEnabled: true,
	}
}

// Capability is the permission a command requires
type Capability int

const (
	CapabilityOpen Capability = iota
	CapabilityPrivileged
)

func (c Capability) String() string {
	if c == CapabilityPrivileged {
		return "privileged"
	}
	return "open"
}
