package mcp

// ToolDefinition names an MCP tool and tells the model when to use it
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GetToolDefinitions returns all available MCP tool definitions
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		// Group policy tools
		{
			Name:        "warden_get_policy",
			Description: "Show a group's moderation switches: AI replies, welcome and goodbye messages, spam filter, link protection.",
		},
		{
			Name:        "warden_set_policy",
			Description: "Turn group switches on or off. Only the switches given are changed. Use when a moderator says 'stop replying in this group', 'allow links here', etc.",
		},
		// Mute tools
		{
			Name:        "warden_list_mutes",
			Description: "List every muted member and when the mute ends.",
		},
		{
			Name:        "warden_mute",
			Description: "Mute a member: the bot ignores every message from them until the mute ends. Defaults to 10 minutes.",
		},
		{
			Name:        "warden_unmute",
			Description: "Lift a member's mute before it ends.",
		},
		// Warning ledger tools
		{
			Name:        "warden_get_warnings",
			Description: "Show how many blocked-content warnings a member has and the removal threshold.",
		},
		{
			Name:        "warden_reset_warnings",
			Description: "Clear a member's warnings. Use when a moderator forgives a member.",
		},
		// Profile tools
		{
			Name:        "warden_get_profile",
			Description: "Show a member's XP, level, title and talkative preference.",
		},
	}
}

func toolDescription(name string) string {
	for _, t := range GetToolDefinitions() {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}
