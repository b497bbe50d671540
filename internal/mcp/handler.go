package mcp

import (
	"fmt"
)

const defaultMuteMinutes = 10

// Handler handles MCP tool calls using the HTTP client
type Handler struct {
	client *Client
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// HandleToolCall handles a tool call and returns the result
func (h *Handler) HandleToolCall(name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case "warden_get_policy":
		return h.GetPolicy(getStringArg(args, "chat_id", ""))
	case "warden_set_policy":
		return h.SetPolicy(getStringArg(args, "chat_id", ""), PolicyPatch{
			AIEnabled:             getBoolArg(args, "ai_enabled"),
			WelcomeEnabled:        getBoolArg(args, "welcome_enabled"),
			GoodbyeEnabled:        getBoolArg(args, "goodbye_enabled"),
			SpamFilterEnabled:     getBoolArg(args, "spam_filter_enabled"),
			LinkProtectionEnabled: getBoolArg(args, "link_protection_enabled"),
		})
	case "warden_list_mutes":
		return h.ListMutes()
	case "warden_mute":
		return h.Mute(getStringArg(args, "actor_id", ""), getIntArg(args, "minutes", defaultMuteMinutes))
	case "warden_unmute":
		return h.Unmute(getStringArg(args, "actor_id", ""))
	case "warden_get_warnings":
		return h.GetWarnings(getStringArg(args, "actor_id", ""))
	case "warden_reset_warnings":
		return h.ResetWarnings(getStringArg(args, "actor_id", ""))
	case "warden_get_profile":
		return h.GetProfile(getStringArg(args, "actor_id", ""))
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// ============ Policy Handlers ============

// GetPolicy returns a group's feature switches
func (h *Handler) GetPolicy(chatID string) (interface{}, error) {
	if chatID == "" {
		return nil, fmt.Errorf("chat_id is required")
	}
	p, err := h.client.GetPolicy(chatID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"chat_id": chatID, "policy": p}, nil
}

// SetPolicy updates a group's feature switches
func (h *Handler) SetPolicy(chatID string, patch PolicyPatch) (interface{}, error) {
	if chatID == "" {
		return nil, fmt.Errorf("chat_id is required")
	}
	if patch == (PolicyPatch{}) {
		return nil, fmt.Errorf("at least one switch is required")
	}
	p, err := h.client.SetPolicy(chatID, patch)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"chat_id": chatID,
		"policy":  p,
	}, nil
}

// ============ Mute Handlers ============

// ListMutes returns every active mute
func (h *Handler) ListMutes() (interface{}, error) {
	mutes, err := h.client.ListMutes()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"mutes": mutes}, nil
}

// Mute silences an actor
func (h *Handler) Mute(actorID string, minutes int) (interface{}, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor_id is required")
	}
	if minutes <= 0 {
		minutes = defaultMuteMinutes
	}
	m, err := h.client.Mute(actorID, minutes)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s muted until %s", m.ActorID, m.Until.Format("15:04:05")),
	}, nil
}

// Unmute lifts an actor's mute
func (h *Handler) Unmute(actorID string) (interface{}, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor_id is required")
	}
	if err := h.client.Unmute(actorID); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s unmuted", actorID),
	}, nil
}

// ============ Warning Handlers ============

// GetWarnings returns an actor's warning count
func (h *Handler) GetWarnings(actorID string) (interface{}, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor_id is required")
	}
	return h.client.GetWarnings(actorID)
}

// ResetWarnings clears an actor's warnings
func (h *Handler) ResetWarnings(actorID string) (interface{}, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor_id is required")
	}
	if err := h.client.ResetWarnings(actorID); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Warnings cleared for %s", actorID),
	}, nil
}

// ============ Profile Handlers ============

// GetProfile returns an actor's progression
func (h *Handler) GetProfile(actorID string) (interface{}, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor_id is required")
	}
	return h.client.GetProfile(actorID)
}

// ============ Helpers ============

func getStringArg(args map[string]interface{}, key, defaultValue string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

func getIntArg(args map[string]interface{}, key string, defaultValue int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	if v, ok := args[key].(int); ok {
		return v
	}
	return defaultValue
}

func getBoolArg(args map[string]interface{}, key string) *bool {
	if v, ok := args[key].(bool); ok {
		return &v
	}
	return nil
}
