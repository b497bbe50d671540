package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ChatInput selects a group
type ChatInput struct {
	ChatID string `json:"chat_id" jsonschema:"the chat id of the group"`
}

// SetPolicyInput is the input of warden_set_policy
type SetPolicyInput struct {
	ChatID                string `json:"chat_id" jsonschema:"the chat id of the group"`
	AIEnabled             *bool  `json:"ai_enabled,omitempty" jsonschema:"enable AI replies"`
	WelcomeEnabled        *bool  `json:"welcome_enabled,omitempty" jsonschema:"enable welcome messages"`
	GoodbyeEnabled        *bool  `json:"goodbye_enabled,omitempty" jsonschema:"enable goodbye messages"`
	SpamFilterEnabled     *bool  `json:"spam_filter_enabled,omitempty" jsonschema:"enable the flood filter"`
	LinkProtectionEnabled *bool  `json:"link_protection_enabled,omitempty" jsonschema:"enable link protection"`
}

// ActorInput selects a member
type ActorInput struct {
	ActorID string `json:"actor_id" jsonschema:"the member id"`
}

// MuteInput is the input of warden_mute
type MuteInput struct {
	ActorID string `json:"actor_id" jsonschema:"the member id"`
	Minutes int    `json:"minutes,omitempty" jsonschema:"mute duration in minutes, default 10"`
}

// EmptyInput is the input of tools without arguments
type EmptyInput struct{}

// NewServer creates the warden MCP server. Every tool call is relayed to
// the admin API through the handler.
func NewServer(h *Handler, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{
		Name:    "warden-tools",
		Version: version,
	}, nil)

	addTool[ChatInput](server, h, "warden_get_policy")
	addTool[SetPolicyInput](server, h, "warden_set_policy")
	addTool[EmptyInput](server, h, "warden_list_mutes")
	addTool[MuteInput](server, h, "warden_mute")
	addTool[ActorInput](server, h, "warden_unmute")
	addTool[ActorInput](server, h, "warden_get_warnings")
	addTool[ActorInput](server, h, "warden_reset_warnings")
	addTool[ActorInput](server, h, "warden_get_profile")
	return server
}

// Run serves the tools over stdio until ctx is done
func Run(ctx context.Context, server *sdk.Server) error {
	return server.Run(ctx, &sdk.StdioTransport{})
}

func addTool[In any](server *sdk.Server, h *Handler, name string) {
	sdk.AddTool(server, &sdk.Tool{
		Name:        name,
		Description: toolDescription(name),
	}, func(ctx context.Context, req *sdk.CallToolRequest, input In) (*sdk.CallToolResult, any, error) {
		args, err := toArgs(input)
		if err != nil {
			return toolResult(nil, err), nil, nil
		}
		result, err := h.HandleToolCall(name, args)
		return toolResult(result, err), nil, nil
	})
}

// toArgs converts a typed input into the argument map HandleToolCall reads
func toArgs(input any) (map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	args := make(map[string]interface{})
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// toolResult formats a tool result as JSON text content
func toolResult(result interface{}, err error) *sdk.CallToolResult {
	if err != nil {
		return &sdk.CallToolResult{
			IsError: true,
			Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
		}
	}
	content := ""
	if result != nil {
		if jsonBytes, err := json.Marshal(result); err == nil {
			content = string(jsonBytes)
		} else {
			content = fmt.Sprintf("%v", result)
		}
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: content}},
	}
}
