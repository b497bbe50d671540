package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP client for the chatwarden admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new MCP client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Policy is a group's feature switches
type Policy struct {
	AIEnabled             bool `json:"ai_enabled"`
	WelcomeEnabled        bool `json:"welcome_enabled"`
	GoodbyeEnabled        bool `json:"goodbye_enabled"`
	SpamFilterEnabled     bool `json:"spam_filter_enabled"`
	LinkProtectionEnabled bool `json:"link_protection_enabled"`
}

// PolicyPatch is a partial policy update
type PolicyPatch struct {
	AIEnabled             *bool `json:"ai_enabled,omitempty"`
	WelcomeEnabled        *bool `json:"welcome_enabled,omitempty"`
	GoodbyeEnabled        *bool `json:"goodbye_enabled,omitempty"`
	SpamFilterEnabled     *bool `json:"spam_filter_enabled,omitempty"`
	LinkProtectionEnabled *bool `json:"link_protection_enabled,omitempty"`
}

// Mute is one active mute
type Mute struct {
	ActorID string    `json:"actor_id"`
	Until   time.Time `json:"until"`
}

// Warnings is an actor's warning count
type Warnings struct {
	ActorID string `json:"actor_id"`
	Count   int    `json:"count"`
	Max     int    `json:"max"`
}

// Profile is an actor's progression
type Profile struct {
	ActorID   string `json:"actor_id"`
	XP        int    `json:"xp"`
	Level     int    `json:"level"`
	Title     string `json:"title"`
	Talkative bool   `json:"talkative"`
}

// ============ Policy Operations ============

// GetPolicy gets the policy of a chat
func (c *Client) GetPolicy(chatID string) (*Policy, error) {
	var p Policy
	if err := c.get("/api/policy/"+url.PathEscape(chatID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPolicy applies a partial update and returns the resulting policy
func (c *Client) SetPolicy(chatID string, patch PolicyPatch) (*Policy, error) {
	var p Policy
	if err := c.post("/api/policy/"+url.PathEscape(chatID), patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ============ Mute Operations ============

// ListMutes gets every active mute
func (c *Client) ListMutes() ([]Mute, error) {
	var result struct {
		Mutes []Mute `json:"mutes"`
	}
	if err := c.get("/api/mutes", &result); err != nil {
		return nil, err
	}
	return result.Mutes, nil
}

// Mute mutes an actor for the given minutes
func (c *Client) Mute(actorID string, minutes int) (*Mute, error) {
	var m Mute
	body := map[string]interface{}{"actor_id": actorID, "minutes": minutes}
	if err := c.post("/api/mutes", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Unmute lifts an actor's mute
func (c *Client) Unmute(actorID string) error {
	return c.delete(fmt.Sprintf("/api/mutes/%s", url.PathEscape(actorID)))
}

// ============ Warning Operations ============

// GetWarnings gets an actor's warning count
func (c *Client) GetWarnings(actorID string) (*Warnings, error) {
	var w Warnings
	if err := c.get(fmt.Sprintf("/api/warnings/%s", url.PathEscape(actorID)), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ResetWarnings clears an actor's warnings
func (c *Client) ResetWarnings(actorID string) error {
	return c.delete(fmt.Sprintf("/api/warnings/%s", url.PathEscape(actorID)))
}

// ============ Profile Operations ============

// GetProfile gets an actor's profile
func (c *Client) GetProfile(actorID string) (*Profile, error) {
	var p Profile
	if err := c.get(fmt.Sprintf("/api/profile/%s", url.PathEscape(actorID)), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP DELETE failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
