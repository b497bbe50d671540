package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyConfig contains the text tables loaded from YAML
type PolicyConfig struct {
	BlockedContent []string         `yaml:"blocked_content"`
	Insults        InsultConfig     `yaml:"insults"`
	NamePatterns   []string         `yaml:"name_patterns"`
	Apologies      []string         `yaml:"apologies"`
	Reactions      []string         `yaml:"reactions"`
	ReactionChance float64          `yaml:"reaction_chance"`
	Titles         []string         `yaml:"titles"`
	Messages       MessageTemplates `yaml:"messages"`
	Prompt         PromptSection    `yaml:"prompt"`

	// Source is the file the policy was read from, empty for defaults
	Source string `yaml:"-"`
}

// InsultConfig contains reactive insult patterns and canned retorts
type InsultConfig struct {
	Patterns []string `yaml:"patterns"`
	Retorts  []string `yaml:"retorts"`
}

// MessageTemplates contains user-visible reply templates.
// Placeholders use the {{name}} form.
type MessageTemplates struct {
	Welcome          string `yaml:"welcome"`
	Goodbye          string `yaml:"goodbye"`
	Warning          string `yaml:"warning"`
	Removed          string `yaml:"removed"`
	SpamRemoved      string `yaml:"spam_removed"`
	PermissionDenied string `yaml:"permission_denied"`
	PrivilegedOnly   string `yaml:"privileged_only"`
	Cooldown         string `yaml:"cooldown"`
	LevelUp          string `yaml:"level_up"`
	Muted            string `yaml:"muted"`
	Unmuted          string `yaml:"unmuted"`
	Credited         string `yaml:"credited"`
	Captured         string `yaml:"captured"`
	NothingToReveal  string `yaml:"nothing_to_reveal"`
	UnknownCommand   string `yaml:"unknown_command"`
}

// PromptSection contains generator prompt settings
type PromptSection struct {
	SystemPrompt    string `yaml:"system_prompt"`
	MaxHistoryCount int    `yaml:"max_history_count"`
	MaxPromptRunes  int    `yaml:"max_prompt_runes"`
}

// LoadPolicyConfig loads policy tables from YAML file
func LoadPolicyConfig(configPath string) (*PolicyConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/policy.yaml",
			"/etc/chatwarden/policy.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "policy.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data, loadedPath = b, p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, &ConfigError{Field: "POLICY_CONFIG_PATH", Message: "cannot read " + configPath}
		}
		// Return default config if no file found
		return DefaultPolicyConfig(), nil
	}

	var config PolicyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	config.Source = loadedPath

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PolicyConfig) fillDefaults() {
	defaults := DefaultPolicyConfig()

	if c.BlockedContent == nil {
		c.BlockedContent = defaults.BlockedContent
	}
	if len(c.Insults.Patterns) == 0 {
		c.Insults.Patterns = defaults.Insults.Patterns
	}
	if len(c.Insults.Retorts) == 0 {
		c.Insults.Retorts = defaults.Insults.Retorts
	}
	if len(c.Apologies) == 0 {
		c.Apologies = defaults.Apologies
	}
	if len(c.Reactions) == 0 {
		c.Reactions = defaults.Reactions
	}
	if c.ReactionChance == 0 {
		c.ReactionChance = defaults.ReactionChance
	}
	if len(c.Titles) == 0 {
		c.Titles = defaults.Titles
	}

	m, d := &c.Messages, defaults.Messages
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.Welcome, d.Welcome)
	fill(&m.Goodbye, d.Goodbye)
	fill(&m.Warning, d.Warning)
	fill(&m.Removed, d.Removed)
	fill(&m.SpamRemoved, d.SpamRemoved)
	fill(&m.PermissionDenied, d.PermissionDenied)
	fill(&m.PrivilegedOnly, d.PrivilegedOnly)
	fill(&m.Cooldown, d.Cooldown)
	fill(&m.LevelUp, d.LevelUp)
	fill(&m.Muted, d.Muted)
	fill(&m.Unmuted, d.Unmuted)
	fill(&m.Credited, d.Credited)
	fill(&m.Captured, d.Captured)
	fill(&m.NothingToReveal, d.NothingToReveal)
	fill(&m.UnknownCommand, d.UnknownCommand)
}

// Render substitutes {{key}} placeholders
func Render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// DefaultPolicyConfig returns the default policy tables
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		BlockedContent: []string{"chat.whatsapp.com", "t.me/", "discord.gg/", "bit.ly/"},
		Insults: InsultConfig{
			Patterns: []string{`\bstupid bot\b`, `\buseless bot\b`, `\bdumb bot\b`},
			Retorts: []string{
				"I'm rubber, you're glue.",
				"Noted. Filed under things I will ignore.",
			},
		},
		NamePatterns: []string{`\bwarden\b`},
		Apologies: []string{
			"Sorry, something went wrong on my side. Try again in a moment.",
		},
		Reactions:      []string{"THUMBSUP", "LAUGH", "HEART"},
		ReactionChance: 0.3,
		Titles:         []string{"Newcomer", "Regular", "Contributor", "Veteran", "Elder", "Legend"},
		Messages: MessageTemplates{
			Welcome:          "Welcome {{mention}}!",
			Goodbye:          "{{name}} left the chat.",
			Warning:          "{{mention}} links are not allowed here. Warning {{count}}/{{max}}.",
			Removed:          "{{mention}} reached {{max}} warnings and was removed.",
			SpamRemoved:      "{{mention}} was removed for flooding the chat.",
			PermissionDenied: "I need admin rights in this chat to do that.",
			PrivilegedOnly:   "Only operators can use {{cmd}}.",
			Cooldown:         "Slow down, try again in {{seconds}}s.",
			LevelUp:          "{{mention}} reached level {{level}} ({{title}})!",
			Muted:            "{{target}} muted for {{minutes}} minutes.",
			Unmuted:          "{{target}} unmuted.",
			Credited:         "{{target}} received {{points}} XP.",
			Captured:         "Saved a view-once message from {{name}}. Send {{prefix}}reveal to get it back.",
			NothingToReveal:  "Nothing to reveal.",
			UnknownCommand:   "Unknown command {{cmd}}. Try {{prefix}}help.",
		},
	}
}
