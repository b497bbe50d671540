package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "cli_x")
	t.Setenv("FEISHU_APP_SECRET", "secret")
	t.Setenv("POLICY_CONFIG_PATH", "")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Limits.Cooldown != 5*time.Second {
		t.Errorf("Cooldown = %v", cfg.Limits.Cooldown)
	}
	if cfg.Limits.SpamThreshold != 5 || cfg.Limits.MaxWarnings != 3 {
		t.Errorf("thresholds = %d/%d", cfg.Limits.SpamThreshold, cfg.Limits.MaxWarnings)
	}
	if cfg.Limits.CacheCapacity != 100 || cfg.Limits.CacheTTL != 600*time.Second {
		t.Errorf("cache = %d/%v", cfg.Limits.CacheCapacity, cfg.Limits.CacheTTL)
	}
	if cfg.Bot.CommandPrefix != "/" || cfg.Bot.OverrideSigil != "$" {
		t.Errorf("prefix/sigil = %q/%q", cfg.Bot.CommandPrefix, cfg.Bot.OverrideSigil)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_URL", "ws://localhost:1")
	t.Setenv("COOLDOWN_MS", "1500")
	t.Setenv("SPAM_THRESHOLD", "8")
	t.Setenv("PRIVILEGED_ACTORS", " a , ,b")
	t.Setenv("AI_ALWAYS_RESPOND", "true")
	t.Setenv("AI_BASE_PROBABILITY", "not-a-number")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Limits.Cooldown != 1500*time.Millisecond {
		t.Errorf("Cooldown = %v", cfg.Limits.Cooldown)
	}
	if cfg.Limits.SpamThreshold != 8 {
		t.Errorf("SpamThreshold = %d", cfg.Limits.SpamThreshold)
	}
	if len(cfg.Bot.Privileged) != 2 || cfg.Bot.Privileged[1] != "b" {
		t.Errorf("Privileged = %v", cfg.Bot.Privileged)
	}
	if !cfg.AI.AlwaysRespond {
		t.Error("Expected AlwaysRespond")
	}
	if cfg.AI.BaseProbability != 0.05 {
		t.Errorf("Expected fallback probability, got %v", cfg.AI.BaseProbability)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Feishu:  FeishuConfig{AppID: "a", AppSecret: "b"},
			Bot:     BotConfig{CommandPrefix: "/", OverrideSigil: "$"},
			Limits:  LimitsConfig{Cooldown: time.Second, SpamWindow: time.Second, SpamThreshold: 1, MaxWarnings: 1, CacheCapacity: 1, VaultSweep: time.Second, VaultExpiration: time.Second},
			Profile: ProfileConfig{Store: "sqlite"},
			Policy:  DefaultPolicyConfig(),
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"no transport", func(c *Config) { c.Feishu = FeishuConfig{} }, "FEISHU_APP_ID/FEISHU_APP_SECRET or GATEWAY_URL"},
		{"same sigil", func(c *Config) { c.Bot.OverrideSigil = "/" }, "OVERRIDE_SIGIL"},
		{"zero warnings", func(c *Config) { c.Limits.MaxWarnings = 0 }, "MAX_WARNINGS"},
		{"redis without url", func(c *Config) { c.Profile.Store = "redis" }, "REDIS_URL"},
		{"unknown store", func(c *Config) { c.Profile.Store = "mongo" }, "PROFILE_STORE"},
		{"bad probability", func(c *Config) { c.AI.BaseProbability = 2 }, "AI_*_PROBABILITY/BOOST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mod(c)
			err := c.Validate()
			ce, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Expected *ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestLoadPolicyConfigFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	yaml := `
blocked_content:
  - "example.invalid"
titles: ["Rookie"]
messages:
  welcome: "Hi {{mention}}"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPolicyConfig(path)
	if err != nil {
		t.Fatalf("LoadPolicyConfig: %v", err)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q", cfg.Source)
	}
	if len(cfg.BlockedContent) != 1 || cfg.BlockedContent[0] != "example.invalid" {
		t.Errorf("BlockedContent = %v", cfg.BlockedContent)
	}
	if cfg.Messages.Welcome != "Hi {{mention}}" {
		t.Errorf("Welcome = %q", cfg.Messages.Welcome)
	}
	if cfg.Messages.Goodbye == "" || len(cfg.Apologies) == 0 {
		t.Error("Expected defaults for missing fields")
	}
}

func TestLoadPolicyConfigMissingExplicitPath(t *testing.T) {
	if _, err := LoadPolicyConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing explicit path")
	}
}

func TestRender(t *testing.T) {
	got := Render("{{a}} and {{b}} and {{c}}", map[string]string{"a": "1", "b": "2"})
	if got != "1 and 2 and {{c}}" {
		t.Errorf("Render = %q", got)
	}
}
