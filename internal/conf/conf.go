package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devricklin/chatwarden/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Feishu transport (optional when the gateway is configured)
	Feishu FeishuConfig

	// Websocket gateway transport (optional when Feishu is configured)
	Gateway GatewayConfig

	// Bot identity and operators
	Bot BotConfig

	// State manager bounds
	Limits LimitsConfig

	// Generative response configuration
	AI AIConfig

	// Profile store configuration
	Profile ProfileConfig

	// Admin API configuration
	API APIConfig

	// Policy tables (loaded from YAML)
	Policy *PolicyConfig

	LogLevel string

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// Enabled reports whether Feishu credentials are present
func (c FeishuConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// GatewayConfig contains websocket gateway configuration
type GatewayConfig struct {
	URL   string
	Token string
}

// Enabled reports whether a gateway URL is present
func (c GatewayConfig) Enabled() bool {
	return c.URL != ""
}

// BotConfig contains bot identity configuration
type BotConfig struct {
	Name             string
	Handle           string // numeric handle matched as "@<handle>"
	CommandPrefix    string
	OverrideSigil    string
	Privileged       []string
	ModeratorChatID  string
	ModeratorAccount string
}

// LimitsConfig contains state manager bounds
type LimitsConfig struct {
	Cooldown         time.Duration
	SpamWindow       time.Duration
	SpamThreshold    int
	MaxWarnings      int
	CacheCapacity    int
	CacheTTL         time.Duration
	VaultExpiration  time.Duration
	VaultSweep       time.Duration
	PresenceHold     time.Duration
	TranscriptLength int
	XPPerMessage     int
}

// AIConfig contains generative response configuration
type AIConfig struct {
	BaseProbability float64
	PrivilegedBoost float64
	TalkativeBoost  float64
	AlwaysRespond   bool
	CallsPerMinute  int

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// ProfileConfig contains profile store configuration
type ProfileConfig struct {
	Store    string // sqlite or redis
	DBPath   string
	RedisURL string
}

// APIConfig contains admin API configuration
type APIConfig struct {
	Port int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Profile DB path
	profileDBPath := os.Getenv("PROFILE_DB_PATH")
	if profileDBPath == "" {
		homeDir, _ := os.UserHomeDir()
		profileDBPath = filepath.Join(homeDir, ".chatwarden", "profiles.db")
	}

	profileStore := strings.ToLower(os.Getenv("PROFILE_STORE"))
	if profileStore == "" {
		profileStore = "sqlite"
	}

	prefix := os.Getenv("COMMAND_PREFIX")
	if prefix == "" {
		prefix = "/"
	}
	sigil := os.Getenv("OVERRIDE_SIGIL")
	if sigil == "" {
		sigil = "$"
	}

	botName := os.Getenv("BOT_NAME")
	if botName == "" {
		botName = "Warden"
	}

	geminiModel := os.Getenv("GEMINI_MODEL")
	if geminiModel == "" {
		geminiModel = "gemini-2.0-flash"
	}
	openaiModel := os.Getenv("OPENAI_MODEL")
	if openaiModel == "" {
		openaiModel = "gpt-4o-mini"
	}

	moderatorAccount := os.Getenv("MODERATOR_ACCOUNT")
	if moderatorAccount == "" {
		moderatorAccount = "feishu"
	}

	// Load policy tables from YAML
	policy, err := LoadPolicyConfig(os.Getenv("POLICY_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		Gateway: GatewayConfig{
			URL:   os.Getenv("GATEWAY_URL"),
			Token: os.Getenv("GATEWAY_TOKEN"),
		},
		Bot: BotConfig{
			Name:             botName,
			Handle:           os.Getenv("BOT_HANDLE"),
			CommandPrefix:    prefix,
			OverrideSigil:    sigil,
			Privileged:       splitList(os.Getenv("PRIVILEGED_ACTORS")),
			ModeratorChatID:  os.Getenv("MODERATOR_CHAT_ID"),
			ModeratorAccount: moderatorAccount,
		},
		Limits: LimitsConfig{
			Cooldown:         envMillis("COOLDOWN_MS", 5000),
			SpamWindow:       envMillis("SPAM_WINDOW_MS", 3000),
			SpamThreshold:    envInt("SPAM_THRESHOLD", 5),
			MaxWarnings:      envInt("MAX_WARNINGS", 3),
			CacheCapacity:    envInt("CACHE_CAPACITY", 100),
			CacheTTL:         time.Duration(envInt("CACHE_TTL_SECONDS", 600)) * time.Second,
			VaultExpiration:  time.Duration(envInt("VAULT_EXPIRATION_SECONDS", 300)) * time.Second,
			VaultSweep:       time.Duration(envInt("VAULT_SWEEP_SECONDS", 60)) * time.Second,
			PresenceHold:     envMillis("PRESENCE_HOLD_MS", 4000),
			TranscriptLength: envInt("TRANSCRIPT_LENGTH", 20),
			XPPerMessage:     envInt("XP_PER_MESSAGE", 5),
		},
		AI: AIConfig{
			BaseProbability: envFloat("AI_BASE_PROBABILITY", 0.05),
			PrivilegedBoost: envFloat("AI_PRIVILEGED_BOOST", 0.25),
			TalkativeBoost:  envFloat("AI_TALKATIVE_BOOST", 0.15),
			AlwaysRespond:   os.Getenv("AI_ALWAYS_RESPOND") == "true",
			CallsPerMinute:  envInt("AI_CALLS_PER_MINUTE", 30),
			GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
			GeminiModel:     geminiModel,
			OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
			OpenAIModel:     openaiModel,
		},
		Profile: ProfileConfig{
			Store:    profileStore,
			DBPath:   profileDBPath,
			RedisURL: os.Getenv("REDIS_URL"),
		},
		API: APIConfig{
			Port: envInt("API_PORT", 9876),
		},
		Policy:   policy,
		LogLevel: os.Getenv("LOG_LEVEL"),
		Debug:    os.Getenv("DEBUG") == "true",
	}, nil
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envMillis(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToAbuseConfig converts to abuse detector configuration
func (c *Config) ToAbuseConfig() usecase.AbuseConfig {
	return usecase.AbuseConfig{
		BlockedPatterns: c.Policy.BlockedContent,
		SpamWindow:      c.Limits.SpamWindow,
		SpamThreshold:   c.Limits.SpamThreshold,
		MaxWarnings:     c.Limits.MaxWarnings,
	}
}

// ToResponderConfig converts to responder configuration
func (c *Config) ToResponderConfig() usecase.ResponderConfig {
	return usecase.ResponderConfig{
		BaseProbability: c.AI.BaseProbability,
		PrivilegedBoost: c.AI.PrivilegedBoost,
		TalkativeBoost:  c.AI.TalkativeBoost,
		AlwaysRespond:   c.AI.AlwaysRespond,
		NamePatterns:    c.Policy.NamePatterns,
		Handle:          c.Bot.Handle,
		CallsPerMinute:  int64(c.AI.CallsPerMinute),
	}
}

// ToPromptConfig converts to prompt configuration
func (c *Config) ToPromptConfig() usecase.PromptConfig {
	cfg := usecase.DefaultPromptConfig
	cfg.BotName = c.Bot.Name
	if c.Policy == nil {
		return cfg
	}
	if c.Policy.Prompt.SystemPrompt != "" {
		cfg.SystemPrompt = c.Policy.Prompt.SystemPrompt
	}
	if c.Policy.Prompt.MaxHistoryCount > 0 {
		cfg.MaxHistoryCount = c.Policy.Prompt.MaxHistoryCount
	}
	if c.Policy.Prompt.MaxPromptRunes > 0 {
		cfg.MaxPromptRunes = c.Policy.Prompt.MaxPromptRunes
	}
	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Feishu.Enabled() && !c.Gateway.Enabled() {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET or GATEWAY_URL", Message: "at least one transport is required"}
	}
	if c.Bot.CommandPrefix == c.Bot.OverrideSigil {
		return &ConfigError{Field: "OVERRIDE_SIGIL", Message: "must differ from COMMAND_PREFIX"}
	}
	if c.Limits.Cooldown < 0 || c.Limits.SpamWindow <= 0 {
		return &ConfigError{Field: "COOLDOWN_MS/SPAM_WINDOW_MS", Message: "must be positive"}
	}
	if c.Limits.SpamThreshold < 1 {
		return &ConfigError{Field: "SPAM_THRESHOLD", Message: "must be at least 1"}
	}
	if c.Limits.MaxWarnings < 1 {
		return &ConfigError{Field: "MAX_WARNINGS", Message: "must be at least 1"}
	}
	if c.Limits.CacheCapacity < 1 {
		return &ConfigError{Field: "CACHE_CAPACITY", Message: "must be at least 1"}
	}
	if c.Limits.VaultSweep <= 0 || c.Limits.VaultExpiration <= 0 {
		return &ConfigError{Field: "VAULT_SWEEP_SECONDS/VAULT_EXPIRATION_SECONDS", Message: "must be positive"}
	}
	for _, p := range []float64{c.AI.BaseProbability, c.AI.PrivilegedBoost, c.AI.TalkativeBoost} {
		if p < 0 || p > 1 {
			return &ConfigError{Field: "AI_*_PROBABILITY/BOOST", Message: "must be within [0,1]"}
		}
	}
	switch c.Profile.Store {
	case "sqlite":
	case "redis":
		if c.Profile.RedisURL == "" {
			return &ConfigError{Field: "REDIS_URL", Message: "required when PROFILE_STORE=redis"}
		}
	default:
		return &ConfigError{Field: "PROFILE_STORE", Message: "must be sqlite or redis"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
