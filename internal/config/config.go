package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider identifiers. The dispatch table in internal/router refers to these.
const (
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
	ProviderKimi     = "kimi"
	ProviderQwen     = "qwen"
	ProviderQwenCode = "qwen_code"
	ProviderDeepSeek = "deepseek"
	ProviderDoubao   = "doubao"
)

const (
	StyleOpenAI = "openai"
	StyleGemini = "gemini"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Auth       AuthConfig                `yaml:"auth"`
	Storage    StorageConfig             `yaml:"storage"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Chat       ChatConfig                `yaml:"chat"`
	RateLimits map[string]RateLimitRule  `yaml:"rate_limits"`
	Abuse      AbuseConfig               `yaml:"abuse"`
	Signaling  SignalingConfig           `yaml:"signaling"`
	Intent     IntentConfig              `yaml:"intent"`
	Users      []string                  `yaml:"users"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AdminToken     string   `yaml:"admin_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AuthConfig holds the bearer token verification settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// StorageConfig selects the collaborator store implementation.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	DisplayName string        `yaml:"display_name"`
	APIStyle    string        `yaml:"api_style"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Streaming   bool          `yaml:"streaming"`
	Multimodal  bool          `yaml:"multimodal"`
	Timeout     time.Duration `yaml:"timeout"`
	Headers     Headers       `yaml:"headers"`
	Models      []ModelConfig `yaml:"models"`

	// Set when the YAML entry names the key explicitly.
	streamingSet  bool
	multimodalSet bool
}

// UnmarshalYAML decodes a provider entry and records which boolean keys were
// present, so absent ones inherit the catalogue value.
func (p *ProviderConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain ProviderConfig
	if err := node.Decode((*plain)(p)); err != nil {
		return err
	}
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "streaming":
			p.streamingSet = true
		case "multimodal":
			p.multimodalSet = true
		}
	}
	return nil
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// ModelConfig describes a model exposed by a provider.
type ModelConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ChatConfig holds the default generation profile for conversational chat.
type ChatConfig struct {
	DefaultModel  string  `yaml:"default_model"`
	HistoryWindow int     `yaml:"history_window"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	TopP          float64 `yaml:"top_p"`
}

// RateLimitRule bounds requests per client IP for one endpoint.
type RateLimitRule struct {
	MaxRequests    int           `yaml:"max_requests"`
	Window         time.Duration `yaml:"window"`
	BlockMalicious bool          `yaml:"block_malicious"`
}

// AbuseConfig drives dangerous-content detection and the IP blacklist.
type AbuseConfig struct {
	BlacklistDuration time.Duration `yaml:"blacklist_duration"`
	Patterns          []string      `yaml:"patterns"`
}

// SignalingConfig tunes the call session garbage collector.
type SignalingConfig struct {
	PendingTTL    time.Duration `yaml:"pending_ttl"`
	TerminalTTL   time.Duration `yaml:"terminal_ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// IntentConfig customises the function router content.
type IntentConfig struct {
	CustomReplies map[string]string   `yaml:"custom_replies"`
	Fallbacks     map[string][]string `yaml:"fallbacks"`
}

// envKeys maps provider identifiers to the environment variable holding their default key.
var envKeys = map[string]string{
	ProviderOpenAI:   "OPENAI_API_KEY",
	ProviderGemini:   "GEMINI_API_KEY",
	ProviderKimi:     "KIMI_API_KEY",
	ProviderQwen:     "QWEN_API_KEY",
	ProviderQwenCode: "QWEN_CODE_API_KEY",
	ProviderDeepSeek: "DEEPSEEK_API_KEY",
	ProviderDoubao:   "DOUBAO_API_KEY",
}

// Load reads YAML configuration from disk, applies defaults and environment
// overrides, and validates the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	cfg.applyProviderDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyProviderDefaults() {
	defaults := DefaultProviders()
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig, len(defaults))
	}
	for id, def := range defaults {
		p, ok := c.Providers[id]
		if !ok {
			c.Providers[id] = def
			continue
		}
		if p.DisplayName == "" {
			p.DisplayName = def.DisplayName
		}
		if p.APIStyle == "" {
			p.APIStyle = def.APIStyle
		}
		if p.BaseURL == "" {
			p.BaseURL = def.BaseURL
		}
		if p.Timeout == 0 {
			p.Timeout = def.Timeout
		}
		if !p.streamingSet {
			p.Streaming = def.Streaming
		}
		if !p.multimodalSet {
			p.Multimodal = def.Multimodal
		}
		if len(p.Models) == 0 {
			p.Models = def.Models
		}
		c.Providers[id] = p
	}
}

func (c *Config) applyEnv() {
	for id, key := range envKeys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			p := c.Providers[id]
			p.APIKey = v
			c.Providers[id] = p
		}
	}
	if v := os.Getenv("CHATRELAY_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CHATRELAY_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DSN = v
		if c.Storage.Driver == "" || c.Storage.Driver == StorageMemory {
			c.Storage.Driver = StoragePostgres
		}
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret must be provided (or CHATRELAY_JWT_SECRET)")
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("storage.dsn must be provided for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q must be one of %q or %q", c.Storage.Driver, StorageMemory, StoragePostgres)
	}

	for name, provider := range c.Providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	if c.Chat.HistoryWindow < 0 {
		return fmt.Errorf("chat.history_window must not be negative, got %d", c.Chat.HistoryWindow)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return fmt.Errorf("chat.temperature must be within [0, 2], got %.2f", c.Chat.Temperature)
	}
	if c.Chat.MaxTokens < 1 || c.Chat.MaxTokens > 4000 {
		return fmt.Errorf("chat.max_tokens must be within [1, 4000], got %d", c.Chat.MaxTokens)
	}

	for endpoint, rule := range c.RateLimits {
		if rule.MaxRequests <= 0 {
			return fmt.Errorf("rate_limits.%s.max_requests must be positive", endpoint)
		}
		if rule.Window <= 0 {
			return fmt.Errorf("rate_limits.%s.window must be positive", endpoint)
		}
	}

	if c.Abuse.BlacklistDuration <= 0 {
		return errors.New("abuse.blacklist_duration must be positive")
	}
	for _, pattern := range c.Abuse.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("abuse.patterns: %q does not compile: %w", pattern, err)
		}
	}

	if c.Signaling.PendingTTL <= 0 || c.Signaling.TerminalTTL <= 0 {
		return errors.New("signaling.pending_ttl and signaling.terminal_ttl must be positive")
	}
	if strings.TrimSpace(c.Signaling.SweepSchedule) == "" {
		return errors.New("signaling.sweep_schedule must be provided")
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}
	switch provider.APIStyle {
	case StyleOpenAI, StyleGemini:
	default:
		return fmt.Errorf("provider %s: api_style %q must be one of %q or %q", name, provider.APIStyle, StyleOpenAI, StyleGemini)
	}
	if provider.Timeout <= 0 {
		return fmt.Errorf("provider %s: timeout must be positive", name)
	}

	for _, model := range provider.Models {
		if strings.TrimSpace(model.ID) == "" {
			return fmt.Errorf("provider %s: model id must not be empty", name)
		}
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
