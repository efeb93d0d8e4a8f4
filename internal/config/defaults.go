package config

import "time"

const (
	defaultPort            = 8080
	defaultProviderTimeout = 30 * time.Second
)

// DefaultPatterns are the dangerous-content expressions checked by the abuse policy.
var DefaultPatterns = []string{
	`(?i)<script`,
	`(?i)javascript:`,
	`(?i)on\w+\s*=`,
	`(?i)eval\(`,
	`(?i)document\.cookie`,
	`(?i)window\.location`,
	`(?i)expression\(`,
	`(?i)<iframe`,
	`(?i)<object`,
	`(?i)<embed`,
}

// Rate limit endpoint names.
const (
	EndpointChat           = "chat"
	EndpointStreamChat     = "stream_chat"
	EndpointFunctionRouter = "function_router"
	EndpointVoice          = "voice"
	EndpointLogin          = "login"
	EndpointRegister       = "register"
)

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: defaultPort,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
		},
		Chat: ChatConfig{
			DefaultModel:  "gpt-3.5-turbo",
			HistoryWindow: 8,
			Temperature:   0.6,
			MaxTokens:     2000,
			TopP:          0.7,
		},
		RateLimits: map[string]RateLimitRule{
			EndpointChat:           {MaxRequests: 30, Window: time.Minute, BlockMalicious: true},
			EndpointStreamChat:     {MaxRequests: 30, Window: time.Minute, BlockMalicious: true},
			EndpointFunctionRouter: {MaxRequests: 20, Window: time.Minute, BlockMalicious: true},
			EndpointVoice:          {MaxRequests: 60, Window: time.Minute},
			EndpointLogin:          {MaxRequests: 10, Window: 5 * time.Minute},
			EndpointRegister:       {MaxRequests: 3, Window: time.Hour, BlockMalicious: true},
		},
		Abuse: AbuseConfig{
			BlacklistDuration: 10 * time.Minute,
			Patterns:          append([]string(nil), DefaultPatterns...),
		},
		Signaling: SignalingConfig{
			PendingTTL:    30 * time.Minute,
			TerminalTTL:   24 * time.Hour,
			SweepSchedule: "@every 1m",
		},
	}
}

// DefaultProviders returns the built-in provider catalogue keyed by provider id.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		ProviderOpenAI: {
			DisplayName: "OpenAI",
			APIStyle:    StyleOpenAI,
			BaseURL:     "https://api.openai.com/v1",
			Streaming:   true,
			Multimodal:  true,
			Timeout:     defaultProviderTimeout,
			Models: []ModelConfig{
				{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo"},
				{ID: "gpt-4", Name: "GPT-4"},
				{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
				{ID: "gpt-4o", Name: "GPT-4o"},
				{ID: "gpt-4o-mini", Name: "GPT-4o Mini"},
			},
		},
		ProviderGemini: {
			DisplayName: "Google Gemini",
			APIStyle:    StyleGemini,
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Timeout:     defaultProviderTimeout,
			Models: []ModelConfig{
				{ID: "gemini-pro", Name: "Gemini Pro"},
				{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
				{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
			},
		},
		ProviderKimi: {
			DisplayName: "Kimi",
			APIStyle:    StyleOpenAI,
			BaseURL:     "https://api.moonshot.cn/v1",
			Timeout:     defaultProviderTimeout,
			Models: []ModelConfig{
				{ID: "kimi-large", Name: "Kimi Large"},
			},
		},
		ProviderQwen: {
			DisplayName: "Qwen",
			APIStyle:    StyleOpenAI,
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Timeout:     defaultProviderTimeout,
			Models: []ModelConfig{
				{ID: "qwen-max", Name: "通义千问Max"},
				{ID: "qwen-plus", Name: "通义千问Plus"},
				{ID: "qwen-turbo", Name: "通义千问Turbo"},
				{ID: "qwen-vl-max", Name: "通义千问VL-Max"},
			},
		},
		ProviderQwenCode: {
			DisplayName: "Qwen_Code",
			APIStyle:    StyleOpenAI,
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Timeout:     defaultProviderTimeout,
			Models: []ModelConfig{
				{ID: "qwen-coder", Name: "通义千问Coder"},
				{ID: "qwen_coder_plus", Name: "通义千问Coder+"},
			},
		},
		ProviderDeepSeek: {
			DisplayName: "DeepSeek",
			APIStyle:    StyleOpenAI,
			BaseURL:     "https://api.deepseek.com/v1",
			Timeout:     defaultProviderTimeout,
			Models: []ModelConfig{
				{ID: "deepseek-chat", Name: "DeepSeek Chat"},
				{ID: "deepseek-coder", Name: "DeepSeek Coder"},
			},
		},
		ProviderDoubao: {
			DisplayName: "豆包",
			APIStyle:    StyleOpenAI,
			BaseURL:     "https://ark.cn-beijing.volces.com/api/v3",
			Timeout:     defaultProviderTimeout,
			Models: []ModelConfig{
				{ID: "doubao-pro", Name: "豆包Pro"},
			},
		},
	}
}
