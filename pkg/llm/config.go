package llm

import (
	"fmt"
	"strings"

	"freightline/api_compass/pkg/config"
)

type Config struct {
	Provider  string
	Model     string
	APIKey    string
	APIURL    string
	MaxTokens int
}

// LoadConfig loads the capable-tier model configuration from LLM_* env vars.
func LoadConfig() Config {
	return Config{
		Provider:  config.GetEnv("LLM_PROVIDER", "openai"),
		Model:     config.GetEnv("LLM_MODEL", ""),
		APIKey:    config.GetEnv("LLM_API_KEY", ""),
		APIURL:    config.GetEnv("LLM_API_URL", ""),
		MaxTokens: config.GetEnvInt("LLM_MAX_TOKENS", 4096),
	}
}

// LoadFastConfig loads the fast-tier model configuration from FAST_LLM_* env
// vars, falling back to the LLM_* counterparts when unset.
func LoadFastConfig() Config {
	return Config{
		Provider:  config.GetEnv("FAST_LLM_PROVIDER", config.GetEnv("LLM_PROVIDER", "openai")),
		Model:     config.GetEnv("FAST_LLM_MODEL", config.GetEnv("LLM_MODEL", "")),
		APIKey:    config.GetEnv("FAST_LLM_API_KEY", config.GetEnv("LLM_API_KEY", "")),
		APIURL:    config.GetEnv("FAST_LLM_API_URL", config.GetEnv("LLM_API_URL", "")),
		MaxTokens: config.GetEnvInt("FAST_LLM_MAX_TOKENS", 2048),
	}
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
