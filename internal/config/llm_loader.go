package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/josephgoksu/quill/internal/llm"
	"github.com/spf13/viper"
)

// ResolveLLM builds the client config for a model named by the browser,
// using the keys sent with the request. Keys are never persisted.
// Precedence: request apiKeys > provider env vars.
func ResolveLLM(model string, apiKeys map[string]string) (llm.Config, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return llm.Config{}, fmt.Errorf("model is required")
	}
	provider, ok := llm.InferProvider(model)
	if !ok {
		return llm.Config{}, fmt.Errorf("cannot infer provider for model %q", model)
	}

	cfg := llm.Config{
		Provider:       provider,
		Model:          model,
		APIKey:         ResolveAPIKey(provider, apiKeys),
		EmbeddingModel: viper.GetString("llm.embeddingModel"),
		Timeout:        viper.GetDuration("llm.timeout"),
	}
	if provider == llm.ProviderOllama {
		cfg.BaseURL = viper.GetString("llm.ollamaURL")
		if cfg.BaseURL == "" {
			cfg.BaseURL = llm.DefaultOllamaURL
		}
	}
	if provider != llm.ProviderOllama && cfg.APIKey == "" {
		return cfg, fmt.Errorf("no API key for provider %s (send apiKeys.%s)", provider, llm.APIKeyNames(provider)[0])
	}
	return cfg, nil
}

// ResolveAPIKey returns the best API key for the given provider from the
// request keys, then provider-specific env vars.
func ResolveAPIKey(provider llm.Provider, apiKeys map[string]string) string {
	for _, name := range llm.APIKeyNames(provider) {
		if key := strings.TrimSpace(apiKeys[name]); key != "" {
			return key
		}
	}
	return providerEnvKey(provider)
}

// SearchAPIKey returns the SerpApi key from the request or SERPAPI_API_KEY.
func SearchAPIKey(apiKeys map[string]string) string {
	if key := strings.TrimSpace(apiKeys["serpapi"]); key != "" {
		return key
	}
	key := strings.TrimSpace(os.Getenv("SERPAPI_API_KEY"))
	if key == "" {
		key = strings.TrimSpace(os.Getenv("SERPAPI"))
	}
	return key
}

func providerEnvKey(provider llm.Provider) string {
	switch provider {
	case llm.ProviderOpenAI:
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case llm.ProviderAnthropic:
		return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	case llm.ProviderGemini:
		key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
		}
		return key
	case llm.ProviderQwen:
		return strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY"))
	default:
		return ""
	}
}
