package llm

// Provider ids. The browser sends keys under the ids in apiKeyNames.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderQwen      = "qwen"

	DefaultProvider = ProviderOpenAI
)

// DefaultOllamaURL is the default URL for a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// DashScopeURL is Alibaba's OpenAI compatible endpoint for Qwen models.
const DashScopeURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// OllamaPrefix marks model names served by Ollama, e.g. "ollama/llama3.2".
const OllamaPrefix = "ollama/"

// Default embedding models per provider.
const (
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
)

// MaxOutputTokens is the completion budget for every call.
const MaxOutputTokens = 8192

// apiKeyNames lists the request apiKeys entries accepted for each provider,
// in lookup order.
var apiKeyNames = map[Provider][]string{
	ProviderOpenAI:    {"openai"},
	ProviderAnthropic: {"claude", "anthropic"},
	ProviderGemini:    {"gemini", "google"},
	ProviderQwen:      {"qwen", "dashscope"},
}

// APIKeyNames returns the request key names for a provider.
func APIKeyNames(p Provider) []string {
	return apiKeyNames[p]
}
