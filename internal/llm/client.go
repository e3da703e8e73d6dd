// Package llm builds Eino chat and embedding models for the supported
// providers.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	geminiEmbed "github.com/cloudwego/eino-ext/components/embedding/gemini"
	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"
)

// Provider identifies the LLM provider to use.
type Provider string

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider       Provider
	Model          string
	EmbeddingModel string
	APIKey         string
	BaseURL        string // Ollama server or an OpenAI compatible endpoint
	Timeout        time.Duration
}

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 10 * time.Minute

// CloseableChatModel is a chat model that owns an HTTP client.
type CloseableChatModel struct {
	model.BaseChatModel
	httpClient *http.Client
}

// Close releases idle connections held by the model's client.
func (c *CloseableChatModel) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewCloseableChatModel creates a chat model and its HTTP client. Callers
// must Close it when done.
func NewCloseableChatModel(ctx context.Context, cfg Config) (*CloseableChatModel, error) {
	client := newHTTPClient(cfg.Timeout)
	m, err := newChatModel(ctx, cfg, client)
	if err != nil {
		return nil, err
	}
	return &CloseableChatModel{BaseChatModel: m, httpClient: client}, nil
}

// NewChatModel creates a ChatModel for the configured provider.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	return newChatModel(ctx, cfg, newHTTPClient(cfg.Timeout))
}

func newChatModel(ctx context.Context, cfg Config, client *http.Client) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderQwen:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s API key is required", cfg.Provider)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == ProviderQwen {
			baseURL = DashScopeURL
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:      cfg.Model,
			APIKey:     cfg.APIKey,
			BaseURL:    baseURL,
			HTTPClient: client,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL:    baseURL,
			Model:      strings.TrimPrefix(cfg.Model, OllamaPrefix),
			HTTPClient: client,
		})

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		claudeCfg := &claude.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxTokens:  MaxOutputTokens,
			HTTPClient: client,
		}
		if cfg.BaseURL != "" {
			claudeCfg.BaseURL = &cfg.BaseURL
		}
		return claude.NewChatModel(ctx, claudeCfg)

	case ProviderGemini:
		genaiClient, err := newGenAIClient(ctx, cfg, client)
		if err != nil {
			return nil, err
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, qwen, anthropic, gemini, ollama)", cfg.Provider)
	}
}

func newGenAIClient(ctx context.Context, cfg Config, client *http.Client) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: client,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return c, nil
}

// ValidateProvider checks if the given provider string is supported.
func ValidateProvider(p string) (Provider, error) {
	switch Provider(p) {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic, ProviderGemini, ProviderQwen:
		return Provider(p), nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", p)
	}
}

// NewEmbeddingModel creates an embedder for the configured provider.
// Providers without an embedding endpoint return an error; callers fall back
// to ranking without embeddings.
func NewEmbeddingModel(ctx context.Context, cfg Config) (embedding.Embedder, error) {
	client := newHTTPClient(cfg.Timeout)
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOpenAIEmbeddingModel
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			Model:      modelName,
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: client,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOllamaEmbeddingModel
		}
		return ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL:    baseURL,
			Model:      modelName,
			HTTPClient: client,
		})

	case ProviderGemini:
		genaiClient, err := newGenAIClient(ctx, cfg, client)
		if err != nil {
			return nil, err
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultGeminiEmbeddingModel
		}
		return geminiEmbed.NewEmbedder(ctx, &geminiEmbed.EmbeddingConfig{
			Client: genaiClient,
			Model:  modelName,
		})

	default:
		return nil, fmt.Errorf("no embedding support for provider: %s", cfg.Provider)
	}
}
