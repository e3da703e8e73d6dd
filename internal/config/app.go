// Package config holds quill's application settings, data paths, per-request
// LLM resolution and the embedded story/report mode configurations.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	Verbose   bool            `mapstructure:"verbose"`
	Config    string          `mapstructure:"config"`
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Search    SearchConfig    `mapstructure:"search"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Prompts   PromptsConfig   `mapstructure:"prompts"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host" validate:"required"`
	Port           int      `mapstructure:"port" validate:"required,min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DataConfig locates task folders and the sqlite index.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// EngineConfig bounds a single generation job.
type EngineConfig struct {
	MaxSteps          int           `mapstructure:"maxSteps" validate:"min=1"`
	PollInterval      time.Duration `mapstructure:"pollInterval" validate:"min=0"`
	MaxConcurrentJobs int           `mapstructure:"maxConcurrentJobs" validate:"min=0"`
}

// SearchConfig selects the web search backend.
type SearchConfig struct {
	Backend       string `mapstructure:"backend" validate:"required,oneof=serpapi searxng"`
	SearxngURL    string `mapstructure:"searxngURL" validate:"omitempty,url"`
	DefaultEngine string `mapstructure:"defaultEngine" validate:"required,oneof=google bing"`
}

// PolicyConfig configures task admission rules.
type PolicyConfig struct {
	Dir             string `mapstructure:"dir"`
	MaxPromptLength int    `mapstructure:"maxPromptLength" validate:"min=0"`
}

// TelemetryConfig enables analytics and tracing. Empty values disable them.
type TelemetryConfig struct {
	PosthogKey   string `mapstructure:"posthogKey"`
	PosthogHost  string `mapstructure:"posthogHost" validate:"omitempty,url"`
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
}

// LLMConfig holds server-side model settings. Keys come with each request.
type LLMConfig struct {
	OllamaURL      string        `mapstructure:"ollamaURL" validate:"omitempty,url"`
	EmbeddingModel string        `mapstructure:"embeddingModel"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"min=0"`
	MaxRetries     int           `mapstructure:"maxRetries" validate:"min=0,max=10"`
}

// PromptsConfig points at a directory of prompt overrides.
type PromptsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Defaults
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 5001
	DefaultMaxSteps          = 3000
	DefaultPollInterval      = 2 * time.Second
	DefaultMaxConcurrentJobs = 4
	DefaultSearchBackend     = "serpapi"
	DefaultSearchEngine      = "google"
	DefaultMaxPromptLength   = 20000
	DefaultPosthogHost       = "https://us.i.posthog.com"
	DefaultLLMMaxRetries     = 3
)

// SetDefaults registers default values with viper.
func SetDefaults() {
	viper.SetDefault("server.host", DefaultHost)
	viper.SetDefault("server.port", DefaultPort)
	viper.SetDefault("server.allowedOrigins", []string{"*"})
	viper.SetDefault("engine.maxSteps", DefaultMaxSteps)
	viper.SetDefault("engine.pollInterval", DefaultPollInterval)
	viper.SetDefault("engine.maxConcurrentJobs", DefaultMaxConcurrentJobs)
	viper.SetDefault("search.backend", DefaultSearchBackend)
	viper.SetDefault("search.defaultEngine", DefaultSearchEngine)
	viper.SetDefault("policy.maxPromptLength", DefaultMaxPromptLength)
	viper.SetDefault("telemetry.posthogHost", DefaultPosthogHost)
	viper.SetDefault("llm.maxRetries", DefaultLLMMaxRetries)
}

var validate = validator.New()

// Load unmarshals viper's current state into an AppConfig and validates it.
func Load() (*AppConfig, error) {
	SetDefaults()
	var cfg AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = GetDataDir()
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Search.Backend == "searxng" && cfg.Search.SearxngURL == "" {
		return errors.New("invalid config: search.searxngURL is required for the searxng backend")
	}
	return nil
}
