package llm

import (
	"context"
	"testing"
)

func TestValidateProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     Provider
		wantErr  bool
	}{
		{name: "openai", provider: "openai", want: ProviderOpenAI},
		{name: "qwen", provider: "qwen", want: ProviderQwen},
		{name: "anthropic", provider: "anthropic", want: ProviderAnthropic},
		{name: "gemini", provider: "gemini", want: ProviderGemini},
		{name: "ollama", provider: "ollama", want: ProviderOllama},
		{name: "unknown", provider: "invalid", wantErr: true},
		{name: "empty", provider: "", wantErr: true},
		{name: "case sensitive", provider: "OPENAI", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateProvider(tt.provider)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateProvider(%q) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateProvider(%q) = %q, want %q", tt.provider, got, tt.want)
			}
		})
	}
}

func TestNewChatModel_RequiresKey(t *testing.T) {
	ctx := context.Background()
	for _, p := range []Provider{ProviderOpenAI, ProviderQwen, ProviderAnthropic, ProviderGemini} {
		if _, err := NewChatModel(ctx, Config{Provider: p, Model: "m"}); err == nil {
			t.Errorf("%s without key should fail", p)
		}
	}
	if _, err := NewChatModel(ctx, Config{Provider: "bogus", Model: "m", APIKey: "k"}); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestNewCloseableChatModel_Ollama(t *testing.T) {
	m, err := NewCloseableChatModel(context.Background(), Config{Provider: ProviderOllama, Model: "ollama/llama3.2"})
	if err != nil {
		t.Fatalf("ollama needs no key: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestNewEmbeddingModel_UnsupportedProvider(t *testing.T) {
	if _, err := NewEmbeddingModel(context.Background(), Config{Provider: ProviderAnthropic, APIKey: "k"}); err == nil {
		t.Error("anthropic has no embedding endpoint")
	}
}

func TestInferProvider(t *testing.T) {
	tests := []struct {
		model string
		want  Provider
		ok    bool
	}{
		{"gpt-4o", ProviderOpenAI, true},
		{"gpt-4o-2024-08-06", ProviderOpenAI, true},
		{"o3-mini", ProviderOpenAI, true},
		{"claude-3-5-sonnet-20241022", ProviderAnthropic, true},
		{"claude-opus-9", ProviderAnthropic, true},
		{"gemini-2.5-pro", ProviderGemini, true},
		{"qwen-max", ProviderQwen, true},
		{"qwen2.5-72b-instruct", ProviderQwen, true},
		{"ollama/mistral", ProviderOllama, true},
		{"mystery-model", "", false},
	}
	for _, tt := range tests {
		got, ok := InferProvider(tt.model)
		if got != tt.want || ok != tt.ok {
			t.Errorf("InferProvider(%q) = %q, %v; want %q, %v", tt.model, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCalculateCost(t *testing.T) {
	if got := CalculateCost("gpt-4o", 1_000_000, 1_000_000); got != 12.5 {
		t.Errorf("gpt-4o cost = %v, want 12.5", got)
	}
	if got := CalculateCost("ollama/llama3.2", 1000, 1000); got != 0 {
		t.Errorf("unknown model cost = %v, want 0", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if EstimateBudgetChars(10) != 40 {
		t.Error("EstimateBudgetChars(10) != 40")
	}
}
