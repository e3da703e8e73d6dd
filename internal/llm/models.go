package llm

import "strings"

// Model describes a chat model the service knows how to route and price.
type Model struct {
	ID          string
	ProviderID  Provider
	Aliases     []string
	InputPer1M  float64 // $ per 1M input tokens
	OutputPer1M float64 // $ per 1M output tokens
	IsDefault   bool
}

// ModelRegistry lists the models offered in the web UI's default settings.
// Prices last updated: 2025-12
var ModelRegistry = []Model{
	{ID: "gpt-4o", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4o-2024-08-06"}, InputPer1M: 2.50, OutputPer1M: 10.00, IsDefault: true},
	{ID: "gpt-4o-mini", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4o-mini-2024-07-18"}, InputPer1M: 0.15, OutputPer1M: 0.60},
	{ID: "gpt-4.1", ProviderID: ProviderOpenAI, InputPer1M: 2.00, OutputPer1M: 8.00},
	{ID: "gpt-4.1-mini", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4.1-mini-2025-04-14"}, InputPer1M: 0.15, OutputPer1M: 0.60},
	{ID: "o3-mini", ProviderID: ProviderOpenAI, InputPer1M: 1.10, OutputPer1M: 4.40},

	{ID: "claude-3-5-sonnet-20241022", ProviderID: ProviderAnthropic, Aliases: []string{"claude-3.5-sonnet"}, InputPer1M: 3.00, OutputPer1M: 15.00, IsDefault: true},
	{ID: "claude-3-7-sonnet-20250219", ProviderID: ProviderAnthropic, Aliases: []string{"claude-3.7-sonnet"}, InputPer1M: 3.00, OutputPer1M: 15.00},
	{ID: "claude-sonnet-4-5", ProviderID: ProviderAnthropic, InputPer1M: 3.00, OutputPer1M: 15.00},
	{ID: "claude-haiku-4-5", ProviderID: ProviderAnthropic, InputPer1M: 1.00, OutputPer1M: 5.00},

	{ID: "gemini-2.5-flash", ProviderID: ProviderGemini, InputPer1M: 0.30, OutputPer1M: 2.50, IsDefault: true},
	{ID: "gemini-2.5-pro", ProviderID: ProviderGemini, InputPer1M: 1.25, OutputPer1M: 10.00},

	{ID: "qwen-max", ProviderID: ProviderQwen, InputPer1M: 1.60, OutputPer1M: 6.40, IsDefault: true},
	{ID: "qwen-plus", ProviderID: ProviderQwen, InputPer1M: 0.40, OutputPer1M: 1.20},
}

// GetModel looks a model up by id or alias.
func GetModel(id string) *Model {
	for i := range ModelRegistry {
		m := &ModelRegistry[i]
		if m.ID == id {
			return m
		}
		for _, a := range m.Aliases {
			if a == id {
				return m
			}
		}
	}
	return nil
}

// InferProvider works out which provider serves a model name.
func InferProvider(modelID string) (Provider, bool) {
	if strings.HasPrefix(modelID, OllamaPrefix) {
		return ProviderOllama, true
	}
	if m := GetModel(modelID); m != nil {
		return m.ProviderID, true
	}
	id := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(id, "gpt-"), strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return ProviderOpenAI, true
	case strings.HasPrefix(id, "claude"):
		return ProviderAnthropic, true
	case strings.HasPrefix(id, "gemini"):
		return ProviderGemini, true
	case strings.HasPrefix(id, "qwen"), strings.HasPrefix(id, "qwq"):
		return ProviderQwen, true
	case strings.HasPrefix(id, "llama"), strings.HasPrefix(id, "mistral"), strings.HasPrefix(id, "phi"):
		return ProviderOllama, true
	}
	return "", false
}

// CalculateCost prices token usage in USD. Unknown and local models cost 0.
func CalculateCost(modelID string, inputTokens, outputTokens int) float64 {
	m := GetModel(modelID)
	if m == nil {
		return 0
	}
	return float64(inputTokens)/1_000_000*m.InputPer1M + float64(outputTokens)/1_000_000*m.OutputPer1M
}
