package llm

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Usage accumulates token counts across the calls of one job.
type Usage struct {
	mu           sync.Mutex
	calls        int
	inputTokens  int
	outputTokens int
	cost         float64
}

// Record adds the usage reported on a model response. Responses without
// usage are estimated from their text.
func (u *Usage) Record(modelID, prompt string, msg *schema.Message) {
	if u == nil || msg == nil {
		return
	}
	in, out := EstimateTokens(prompt), EstimateTokens(msg.Content)
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		in = msg.ResponseMeta.Usage.PromptTokens
		out = msg.ResponseMeta.Usage.CompletionTokens
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.inputTokens += in
	u.outputTokens += out
	u.cost += CalculateCost(modelID, in, out)
}

// UsageSnapshot is a point in time copy of Usage.
type UsageSnapshot struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Snapshot returns the totals so far.
func (u *Usage) Snapshot() UsageSnapshot {
	if u == nil {
		return UsageSnapshot{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return UsageSnapshot{Calls: u.calls, InputTokens: u.inputTokens, OutputTokens: u.outputTokens, CostUSD: u.cost}
}
