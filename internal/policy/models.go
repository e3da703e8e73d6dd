// Package policy decides whether a generation request may start. Rules are
// written in Rego and evaluated locally with OPA: an embedded default policy
// plus any .rego files found in the configured directory.
package policy

import (
	"encoding/json"
	"time"
)

// Decision is the outcome of evaluating the admission rules for one request.
type Decision struct {
	ID          int64     `json:"id"`
	DecisionID  string    `json:"decisionId"`
	PolicyPath  string    `json:"policyPath"`
	Result      string    `json:"result"`
	Violations  []string  `json:"violations,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Input       *Input    `json:"input"`
	TaskID      string    `json:"taskId,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Results.
const (
	ResultAllow = "allow"
	ResultDeny  = "deny"
)

// IsAllowed returns true if no deny rule fired.
func (d *Decision) IsAllowed() bool {
	return d.Result == ResultAllow
}

// ViolationsJSON returns the violations as a JSON string for storage.
func (d *Decision) ViolationsJSON() string {
	return encodeList(d.Violations)
}

// WarningsJSON returns the warnings as a JSON string for storage.
func (d *Decision) WarningsJSON() string {
	return encodeList(d.Warnings)
}

// InputJSON returns the input as a JSON string for storage.
func (d *Decision) InputJSON() string {
	if d.Input == nil {
		return "{}"
	}
	b, err := json.Marshal(d.Input)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ParseList decodes a JSON string list written by ViolationsJSON.
func ParseList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// Input is what Rego rules see as `input`. It never carries key material,
// only whether keys were supplied.
type Input struct {
	Kind            string `json:"kind"`
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	Provider        string `json:"provider"`
	HasAPIKey       bool   `json:"has_api_key"`
	EnableSearch    bool   `json:"enable_search"`
	SearchBackend   string `json:"search_backend"`
	HasSearchKey    bool   `json:"has_search_key"`
	MaxPromptLength int    `json:"max_prompt_length"`
}
