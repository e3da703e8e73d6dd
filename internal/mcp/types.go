// Package mcp provides the tool handlers and Markdown presenters behind
// `quill mcp`.
package mcp

// GenerateParams starts a story or a report.
type GenerateParams struct {
	Prompt string `json:"prompt" jsonschema:"the writing request"`
	Model  string `json:"model" jsonschema:"model id, e.g. gpt-4o, claude-3-7-sonnet-20250219, gemini-2.0-flash or ollama/llama3"`
	// EnableSearch is honoured by reports only. Nil means enabled.
	EnableSearch *bool             `json:"enable_search,omitempty" jsonschema:"reports only: search the web while writing (default true)"`
	SearchEngine string            `json:"search_engine,omitempty" jsonschema:"reports only: google or bing"`
	APIKeys      map[string]string `json:"api_keys,omitempty" jsonschema:"provider keys such as openai or serpapi; falls back to server env vars"`
	// Wait blocks until the task ends and returns its result.
	Wait bool `json:"wait,omitempty" jsonschema:"wait for the task to finish and return the article"`
}

// TaskParams names one task.
type TaskParams struct {
	TaskID string `json:"task_id" jsonschema:"id returned by generate_story or generate_report"`
}

// HistoryParams limits task_history.
type HistoryParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries to return (default 20)"`
}

// ToolResult is the outcome of a tool call. Error is set for failures the
// calling model should see and correct.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// DefaultHistoryLimit caps task_history when no limit is given.
const DefaultHistoryLimit = 20
