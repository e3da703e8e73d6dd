package server

import "github.com/josephgoksu/quill/internal/taskgraph"

// GenerateRequest is the payload for /api/generate-story and
// /api/generate-report.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	// EnableSearch defaults to true for reports and is ignored for stories.
	EnableSearch *bool             `json:"enableSearch"`
	SearchEngine string            `json:"searchEngine"`
	APIKeys      map[string]string `json:"apiKeys"`
}

// GenerateResponse is returned once a task has been started.
type GenerateResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// TaskGraphResponse is the response for /api/task-graph/{taskId}
type TaskGraphResponse struct {
	TaskID    string          `json:"taskId"`
	TaskGraph *taskgraph.Node `json:"taskGraph"`
}

// WorkspaceResponse is the response for /api/workspace/{taskId}
type WorkspaceResponse struct {
	TaskID    string `json:"taskId"`
	Workspace string `json:"workspace"`
}

// MessageResponse acknowledges stop, delete and reload.
type MessageResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	TaskCount *int   `json:"taskCount,omitempty"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Socket.IO events.
const (
	EventSubscribe          = "subscribe_to_task"
	EventSubscriptionStatus = "subscription_status"
	EventTaskUpdate         = "task_update"
	EventConnectionTest     = "connection_test"
)

// SubscribeData is the payload of subscribe_to_task.
type SubscribeData struct {
	TaskID string `json:"taskId"`
}

// SubscriptionStatus answers subscribe_to_task.
type SubscriptionStatus struct {
	Status  string  `json:"status"`
	TaskID  *string `json:"taskId"`
	Message string  `json:"message,omitempty"`
}

// TaskUpdate pushes the current tree of a task. Status is set once the task
// is terminal.
type TaskUpdate struct {
	TaskID    string          `json:"taskId"`
	Status    string          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	TaskGraph *taskgraph.Node `json:"taskGraph"`
}
