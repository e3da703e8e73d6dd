package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/taskgraph"
)

// Service is the part of *jobs.Manager the tools use.
type Service interface {
	Start(ctx context.Context, req jobs.Request) (string, error)
	Wait(ctx context.Context, id string) (jobs.StatusInfo, error)
	Status(id string) (jobs.StatusInfo, error)
	Result(id string) (jobs.ResultInfo, error)
	TaskGraph(id string) (*taskgraph.Node, error)
	Stop(id string) (string, error)
	History() ([]jobs.HistoryEntry, error)
}

var _ Service = (*jobs.Manager)(nil)

// HandleGenerate starts a task of the given kind. With Wait set it blocks
// until the task ends and returns the article.
func HandleGenerate(ctx context.Context, svc Service, kind config.Mode, params GenerateParams) (*ToolResult, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return &ToolResult{Error: FormatValidationError("prompt", "prompt is required")}, nil
	}
	if strings.TrimSpace(params.Model) == "" {
		return &ToolResult{Error: FormatValidationError("model", "model is required")}, nil
	}
	enableSearch := kind == config.ModeReport
	if params.EnableSearch != nil {
		enableSearch = enableSearch && *params.EnableSearch
	}

	id, err := svc.Start(ctx, jobs.Request{
		Kind:         kind,
		Prompt:       params.Prompt,
		Model:        params.Model,
		EnableSearch: enableSearch,
		SearchEngine: params.SearchEngine,
		APIKeys:      params.APIKeys,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidRequest) || errors.Is(err, jobs.ErrRejected) {
			return &ToolResult{Error: FormatError(err.Error())}, nil
		}
		return nil, err
	}
	if !params.Wait {
		return &ToolResult{Content: FormatStarted(id, kind)}, nil
	}

	st, err := svc.Wait(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", id, err)
	}
	res, err := svc.Result(id)
	if err != nil {
		return &ToolResult{Content: FormatStatus(st)}, nil
	}
	return &ToolResult{Content: FormatResult(res)}, nil
}

// HandleStatus reports a task's progress together with a compact outline.
func HandleStatus(svc Service, params TaskParams) (*ToolResult, error) {
	st, err := svc.Status(params.TaskID)
	if err != nil {
		return lookupError(err)
	}
	content := FormatStatus(st)
	if tree, err := svc.TaskGraph(params.TaskID); err == nil {
		content += "\n\n" + FormatTree(tree)
	}
	return &ToolResult{Content: content}, nil
}

// HandleResult returns a finished task's article.
func HandleResult(svc Service, params TaskParams) (*ToolResult, error) {
	res, err := svc.Result(params.TaskID)
	if err != nil {
		return lookupError(err)
	}
	return &ToolResult{Content: FormatResult(res)}, nil
}

// HandleStop stops a running task.
func HandleStop(svc Service, params TaskParams) (*ToolResult, error) {
	msg, err := svc.Stop(params.TaskID)
	if err != nil {
		return lookupError(err)
	}
	return &ToolResult{Content: msg}, nil
}

// HandleHistory lists finished tasks.
func HandleHistory(svc Service, params HistoryParams) (*ToolResult, error) {
	entries, err := svc.History()
	if err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return &ToolResult{Content: FormatHistory(entries)}, nil
}

func lookupError(err error) (*ToolResult, error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidTaskID):
		return &ToolResult{Error: FormatValidationError("task_id", "invalid task ID format")}, nil
	case errors.Is(err, jobs.ErrTaskNotFound), errors.Is(err, jobs.ErrResultNotAvailable):
		return &ToolResult{Error: FormatError(err.Error())}, nil
	}
	return nil, err
}
