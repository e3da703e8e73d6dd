package mcp

import (
	"fmt"
	"strings"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/taskgraph"
	"github.com/josephgoksu/quill/internal/utils"
)

// treeDepth bounds FormatTree so status replies stay small.
const treeDepth = 3

// FormatStarted tells the caller how to follow a new task.
func FormatStarted(id string, kind config.Mode) string {
	return fmt.Sprintf("## Started %s\n\n**Task ID**: `%s`\n\nPoll `task_status` with this id, then fetch the article with `task_result`.", kind, id)
}

// FormatStatus renders a task's status line.
func FormatStatus(st jobs.StatusInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s %s\n\n", statusIcon(st.Status), utils.HumanizeStatus(st.Status))
	fmt.Fprintf(&sb, "- **Task**: `%s`\n", st.TaskID)
	fmt.Fprintf(&sb, "- **Model**: %s\n", st.Model)
	if st.SearchEngine != "" {
		fmt.Fprintf(&sb, "- **Search**: %s\n", st.SearchEngine)
	}
	fmt.Fprintf(&sb, "- **Elapsed**: %.0fs", st.ElapsedTime)
	if st.Error != "" {
		fmt.Fprintf(&sb, "\n- **Error**: %s", st.Error)
	}
	return sb.String()
}

// FormatResult returns the article with a short provenance header.
func FormatResult(res jobs.ResultInfo) string {
	header := fmt.Sprintf("<!-- task %s, model %s", res.TaskID, res.Model)
	if res.SearchEngine != "" {
		header += ", search " + res.SearchEngine
	}
	return header + " -->\n\n" + res.Result
}

// FormatTree renders the top of the task tree as a nested Markdown list.
func FormatTree(root *taskgraph.Node) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("### Outline\n\n")
	var walk func(n *taskgraph.Node, depth int)
	walk = func(n *taskgraph.Node, depth int) {
		if n.IsExecuteNode {
			return
		}
		id := n.ID
		if id == "" {
			id = "root"
		}
		fmt.Fprintf(&sb, "%s- %s `%s` [%s] %s\n", strings.Repeat("  ", depth), nodeMark(n.Status), id, n.TaskType, utils.Truncate(strings.Join(strings.Fields(n.Goal), " "), 120))
		if depth+1 >= treeDepth {
			return
		}
		for _, c := range n.SubTasks {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return strings.TrimRight(sb.String(), "\n")
}

// FormatHistory lists finished tasks as a Markdown table.
func FormatHistory(entries []jobs.HistoryEntry) string {
	if len(entries) == 0 {
		return "No finished tasks yet."
	}
	var sb strings.Builder
	sb.WriteString("| Task | Type | Created | Prompt |\n|---|---|---|---|\n")
	for _, e := range entries {
		prompt := strings.ReplaceAll(strings.Join(strings.Fields(e.Prompt), " "), "|", "\\|")
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", e.TaskID, e.Type, e.CreatedAt, prompt)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatError returns a Markdown-formatted error message.
func FormatError(message string) string {
	return fmt.Sprintf("## Error\n\n**Details**: %s", message)
}

// FormatValidationError returns a Markdown error for validation failures.
func FormatValidationError(field, message string) string {
	return fmt.Sprintf("## Validation Error\n\n**Field**: `%s`\n**Details**: %s", field, message)
}

func statusIcon(status string) string {
	switch status {
	case "completed":
		return "✅"
	case "error":
		return "❌"
	case "stopped":
		return "⏹️"
	default:
		return "⏳"
	}
}

func nodeMark(status string) string {
	switch graph.Status(status) {
	case graph.StatusFinish:
		return "[x]"
	case graph.StatusFailed:
		return "[!]"
	default:
		return "[ ]"
	}
}
