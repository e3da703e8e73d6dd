package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/taskgraph"
	"github.com/josephgoksu/quill/internal/utils"
)

// NodeIcon returns the glyph and style for a node status.
func NodeIcon(status string) (string, lipgloss.Style) {
	switch graph.Status(status) {
	case graph.StatusFinish:
		return "✓", StyleSuccess
	case graph.StatusFailed:
		return "✗", StyleError
	case graph.StatusNotReady:
		return "·", StyleSubtle
	case graph.StatusDoing, graph.StatusPlanDone:
		return "◐", StyleWarning
	default:
		return "●", StylePrimary
	}
}

func typeTag(taskType string) string {
	switch taskType {
	case graph.TaskSearch:
		return StyleTagSearch.Render("[search]")
	case graph.TaskThink:
		return StyleTagThink.Render("[think]")
	default:
		return StyleTagWrite.Render("[write]")
	}
}

// RenderTree draws the task tree with box-drawing branches. Execute nodes
// are folded into their parents. Goals are cut to fit width; zero means no
// limit.
func RenderTree(root *taskgraph.Node, width int) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	writeNode(&sb, root, "", "", width)
	return strings.TrimRight(sb.String(), "\n")
}

func writeNode(sb *strings.Builder, n *taskgraph.Node, prefix, branch string, width int) {
	icon, style := NodeIcon(n.Status)
	label := n.ID
	if label == "" {
		label = "root"
	}
	head := fmt.Sprintf("%s%s%s %s %s ", prefix, branch, Icon(icon, style), StyleSubtle.Render(label), typeTag(n.TaskType))
	goal := oneLine(n.Goal)
	if width > 0 {
		goal = Truncate(goal, max(width-lipgloss.Width(head), 10))
	}
	sb.WriteString(head + goal + "\n")

	children := make([]*taskgraph.Node, 0, len(n.SubTasks))
	for _, c := range n.SubTasks {
		if !c.IsExecuteNode {
			children = append(children, c)
		}
	}

	childPrefix := prefix
	switch branch {
	case "├─ ":
		childPrefix += "│  "
	case "└─ ":
		childPrefix += "   "
	}
	for i, c := range children {
		b := "├─ "
		if i == len(children)-1 {
			b = "└─ "
		}
		writeNode(sb, c, childPrefix, b, width)
	}
}

// StatusBadge renders a task status like "Completed" in its color.
func StatusBadge(status string) string {
	text := utils.HumanizeStatus(status)
	switch status {
	case store.StatusCompleted:
		return StyleSuccess.Bold(true).Render(text)
	case store.StatusError:
		return StyleError.Bold(true).Render(text)
	case store.StatusStopped:
		return StyleWarning.Bold(true).Render(text)
	default:
		return StylePrimary.Bold(true).Render(text)
	}
}

// Progress counts finished tasks in the tree, execute nodes excluded.
func Progress(root *taskgraph.Node) (done, total int) {
	for _, n := range taskgraph.Flatten(root) {
		total++
		if graph.Status(n.Status) == graph.StatusFinish {
			done++
		}
	}
	return done, total
}
