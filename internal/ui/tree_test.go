package ui

import (
	"strings"
	"testing"

	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/taskgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *taskgraph.Node {
	return &taskgraph.Node{
		ID: "", Goal: "Write a fable", TaskType: "write", Status: "DOING",
		SubTasks: []*taskgraph.Node{
			{ID: "1", Goal: "Research foxes", TaskType: "search", Status: "FINISH"},
			{ID: "2", Goal: "Draft\nthe  story", TaskType: "write", Status: "DOING", SubTasks: []*taskgraph.Node{
				{ID: "2.1", Goal: "Opening", TaskType: "write", Status: "FINISH"},
				{ID: "2.2", Goal: "atom", TaskType: "write", Status: "READY", IsExecuteNode: true},
			}},
			{ID: "3", Goal: "Moral", TaskType: "think", Status: "NOT_READY"},
		},
	}
}

func TestRenderTree(t *testing.T) {
	out := RenderTree(sampleTree(), 0)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5, out)

	assert.Contains(t, lines[0], "root")
	assert.Contains(t, lines[1], "├─ ")
	assert.Contains(t, lines[1], "[search]")
	assert.Contains(t, lines[2], "Draft the story")
	assert.Contains(t, lines[3], "│  └─ ")
	assert.Contains(t, lines[3], "Opening")
	assert.Contains(t, lines[4], "└─ ")
	assert.Contains(t, lines[4], "[think]")
	assert.NotContains(t, out, "atom")
}

func TestRenderTree_Nil(t *testing.T) {
	assert.Empty(t, RenderTree(nil, 80))
}

func TestProgress(t *testing.T) {
	done, total := Progress(sampleTree())
	assert.Equal(t, 2, done)
	assert.Equal(t, 5, total)
}

func TestStatusBadge(t *testing.T) {
	assert.Contains(t, StatusBadge("completed"), "Completed")
	assert.Contains(t, StatusBadge("running"), "Running")
}

func TestHistoryTable(t *testing.T) {
	table := HistoryTable([]jobs.HistoryEntry{
		{TaskID: "story-1", Type: "story", CreatedAt: "2025-01-02 03:04:05", Prompt: "A fox\nand a crow"},
		{TaskID: "report-2", Type: "report", CreatedAt: "2025-01-01 00:00:00", Prompt: strings.Repeat("x", 80)},
	}, 20)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "A fox and a crow", table.Rows[0][3])
	assert.Len(t, table.Rows[1][3], 20)

	out := table.Render()
	assert.Contains(t, out, "TASK")
	assert.Contains(t, out, "report-2")
}

func TestTable_ColumnWidths(t *testing.T) {
	table := &Table{
		Headers:  []string{"ID", "Prompt"},
		Rows:     [][]string{{"story-1", "Écrire une fable très longue"}},
		MaxWidth: 12,
	}
	widths := table.ColumnWidths()
	assert.Equal(t, 7, widths[0])
	assert.Equal(t, 12, widths[1])
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"hello", 3, "hel"},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.max), tt.in)
	}
}
