package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/taskgraph"
)

// TaskSource answers the questions the watch view asks. *jobs.Manager
// implements it.
type TaskSource interface {
	Status(id string) (jobs.StatusInfo, error)
	TaskGraph(id string) (*taskgraph.Node, error)
}

type snapshotMsg struct {
	status jobs.StatusInfo
	tree   *taskgraph.Node
	err    error
}

type pollMsg struct{}

// WatchModel follows one task until it ends or the user quits.
type WatchModel struct {
	Source   TaskSource
	TaskID   string
	Interval time.Duration

	spinner  spinner.Model
	status   jobs.StatusInfo
	tree     *taskgraph.Node
	err      error
	width    int
	done     bool
	quitting bool
}

// NewWatchModel creates the view. interval paces the polling.
func NewWatchModel(src TaskSource, taskID string, interval time.Duration) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorPrimary)
	if interval <= 0 {
		interval = time.Second
	}
	return WatchModel{
		Source:   src,
		TaskID:   taskID,
		Interval: interval,
		spinner:  s,
		width:    100,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m WatchModel) fetch() tea.Msg {
	st, err := m.Source.Status(m.TaskID)
	if err != nil {
		return snapshotMsg{err: err}
	}
	tree, err := m.Source.TaskGraph(m.TaskID)
	return snapshotMsg{status: st, tree: tree, err: err}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case snapshotMsg:
		m.err = msg.err
		if msg.err != nil && m.tree == nil {
			m.done = true
			return m, tea.Quit
		}
		if msg.err == nil {
			m.status = msg.status
			m.tree = msg.tree
		}
		if m.status.Status != "" && m.status.Status != store.StatusRunning {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.Interval, func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		return m, m.fetch

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	var sb strings.Builder

	header := StyleHeader.Render("quill") + StyleSubtle.Render(m.TaskID)
	sb.WriteString(header + "\n\n")

	if m.err != nil && m.tree == nil {
		sb.WriteString(RenderErrorPanel("Cannot watch task", m.err.Error()) + "\n")
		return sb.String()
	}

	state := StatusBadge(m.status.Status)
	if !m.done {
		state = m.spinner.View() + " " + state
	}
	done, total := Progress(m.tree)
	fmt.Fprintf(&sb, " %s  %s  %s\n",
		state,
		StyleSubtle.Render(fmt.Sprintf("%d/%d tasks", done, total)),
		StyleSubtle.Render(formatElapsed(m.status.ElapsedTime)))
	if m.status.Error != "" {
		sb.WriteString(" " + StyleError.Render(m.status.Error) + "\n")
	}
	sb.WriteString("\n" + RenderTree(m.tree, m.width-2) + "\n")

	if !m.done && !m.quitting {
		sb.WriteString("\n" + StyleSubtle.Render(" q to stop watching (the task keeps running)") + "\n")
	}
	return sb.String()
}

// Status returns the last status seen.
func (m WatchModel) Status() jobs.StatusInfo { return m.status }

// Err returns the error that ended the watch, if any.
func (m WatchModel) Err() error { return m.err }

// Finished reports whether the task ended while watched.
func (m WatchModel) Finished() bool { return m.done && m.err == nil }

func formatElapsed(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}
