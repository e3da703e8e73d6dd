package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/josephgoksu/quill/internal/results"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/taskgraph"
)

// HistoryPromptLen is how many characters of a prompt History returns.
const HistoryPromptLen = 100

// StatusInfo is the polling view of a task.
type StatusInfo struct {
	TaskID       string  `json:"taskId"`
	Status       string  `json:"status"`
	Error        string  `json:"error,omitempty"`
	ElapsedTime  float64 `json:"elapsedTime"`
	Model        string  `json:"model"`
	SearchEngine string  `json:"searchEngine,omitempty"`
}

// ResultInfo is a finished task's article.
type ResultInfo struct {
	TaskID       string `json:"taskId"`
	Result       string `json:"result"`
	Model        string `json:"model"`
	SearchEngine string `json:"searchEngine,omitempty"`
}

// HistoryEntry is one finished task in the history list.
type HistoryEntry struct {
	TaskID    string `json:"taskId"`
	Prompt    string `json:"prompt"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
}

// lookup finds a task in the index, then on disk.
func (m *Manager) lookup(id string) (store.Task, error) {
	if !ValidTaskID(id) {
		return store.Task{}, ErrInvalidTaskID
	}
	t, err := m.opts.Index.GetTask(id)
	if err == nil {
		return *t, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Task{}, err
	}
	if !m.opts.Results.Exists(id) {
		return store.Task{}, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	return m.taskFromDisk(id)
}

// taskFromDisk rebuilds an index row from a task directory. A directory
// without done.txt that no job in this process owns was interrupted.
func (m *Manager) taskFromDisk(id string) (store.Task, error) {
	rs := m.opts.Results
	in, err := rs.Input(id)
	if err != nil {
		return store.Task{}, fmt.Errorf("read input of %s: %w", id, err)
	}
	t := store.Task{
		ID:           id,
		Kind:         in.Kind,
		Prompt:       in.Prompt,
		Model:        in.Model,
		SearchEngine: in.SearchEngine,
		CreatedAt:    in.CreatedAt,
		StartedAt:    in.CreatedAt,
		Status:       store.StatusRunning,
	}
	if t.Kind == "" {
		t.Kind, _, _ = strings.Cut(id, "-")
	}

	done, hasDone := rs.Done(id)
	res, resErr := rs.Result(id)
	switch {
	case strings.HasPrefix(done, "Stopped"):
		t.Status = store.StatusStopped
	case resErr == nil:
		t.Status = store.StatusCompleted
		t.FinishedAt = res.FinishedAt
	case hasDone:
		t.Status = store.StatusError
		t.Error = strings.TrimSpace(done)
	default:
		if _, ok := m.runningJob(id); !ok {
			t.Status = store.StatusError
			t.Error = "Task was interrupted before it finished"
		}
	}
	if t.Terminal() && t.FinishedAt.IsZero() {
		if mt, err := rs.ModTime(id, results.DoneFile); err == nil {
			t.FinishedAt = mt
		}
	}
	return t, nil
}

// Status returns the state of a task and how long it has run.
func (m *Manager) Status(id string) (StatusInfo, error) {
	t, err := m.lookup(id)
	if err != nil {
		return StatusInfo{}, err
	}
	end := time.Now()
	if t.Terminal() && !t.FinishedAt.IsZero() {
		end = t.FinishedAt
	}
	elapsed := 0.0
	if !t.StartedAt.IsZero() {
		elapsed = end.Sub(t.StartedAt).Seconds()
	}
	model := t.Model
	if model == "" {
		model = "unknown"
	}
	return StatusInfo{
		TaskID:       id,
		Status:       t.Status,
		Error:        t.Error,
		ElapsedTime:  elapsed,
		Model:        model,
		SearchEngine: t.SearchEngine,
	}, nil
}

// Result returns the article of a finished task.
func (m *Manager) Result(id string) (ResultInfo, error) {
	t, err := m.lookup(id)
	if err != nil {
		return ResultInfo{}, err
	}
	r, err := m.opts.Results.Result(id)
	if errors.Is(err, results.ErrNotFound) {
		return ResultInfo{}, ErrResultNotAvailable
	}
	if err != nil {
		return ResultInfo{}, err
	}
	model := r.Model
	if model == "" {
		model = t.Model
	}
	return ResultInfo{TaskID: id, Result: r.Result, Model: model, SearchEngine: r.SearchEngine}, nil
}

// TaskGraph returns the task tree. Before the first checkpoint it is a single
// placeholder node carrying the prompt.
func (m *Manager) TaskGraph(id string) (*taskgraph.Node, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	rec, err := m.opts.Results.Nodes(id)
	if errors.Is(err, results.ErrNotFound) {
		return taskgraph.Placeholder(t.Prompt), nil
	}
	if err != nil {
		return nil, err
	}
	return taskgraph.FromRecord(rec), nil
}

// Workspace returns the article written so far, empty before the first
// section.
func (m *Manager) Workspace(id string) (string, error) {
	if _, err := m.lookup(id); err != nil {
		return "", err
	}
	text, err := m.opts.Results.Workspace(id)
	if errors.Is(err, results.ErrNotFound) {
		return "", nil
	}
	return text, err
}

// Stop cancels a running task, writes its stop marker and returns a message
// for the user. Stopping a finished task is not an error.
func (m *Manager) Stop(id string) (string, error) {
	t, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	j, running := m.runningJob(id)
	if t.Terminal() || (running && !j.markStopped()) {
		if running {
			// finished between lookup and markStopped
			t, _ = m.lookup(id)
		}
		return fmt.Sprintf("Task %s is already %s", id, t.Status), nil
	}

	now := time.Now()
	if err := m.opts.Results.MarkDone(id, "Stopped by user at "+now.Format(doneTimeLayout)); err != nil {
		return "", fmt.Errorf("write stop marker: %w", err)
	}
	err = m.opts.Results.WriteResult(results.Result{
		ID:           id,
		Result:       StoppedResult,
		Model:        t.Model,
		SearchEngine: t.SearchEngine,
		FinishedAt:   now.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("write stop result: %w", err)
	}
	if err := m.opts.Index.SetStatus(id, store.StatusStopped, ""); err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if running {
		j.cancel()
	}

	m.logger.Info("task stopped", "task_id", id)
	m.notify(Event{TaskID: id, Status: store.StatusStopped, Message: "Task was stopped by user"})
	return fmt.Sprintf("Task %s has been stopped", id), nil
}

// Delete stops a task if needed and removes every trace of it.
func (m *Manager) Delete(id string) error {
	if _, err := m.lookup(id); err != nil {
		return err
	}
	if j, ok := m.runningJob(id); ok {
		j.markStopped()
		j.cancel()
		<-j.done
	}
	if err := m.opts.Results.Remove(id); err != nil && !errors.Is(err, results.ErrNotFound) {
		return fmt.Errorf("remove task files: %w", err)
	}
	if err := m.opts.Index.DeleteTask(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if m.opts.Audit != nil {
		if err := m.opts.Audit.DeleteForTask(id); err != nil {
			m.logger.Warn("delete policy decisions failed", "task_id", id, "error", err)
		}
	}
	m.logger.Info("task deleted", "task_id", id)
	return nil
}

// Reload rebuilds the index from the task directories and returns how many
// tasks it holds.
func (m *Manager) Reload() (int, error) {
	ids, err := m.opts.Results.List()
	if err != nil {
		return 0, err
	}
	tasks := make([]store.Task, 0, len(ids))
	for _, id := range ids {
		if !ValidTaskID(id) {
			continue
		}
		t, err := m.taskFromDisk(id)
		if err != nil {
			m.logger.Warn("skipping unreadable task", "task_id", id, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	if err := m.opts.Index.ReplaceTasks(tasks); err != nil {
		return 0, err
	}
	m.logger.Info("task storage reloaded", "tasks", len(tasks))
	return len(tasks), nil
}

// History lists tasks that produced a result, newest first.
func (m *Manager) History() ([]HistoryEntry, error) {
	tasks, err := m.opts.Index.ListTasks()
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(tasks))
	for _, t := range tasks {
		if _, err := m.opts.Results.Result(t.ID); err != nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			TaskID:    t.ID,
			Prompt:    truncatePrompt(t.Prompt),
			Type:      t.Kind,
			CreatedAt: t.CreatedAt.Local().Format(doneTimeLayout),
		})
	}
	return entries, nil
}

func truncatePrompt(s string) string {
	if utf8.RuneCountInString(s) <= HistoryPromptLen {
		return s
	}
	return string([]rune(s)[:HistoryPromptLen]) + "..."
}

// Wait blocks until the task is no longer running in this process and
// returns its final status.
func (m *Manager) Wait(ctx context.Context, id string) (StatusInfo, error) {
	if j, ok := m.runningJob(id); ok {
		select {
		case <-j.done:
		case <-ctx.Done():
			return StatusInfo{}, ctx.Err()
		}
	}
	return m.Status(id)
}
