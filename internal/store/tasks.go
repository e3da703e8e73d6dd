package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Task statuses as reported by the status API.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusStopped   = "stopped"
)

// Task is one generation job in the index.
type Task struct {
	ID           string
	Kind         string // story | report
	Prompt       string
	Model        string
	SearchEngine string
	Status       string
	Error        string
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Terminal reports whether the task will not change status again.
func (t Task) Terminal() bool {
	switch t.Status {
	case StatusCompleted, StatusError, StatusStopped:
		return true
	}
	return false
}

// txExecutor abstracts *sql.DB and *sql.Tx for inserts.
type txExecutor interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertTaskTx(tx txExecutor, t Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(`
		INSERT INTO tasks (id, kind, prompt, model, search_engine, status, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			prompt = excluded.prompt,
			model = excluded.model,
			search_engine = excluded.search_engine,
			status = excluded.status,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, t.ID, t.Kind, t.Prompt, t.Model, t.SearchEngine, t.Status, t.Error,
		t.CreatedAt.UTC().Format(time.RFC3339Nano), nullTimeString(t.StartedAt), nullTimeString(t.FinishedAt))
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

// SaveTask inserts or replaces a task row.
func (s *SQLiteStore) SaveTask(t Task) error {
	return upsertTaskTx(s.db, t)
}

// GetTask loads one task.
func (s *SQLiteStore) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, prompt, model, search_engine, status, error, created_at, started_at, finished_at
		FROM tasks WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// ListTasks returns every task, newest first.
func (s *SQLiteStore) ListTasks() ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, prompt, model, search_engine, status, error, created_at, started_at, finished_at
		FROM tasks ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}
	return tasks, nil
}

// SetStatus moves a task to status and, for terminal statuses, stamps
// finished_at.
func (s *SQLiteStore) SetStatus(id, status, errMsg string) error {
	var finished any
	t := Task{Status: status}
	if t.Terminal() {
		finished = nullTimeString(time.Now())
	}
	res, err := s.db.Exec(`
		UPDATE tasks SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE id = ?
	`, status, errMsg, finished, id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task row.
func (s *SQLiteStore) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceTasks swaps the whole index for tasks in one transaction.
func (s *SQLiteStore) ReplaceTasks(tasks []Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	for _, t := range tasks {
		if err := upsertTaskTx(tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*Task, error) {
	var t Task
	var createdAt string
	var startedAt, finishedAt sql.NullString
	if err := r.Scan(&t.ID, &t.Kind, &t.Prompt, &t.Model, &t.SearchEngine, &t.Status, &t.Error,
		&createdAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = parseNullTime(sql.NullString{String: createdAt, Valid: true})
	t.StartedAt = parseNullTime(startedAt)
	t.FinishedAt = parseNullTime(finishedAt)
	return &t, nil
}
