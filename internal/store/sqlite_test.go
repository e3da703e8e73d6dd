package store

import (
	"errors"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDir(t *testing.T) {
	dir := t.TempDir() + "/nested/data"
	s, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	if err := s.SaveTask(Task{ID: "story-1", Kind: "story", Prompt: "p", Model: "gpt-4o", Status: StatusRunning}); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestSaveAndGetTask(t *testing.T) {
	s := setupTestStore(t)

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Task{
		ID:           "report-abc",
		Kind:         "report",
		Prompt:       "State of batteries",
		Model:        "gpt-4o",
		SearchEngine: "google",
		Status:       StatusRunning,
		CreatedAt:    created,
		StartedAt:    created.Add(time.Second),
	}
	if err := s.SaveTask(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetTask("report-abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Prompt != in.Prompt || got.SearchEngine != "google" || got.Kind != "report" {
		t.Errorf("unexpected task: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("finished_at should be empty, got %v", got.FinishedAt)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetTask("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	s := setupTestStore(t)
	if err := s.SaveTask(Task{ID: "story-1", Kind: "story", Prompt: "p", Model: "m", Status: StatusRunning}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.SetStatus("story-1", StatusError, "boom"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := s.GetTask("story-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusError || got.Error != "boom" {
		t.Errorf("status = %q error = %q", got.Status, got.Error)
	}
	if got.FinishedAt.IsZero() {
		t.Error("terminal status should stamp finished_at")
	}
	if !got.Terminal() {
		t.Error("error status should be terminal")
	}

	if err := s.SetStatus("nope", StatusStopped, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTasks_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"story-a", "story-b", "story-c"} {
		err := s.SaveTask(Task{ID: id, Kind: "story", Prompt: id, Model: "m", Status: StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	tasks, err := s.ListTasks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "story-c" || tasks[2].ID != "story-a" {
		t.Errorf("unexpected order: %s, %s, %s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}

func TestDeleteAndReplaceTasks(t *testing.T) {
	s := setupTestStore(t)
	_ = s.SaveTask(Task{ID: "story-a", Kind: "story", Prompt: "a", Model: "m", Status: StatusRunning})

	if err := s.DeleteTask("story-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTask("story-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be ErrNotFound, got %v", err)
	}

	replacement := []Task{
		{ID: "report-x", Kind: "report", Prompt: "x", Model: "m", Status: StatusCompleted},
		{ID: "report-y", Kind: "report", Prompt: "y", Model: "m", Status: StatusRunning},
	}
	if err := s.ReplaceTasks(replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}
	tasks, _ := s.ListTasks()
	if len(tasks) != 2 {
		t.Errorf("expected 2 tasks after replace, got %d", len(tasks))
	}
}

func TestCacheRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	if _, ok, err := s.GetCache("k1"); err != nil || ok {
		t.Fatalf("empty cache lookup: ok=%v err=%v", ok, err)
	}
	if err := s.PutCache(CacheEntry{Key: "k1", Name: "llm", Value: "hello"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutCache(CacheEntry{Key: "k1", Name: "llm", Value: "hello again"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := s.GetCache("k1")
	if err != nil || !ok || v != "hello again" {
		t.Fatalf("GetCache = %q %v %v", v, ok, err)
	}

	_ = s.PutCache(CacheEntry{Key: "k2", Name: "search", Value: "[]", AddedAt: time.Now().Add(-48 * time.Hour)})
	if n, _ := s.CountCache("llm"); n != 1 {
		t.Errorf("CountCache(llm) = %d, want 1", n)
	}
	if n, _ := s.CountCache(""); n != 2 {
		t.Errorf("CountCache() = %d, want 2", n)
	}
	pruned, err := s.PruneCache(time.Now().Add(-24 * time.Hour))
	if err != nil || pruned != 1 {
		t.Errorf("PruneCache = %d %v, want 1", pruned, err)
	}
}
