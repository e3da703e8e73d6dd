package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCrashHandler_SetContext(t *testing.T) {
	globalContext = &CrashContext{}

	SetBasePath("/tmp/test-quill")
	SetVersion("1.0.0-test")
	SetCommand("serve")

	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()

	if globalContext.basePath != "/tmp/test-quill" {
		t.Errorf("Expected basePath '/tmp/test-quill', got '%s'", globalContext.basePath)
	}
	if globalContext.version != "1.0.0-test" {
		t.Errorf("Expected version '1.0.0-test', got '%s'", globalContext.version)
	}
	if globalContext.command != "serve" {
		t.Errorf("Expected command 'serve', got '%s'", globalContext.command)
	}
}

func TestCrashHandler_FormatCrashLog(t *testing.T) {
	log := CrashLog{
		Timestamp:  time.Date(2025, 3, 26, 10, 0, 0, 0, time.UTC),
		Version:    "1.0.0",
		Command:    "serve",
		TaskID:     "story-1",
		Prompt:     "Write a fable",
		PanicValue: "nil map",
		StackTrace: "goroutine 1 [running]:\n",
		GoVersion:  "go1.24",
		OS:         "linux",
		Arch:       "amd64",
	}
	out := formatCrashLog(log)
	for _, want := range []string{"QUILL CRASH LOG", "Task:      story-1", "nil map", "goroutine 1", "TASK PROMPT", "Write a fable"} {
		if !strings.Contains(out, want) {
			t.Errorf("crash log missing %q", want)
		}
	}
}

func TestRecoverTask(t *testing.T) {
	globalContext = &CrashContext{}
	dir := t.TempDir()
	SetBasePath(dir)

	var got error
	func() {
		defer RecoverTask("story-1", strings.Repeat("p", 600), func(err error) { got = err })
		var m map[string]int
		m["boom"] = 1
	}()

	if got == nil {
		t.Fatal("expected onPanic to be called")
	}
	if !strings.Contains(got.Error(), "internal error") {
		t.Errorf("unexpected error %v", got)
	}

	logs, err := ListCrashLogs()
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 crash log, got %d", len(logs))
	}
	content, err := os.ReadFile(logs[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "story-1") || !strings.Contains(string(content), "[truncated]") {
		t.Errorf("crash log lacks task context:\n%s", content)
	}
}

func TestRecoverTask_NoPanic(t *testing.T) {
	called := false
	func() {
		defer RecoverTask("t", "", func(error) { called = true })
	}()
	if called {
		t.Error("onPanic called without a panic")
	}
}

func TestCrashHandler_CleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < MaxCrashLogs+3; i++ {
		name := fmt.Sprintf("crash_20250101_0000%02d.000.log", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := cleanOldCrashLogs(dir); err != nil {
		t.Fatal(err)
	}
	logs, err := listCrashLogs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != MaxCrashLogs-1 {
		t.Errorf("kept %d logs, want %d", len(logs), MaxCrashLogs-1)
	}
	if filepath.Base(logs[0]) != "crash_20250101_000004.000.log" {
		t.Errorf("oldest kept = %s", filepath.Base(logs[0]))
	}
	if _, err := os.Stat(filepath.Join(dir, "other.txt")); err != nil {
		t.Error("unrelated files must be kept")
	}
}

func TestCrashHandler_DefaultBasePath(t *testing.T) {
	globalContext = &CrashContext{}
	if got := getCrashLogDir(); got != CrashLogDir {
		t.Errorf("getCrashLogDir() = %q, want %q", got, CrashLogDir)
	}
}

func TestForTaskAndTee(t *testing.T) {
	var file, console bytes.Buffer
	job := ForTask(&file, "report-7")
	base := slog.New(slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}))

	l := Tee(base, job).With("step", 3)
	l.Debug("planning")
	l.Info("executed", "node", "1.2")

	if !strings.Contains(file.String(), "task_id=report-7") || !strings.Contains(file.String(), "planning") {
		t.Errorf("task log missing records:\n%s", file.String())
	}
	if strings.Contains(console.String(), "planning") {
		t.Error("debug record leaked into the info-level handler")
	}
	if !strings.Contains(console.String(), "step=3") || !strings.Contains(console.String(), "node=1.2") {
		t.Errorf("console log = %s", console.String())
	}
}

func TestTeeJoinsErrors(t *testing.T) {
	h := teeHandler{failingHandler{}, failingHandler{}}
	err := h.Handle(context.Background(), slog.Record{})
	if err == nil || !errors.Is(err, errHandle) {
		t.Errorf("Handle() error = %v", err)
	}
}

var errHandle = errors.New("handle failed")

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (failingHandler) Handle(_ context.Context, _ slog.Record) error  { return errHandle }
