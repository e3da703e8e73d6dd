package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetPrompt(t *testing.T) {
	templatesDir := t.TempDir()

	tests := []struct {
		name      string
		promptKey PromptKey
		wantError bool
		contains  []string
	}{
		{
			name:      "story planning prompt",
			promptKey: KeyStoryPlanning,
			contains:  []string{"<result>", "sub_tasks"},
		},
		{
			name:      "report atom update prompt",
			promptKey: KeyReportAtomUpdate,
			contains:  []string{"<goal_updating>", "<atomic_task_determination>"},
		},
		{
			name:      "search agent prompt",
			promptKey: KeySearchAgent,
			contains:  []string{"<current_turn_search_querys>", "<missing_info>"},
		},
		{
			name:      "report writer prompt",
			promptKey: KeyReportWriter,
			contains:  []string{"<article>", "[reference:X]"},
		},
		{
			name:      "unknown prompt",
			promptKey: "story/poem",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := GetPrompt(tt.promptKey, templatesDir)
			if (err != nil) != tt.wantError {
				t.Errorf("GetPrompt() error = %v, wantError %v", err, tt.wantError)
				return
			}
			for _, expected := range tt.contains {
				if !strings.Contains(prompt, expected) {
					t.Errorf("GetPrompt() prompt does not contain %q", expected)
				}
			}
		})
	}
}

func TestGetPrompt_Override(t *testing.T) {
	dir := t.TempDir()
	custom := `{{define "user"}}custom {{.Task}}{{end}}`
	if err := os.WriteFile(filepath.Join(dir, "story_writer.tmpl"), []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := GetPrompt(KeyStoryWriter, dir)
	if err != nil {
		t.Fatalf("GetPrompt() error = %v", err)
	}
	if got != custom {
		t.Errorf("GetPrompt() = %q, want override", got)
	}

	r, err := NewRenderer(dir)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	system, user, err := r.Render(KeyStoryWriter, Args{Task: "chapter one"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if system != "" {
		t.Errorf("system = %q, want empty", system)
	}
	if user != "custom chapter one" {
		t.Errorf("user = %q", user)
	}
}

func TestNewRenderer_BrokenOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report_writer.tmpl"), []byte(`{{define "user"}}{{.Nope`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRenderer(dir); err == nil {
		t.Fatal("NewRenderer() error = nil, want parse error")
	}

	if err := os.WriteFile(filepath.Join(dir, "report_writer.tmpl"), []byte(`no blocks`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRenderer(dir); err == nil {
		t.Fatal("NewRenderer() error = nil, want missing user block")
	}
}

func TestRender_AllPrompts(t *testing.T) {
	r, err := NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	args := Args{
		RootQuestion: "ROOT-Q",
		Task:         "TASK-X",
		Article:      "ARTICLE",
		TodayDate:    "Jan 2, 2026",
		Question:     "TASK-X",
		SearchTask:   "TASK-X",
		Turn:         2,
	}
	for _, key := range Keys() {
		t.Run(string(key), func(t *testing.T) {
			system, user, err := r.Render(key, args)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if user == "" {
				t.Fatal("empty user message")
			}
			if strings.Contains(system+user, "{{") {
				t.Error("unrendered template action in output")
			}
			if key != KeySearchSelect && key != KeySearchSummarize && !strings.Contains(system+user, "TASK-X") {
				t.Error("task not rendered")
			}
		})
	}
}

func TestRender_Fence(t *testing.T) {
	r, err := NewRenderer("")
	if err != nil {
		t.Fatal(err)
	}
	_, user, err := r.Render(KeyStoryWriter, Args{Article: "once upon a time"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(user, "```\nonce upon a time\n```") {
		t.Errorf("article not fenced:\n%s", user)
	}
}
