package utils

import (
	"testing"
)

type planEnvelope struct {
	SubTasks []struct {
		ID   string `json:"id"`
		Goal string `json:"goal"`
	} `json:"sub_tasks"`
}

func TestExtractAndParseJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLen  int
		wantGoal string
		wantErr  bool
	}{
		{
			name:     "plain object",
			input:    `{"sub_tasks": [{"id": "1", "goal": "intro"}]}`,
			wantLen:  1,
			wantGoal: "intro",
		},
		{
			name:     "fenced with prose",
			input:    "Here is the plan:\n```json\n{\"sub_tasks\": [{\"id\": \"1\", \"goal\": \"a\"}, {\"id\": \"2\", \"goal\": \"b\"}]}\n```\nDone.",
			wantLen:  2,
			wantGoal: "a",
		},
		{
			name:     "trailing comma",
			input:    `{"sub_tasks": [{"id": "1", "goal": "x",},]}`,
			wantLen:  1,
			wantGoal: "x",
		},
		{
			name:     "raw newline inside string",
			input:    "{\"sub_tasks\": [{\"id\": \"1\", \"goal\": \"line one\nline two\"}]}",
			wantLen:  1,
			wantGoal: "line one\nline two",
		},
		{
			name:     "single quoted keys and values",
			input:    `{'sub_tasks': [{'id': '1', 'goal': 'quoted'}]}`,
			wantLen:  1,
			wantGoal: "quoted",
		},
		{
			name:     "truncated output",
			input:    `{"sub_tasks": [{"id": "1", "goal": "cut off`,
			wantLen:  1,
			wantGoal: "cut off",
		},
		{
			name:    "no json",
			input:   "I cannot plan this.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAndParseJSON[planEnvelope](tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got.SubTasks) != tt.wantLen {
				t.Fatalf("got %d sub tasks, want %d", len(got.SubTasks), tt.wantLen)
			}
			if got.SubTasks[0].Goal != tt.wantGoal {
				t.Errorf("goal = %q, want %q", got.SubTasks[0].Goal, tt.wantGoal)
			}
		})
	}
}

func TestExtractAndParseJSON_StringArray(t *testing.T) {
	got, err := ExtractAndParseJSON[[]string](`['solar cell efficiency 2024', 'perovskite stability']`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1] != "perovskite stability" {
		t.Errorf("got %v", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is long", 7, "this..."},
		{"日本語のテキスト", 5, "日本..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestHumanizeStatus(t *testing.T) {
	if got := HumanizeStatus("NEED_POST_REFLECT"); got != "Need Post Reflect" {
		t.Errorf("got %q", got)
	}
}
