// Package prompts holds the prompt templates used by the writing agents and
// lets a deployment override any of them from a directory.
package prompts

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// PromptKey is a type for identifying specific prompts.
type PromptKey string

const (
	KeyStoryPlanning          PromptKey = "story/planning"
	KeyStoryAtom              PromptKey = "story/atom"
	KeyStoryAtomUpdate        PromptKey = "story/atom_update"
	KeyStoryWriter            PromptKey = "story/writer"
	KeyStoryReasoner          PromptKey = "story/reasoner"
	KeyStoryReasonerAggregate PromptKey = "story/reasoner_aggregate"

	KeyReportPlanning         PromptKey = "report/planning"
	KeyReportAtom             PromptKey = "report/atom"
	KeyReportAtomUpdate       PromptKey = "report/atom_update"
	KeyReportWriter           PromptKey = "report/writer"
	KeyReportReasoner         PromptKey = "report/reasoner"
	KeyReportSearchOnlyUpdate PromptKey = "report/search_only_update"
	KeyReportSearchMerge      PromptKey = "report/search_merge"

	KeySearchAgent     PromptKey = "search/agent"
	KeySearchFake      PromptKey = "search/fake"
	KeySearchSelect    PromptKey = "search/select"
	KeySearchSummarize PromptKey = "search/summarize"
)

// promptConfig defines the default content and filename for a prompt.
type promptConfig struct {
	defaultContent string
	filename       string
}

// promptRegistry maps a PromptKey to its configuration.
var promptRegistry = map[PromptKey]promptConfig{
	KeyStoryPlanning:          {storyPlanning, "story_planning.tmpl"},
	KeyStoryAtom:              {storyAtom, "story_atom.tmpl"},
	KeyStoryAtomUpdate:        {storyAtomUpdate, "story_atom_update.tmpl"},
	KeyStoryWriter:            {storyWriter, "story_writer.tmpl"},
	KeyStoryReasoner:          {storyReasoner, "story_reasoner.tmpl"},
	KeyStoryReasonerAggregate: {storyReasonerAggregate, "story_reasoner_aggregate.tmpl"},

	KeyReportPlanning:         {reportPlanning, "report_planning.tmpl"},
	KeyReportAtom:             {reportAtom, "report_atom.tmpl"},
	KeyReportAtomUpdate:       {reportAtomUpdate, "report_atom_update.tmpl"},
	KeyReportWriter:           {reportWriter, "report_writer.tmpl"},
	KeyReportReasoner:         {reportReasoner, "report_reasoner.tmpl"},
	KeyReportSearchOnlyUpdate: {reportSearchOnlyUpdate, "report_search_only_update.tmpl"},
	KeyReportSearchMerge:      {reportSearchMerge, "report_search_merge.tmpl"},

	KeySearchAgent:     {searchAgent, "search_agent.tmpl"},
	KeySearchFake:      {searchFake, "search_fake.tmpl"},
	KeySearchSelect:    {searchSelect, "search_select.tmpl"},
	KeySearchSummarize: {searchSummarize, "search_summarize.tmpl"},
}

// Keys lists every registered prompt, sorted.
func Keys() []PromptKey {
	keys := make([]PromptKey, 0, len(promptRegistry))
	for k := range promptRegistry {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Args are the values a prompt can reference.
type Args struct {
	RootQuestion      string
	Article           string
	FullPlan          string
	OuterDependent    string
	SameDependent     string
	Task              string
	CandidatePlan     string
	CandidateThink    string
	FinalAggregate    string
	TargetWriteTasks  string
	GlobalWritingPlan string
	TodayDate         string

	// Search merge and search agent.
	SearchTask     string
	SearchResults  string
	OuterWriteTask string
	Question       string
	Turn           int
	ActionHistory  string
	ToolResult     string

	// Page judge and summariser.
	Think   string
	Passage string
}

var funcs = template.FuncMap{
	"fence": func() string { return "```" },
}

// GetPrompt searches templatesDir for a user-provided override of the prompt.
// If found, it returns the content of that file. Otherwise, it returns the
// built-in template.
func GetPrompt(key PromptKey, templatesDir string) (string, error) {
	config, ok := promptRegistry[key]
	if !ok {
		return "", fmt.Errorf("unrecognized prompt key: %s", key)
	}

	if strings.TrimSpace(templatesDir) == "" {
		return config.defaultContent, nil
	}

	customPromptPath := filepath.Join(templatesDir, config.filename)
	if _, err := os.Stat(customPromptPath); err == nil {
		content, readErr := os.ReadFile(customPromptPath)
		if readErr != nil {
			return "", fmt.Errorf("failed to read custom prompt file at %s: %w", customPromptPath, readErr)
		}
		slog.Debug("using custom prompt", "key", key, "path", customPromptPath)
		return string(content), nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("error checking for custom prompt file at %s: %w", customPromptPath, err)
	}

	return config.defaultContent, nil
}

// Renderer renders prompts, caching parsed templates.
type Renderer struct {
	dir    string
	parsed map[PromptKey]*template.Template
}

// NewRenderer parses every prompt up front so a broken override fails at
// startup rather than mid-job.
func NewRenderer(templatesDir string) (*Renderer, error) {
	r := &Renderer{dir: templatesDir, parsed: make(map[PromptKey]*template.Template, len(promptRegistry))}
	for _, key := range Keys() {
		content, err := GetPrompt(key, templatesDir)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(string(key)).Funcs(funcs).Option("missingkey=error").Parse(content)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", key, err)
		}
		if tmpl.Lookup("user") == nil {
			return nil, fmt.Errorf("prompt %s: missing \"user\" block", key)
		}
		r.parsed[key] = tmpl
	}
	return r, nil
}

// Render returns the system and user messages for a prompt. A prompt without
// a "system" block yields an empty system message.
func (r *Renderer) Render(key PromptKey, args Args) (system, user string, err error) {
	tmpl, ok := r.parsed[key]
	if !ok {
		return "", "", fmt.Errorf("unrecognized prompt key: %s", key)
	}
	if tmpl.Lookup("system") != nil {
		if system, err = execute(tmpl, "system", args); err != nil {
			return "", "", err
		}
	}
	if user, err = execute(tmpl, "user", args); err != nil {
		return "", "", err
	}
	return system, user, nil
}

func execute(tmpl *template.Template, name string, args Args) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, args); err != nil {
		return "", fmt.Errorf("render prompt %s/%s: %w", tmpl.Name(), name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
