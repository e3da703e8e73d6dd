package config

import (
	"embed"
	"fmt"

	"github.com/josephgoksu/quill/internal/graph"
	"gopkg.in/yaml.v3"
)

//go:embed modes/*.yaml
var modeFS embed.FS

// Mode names a writing mode.
type Mode string

const (
	ModeStory  Mode = "story"
	ModeReport Mode = "report"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeStory || m == ModeReport
}

// FakeSearchPrompt answers retrieval tasks from the model's own knowledge.
const FakeSearchPrompt = "search/fake"

// ModeConfig drives the agents for one writing mode.
type ModeConfig struct {
	Name                   Mode                `yaml:"name" validate:"required,oneof=story report"`
	Language               string              `yaml:"language" validate:"required,oneof=en"`
	RootLength             string              `yaml:"root_length" validate:"required"`
	OfferGlobalWritingPlan bool                `yaml:"offer_global_writing_plan"`
	RequireKeys            map[string][]string `yaml:"require_keys"`

	Write  TaskTypeConfig `yaml:"write"`
	Search TaskTypeConfig `yaml:"search"`
	Think  TaskTypeConfig `yaml:"think"`
}

// TaskTypeConfig configures the agents serving one task type.
type TaskTypeConfig struct {
	Execute        *ExecuteConfig  `yaml:"execute" validate:"required"`
	Atom           AtomConfig      `yaml:"atom"`
	Planning       *PromptConfig   `yaml:"planning"`
	FinalAggregate AggregateConfig `yaml:"final_aggregate"`
	SearchMerge    *PromptConfig   `yaml:"search_merge"`
}

// PromptConfig names a prompt, its sampling settings and the tags to parse
// from the reply. Each parse entry is a tag path, outermost first.
type PromptConfig struct {
	Prompt      string              `yaml:"prompt"`
	Model       string              `yaml:"model"`
	Temperature *float32            `yaml:"temperature"`
	Parse       map[string][]string `yaml:"parse"`
}

// AtomConfig decides whether a node is atomic and may rewrite its goal.
type AtomConfig struct {
	PromptConfig `yaml:",inline"`

	UpdateDiff          bool   `yaml:"update_diff"`
	WithoutUpdatePrompt string `yaml:"without_update_prompt"`
	WithUpdatePrompt    string `yaml:"with_update_prompt"`
	AtomicFlag          string `yaml:"atomic_flag"`
	ForceAtomLayer      int    `yaml:"force_atom_layer"`
	AllAtom             bool   `yaml:"all_atom"`
	OnlyOnDepend        bool   `yaml:"only_on_depend"`
	UseCandidatePlan    bool   `yaml:"use_candidate_plan"`
}

// PromptFor picks the atom prompt; nodes with dependencies get the variant
// that may also update the goal.
func (a AtomConfig) PromptFor(hasParents bool) string {
	if !a.UpdateDiff {
		return a.Prompt
	}
	if hasParents {
		return a.WithUpdatePrompt
	}
	return a.WithoutUpdatePrompt
}

// Aggregation modes.
const (
	AggregateConcat = "concat"
	AggregateLLM    = "llm"
)

// AggregateConfig controls how a plan node combines its children.
type AggregateConfig struct {
	PromptConfig `yaml:",inline"`
	Mode         string `yaml:"mode" validate:"omitempty,oneof=concat llm"`
}

// ExecuteConfig configures the executor, including the search agent for
// retrieval tasks.
type ExecuteConfig struct {
	PromptConfig `yaml:",inline"`

	ReactAgent          bool                `yaml:"react_agent"`
	ReactParse          map[string][]string `yaml:"react_parse"`
	MaxTurn             int                 `yaml:"max_turn" validate:"min=0"`
	LLMMerge            bool                `yaml:"llm_merge"`
	OnlyUseReactSummary bool                `yaml:"only_use_react_summary"`
	Search              SearchTuning        `yaml:"search"`
}

// SearchTuning sizes one web search round.
type SearchTuning struct {
	Engine            string `yaml:"engine" validate:"omitempty,oneof=google bing"`
	CC                string `yaml:"cc"`
	TopK              int    `yaml:"topk" validate:"min=0"`
	PKQuota           int    `yaml:"pk_quota" validate:"min=0"`
	SelectQuota       int    `yaml:"select_quota" validate:"min=0"`
	SearchWorkers     int    `yaml:"search_workers" validate:"min=0"`
	FetchWorkers      int    `yaml:"fetch_workers" validate:"min=0"`
	SelectorWorkers   int    `yaml:"selector_workers" validate:"min=0"`
	SummarizerWorkers int    `yaml:"summarizer_workers" validate:"min=0"`
	SelectorModel     string `yaml:"selector_model"`
	SummarizerModel   string `yaml:"summarizer_model"`
}

// LoadMode parses the embedded configuration for a mode.
func LoadMode(mode Mode) (*ModeConfig, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	data, err := modeFS.ReadFile("modes/" + string(mode) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("read mode %s: %w", mode, err)
	}
	return ParseMode(data)
}

// ParseMode decodes and validates a mode configuration.
func ParseMode(data []byte) (*ModeConfig, error) {
	var cfg ModeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse mode: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid mode %q: %w", cfg.Name, err)
	}
	return &cfg, nil
}

// For returns the settings for a task type. Unknown types are treated as
// reasoning.
func (m *ModeConfig) For(taskType string) *TaskTypeConfig {
	switch graph.TagOf(taskType) {
	case graph.TagComposition:
		return &m.Write
	case graph.TagRetrieval:
		return &m.Search
	default:
		return &m.Think
	}
}

// WithoutWebSearch returns a copy whose retrieval tasks are answered by the
// model instead of a search agent.
func (m *ModeConfig) WithoutWebSearch() *ModeConfig {
	out := *m
	if out.Search.Execute == nil || !out.Search.Execute.ReactAgent {
		return &out
	}
	temp := float32(0.3)
	out.Search.Execute = &ExecuteConfig{
		PromptConfig: PromptConfig{
			Prompt:      FakeSearchPrompt,
			Temperature: &temp,
			Parse:       map[string][]string{"result": {"result"}},
		},
	}
	out.Search.SearchMerge = nil
	return &out
}
