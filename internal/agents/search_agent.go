package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/search"
	"github.com/josephgoksu/quill/internal/utils"
	"github.com/josephgoksu/quill/prompts"
)

const (
	defaultMaxTurn    = 4
	reactParseRetries = 10

	noToolResult     = "null"
	failedToolResult = "No result available due to an error"
)

// reactKeys are the fields of one search round, in the order they are
// replayed to the model.
var reactKeys = []string{"observation", "missing_info", "think", "action_think", "search_querys"}

var defaultReactTags = map[string]string{
	"observation":   "observation",
	"missing_info":  "missing_info",
	"think":         "planning_and_think",
	"action_think":  "current_turn_query_think",
	"search_querys": "current_turn_search_querys",
}

// SearchInput describes one retrieval task for the search agent.
type SearchInput struct {
	Question         string
	RootQuestion     string
	TargetWriteTasks string
	OuterWriteTask   string
	// StartIndex is the citation index of the first page found.
	StartIndex int
}

// SearchRound is the agent's decision for one round and what it got back.
type SearchRound struct {
	Turn     int               `json:"turn"`
	Fields   map[string]string `json:"fields"`
	Queries  []string          `json:"search_querys"`
	Response string            `json:"response"`

	result *search.Result
}

// TurnResult pairs the pages one round retrieved with the observation the
// agent wrote about them in the following round.
type TurnResult struct {
	Turn        int
	Pages       []search.Page
	Observation string
}

// SearchAgent searches the web over several rounds. Each round the model
// reviews what it has, notes what is missing and picks the next queries; an
// empty query list ends the search.
type SearchAgent struct {
	env *Env
	cfg *config.ExecuteConfig
}

func NewSearchAgent(env *Env, cfg *config.ExecuteConfig) *SearchAgent {
	return &SearchAgent{env: env, cfg: cfg}
}

// Run searches for in.Question. It returns the per-round results and the
// JSON encoded round history.
func (a *SearchAgent) Run(ctx context.Context, in SearchInput) ([]TurnResult, string, error) {
	maxTurn := a.cfg.MaxTurn
	if maxTurn <= 0 {
		maxTurn = defaultMaxTurn
	}
	startIndex := in.StartIndex
	log := a.env.logger()

	var rounds []*SearchRound
	for turn := 0; turn < maxTurn; turn++ {
		args := prompts.Args{
			Question:         in.Question,
			RootQuestion:     in.RootQuestion,
			OuterWriteTask:   in.OuterWriteTask,
			TargetWriteTasks: in.TargetWriteTasks,
			ActionHistory:    a.actionHistory(rounds),
			ToolResult:       toolResult(rounds),
			Turn:             turn,
			TodayDate:        a.env.today(),
		}
		round, err := a.decide(ctx, args)
		if err != nil {
			return nil, "", err
		}
		round.Turn = turn
		rounds = append(rounds, round)

		if len(round.Queries) == 0 {
			break
		}
		log.Info("search round", "turn", turn, "queries", round.Queries)
		res, err := a.env.Browser.FullPipelineSearch(ctx, round.Queries, in.Question, a.roundThink(round), startIndex)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			log.Warn("search round failed", "turn", turn, "error", err)
			continue
		}
		round.result = &res
		startIndex += len(res.Pages)
	}

	results := make([]TurnResult, 0, len(rounds))
	for i := 0; i+1 < len(rounds); i++ {
		tr := TurnResult{Turn: rounds[i].Turn, Observation: rounds[i+1].Fields["observation"]}
		if rounds[i].result != nil {
			tr.Pages = rounds[i].result.Pages
		}
		results = append(results, tr)
	}
	return results, jsonText(rounds), nil
}

// decide asks the model for the next round, retrying until its reply parses.
func (a *SearchAgent) decide(ctx context.Context, args prompts.Args) (*SearchRound, error) {
	pc := a.cfg.PromptConfig
	if pc.Prompt == "" {
		pc.Prompt = string(prompts.KeySearchAgent)
	}
	pc.Parse = nil

	var lastErr error
	for attempt := 0; attempt < reactParseRetries; attempt++ {
		res, err := a.env.call(ctx, pc, args, attempt > 0)
		if err != nil {
			return nil, fmt.Errorf("search round %d: %w", args.Turn, err)
		}
		round, err := a.parse(res["original"])
		if err == nil {
			return round, nil
		}
		lastErr = err
		a.env.logger().Info("search round reply unusable", "turn", args.Turn, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("search round %d: %w", args.Turn, lastErr)
}

func (a *SearchAgent) tagPath(key string) []string {
	if path := a.cfg.ReactParse[key]; len(path) > 0 {
		return path
	}
	return []string{defaultReactTags[key]}
}

func (a *SearchAgent) parse(reply string) (*SearchRound, error) {
	round := &SearchRound{Fields: make(map[string]string, len(reactKeys)), Response: reply}
	for _, key := range reactKeys {
		round.Fields[key] = strings.TrimSpace(utils.ExtractTagPath(reply, a.tagPath(key)))
	}
	queries, err := parseQueries(round.Fields["search_querys"])
	if err != nil {
		return nil, err
	}
	round.Queries = queries
	return round, nil
}

// parseQueries decodes a JSON array of queries, accepting single quoted
// strings as well.
func parseQueries(raw string) ([]string, error) {
	var queries []string
	if err := json.Unmarshal([]byte(raw), &queries); err == nil {
		return queries, nil
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &queries); err != nil {
		return nil, fmt.Errorf("parse search queries %q: %w", utils.Truncate(raw, 200), err)
	}
	return queries, nil
}

func (a *SearchAgent) formatRound(r *SearchRound, withQueries bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<turn=%d>\n", r.Turn)
	for _, key := range reactKeys {
		if key == "search_querys" && !withQueries {
			continue
		}
		tag := a.tagPath(key)[0]
		value := r.Fields[key]
		if key == "search_querys" {
			value = jsonText(r.Queries)
		}
		fmt.Fprintf(&b, "<%s>\n%s\n</%s>\n", tag, value, tag)
	}
	b.WriteString("</turn>")
	return b.String()
}

func (a *SearchAgent) actionHistory(rounds []*SearchRound) string {
	parts := make([]string, len(rounds))
	for i, r := range rounds {
		parts[i] = a.formatRound(r, true)
	}
	return strings.Join(parts, "\n\n")
}

// roundThink tells the page judge why this round searched.
func (a *SearchAgent) roundThink(r *SearchRound) string {
	return a.formatRound(r, false)
}

func toolResult(rounds []*SearchRound) string {
	if len(rounds) == 0 {
		return noToolResult
	}
	last := rounds[len(rounds)-1]
	if last.result == nil {
		return failedToolResult
	}
	return last.result.Text
}
