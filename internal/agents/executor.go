package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/prompts"
)

const (
	executeRetries = 50
	mergeRetries   = 50
)

// ErrNoBrowser is returned when a mode wants web search but the job has no
// search backend.
var ErrNoBrowser = errors.New("web search is not configured")

// Executor produces the output of an execute node: text for writing and
// reasoning tasks, gathered web results for retrieval tasks.
type Executor struct {
	env *Env
}

func NewExecutor(env *Env) *Executor { return &Executor{env: env} }

func (e *Executor) Name() string { return "SimpleExecutor" }

func (e *Executor) Run(ctx context.Context, n *graph.Node) (graph.Outcome, error) {
	cfg := e.env.Mode.For(n.Info.TaskType)
	if n.Tag() == graph.TagRetrieval && cfg.Execute.ReactAgent {
		return e.research(ctx, n, cfg)
	}

	args := e.env.promptArgs(n, stageExecute, "", "")
	var res map[string]string
	for attempt := 0; attempt < executeRetries; attempt++ {
		var err error
		res, err = e.env.call(ctx, cfg.Execute.PromptConfig, args, attempt > 0)
		if err != nil {
			return graph.Outcome{}, fmt.Errorf("execute: %w", err)
		}
		if strings.TrimSpace(res["result"]) != "" {
			break
		}
		e.env.logger().Error("empty execute result", "node", n.ID, "attempt", attempt, "response", res["original"])
	}

	if n.Tag() == graph.TagComposition {
		e.env.Memory.AppendArticle(res["result"])
	}
	return outcomeFrom(res), nil
}

// research runs the search agent, stores every cited page in memory and
// optionally condenses the findings for the writing tasks that need them.
func (e *Executor) research(ctx context.Context, n *graph.Node, cfg *config.TaskTypeConfig) (graph.Outcome, error) {
	if e.env.Browser == nil {
		return graph.Outcome{}, ErrNoBrowser
	}
	ex := cfg.Execute
	outerTask := outerWriteTask(n)

	agent := NewSearchAgent(e.env, ex)
	turns, history, err := agent.Run(ctx, SearchInput{
		Question:         n.Info.Goal,
		RootQuestion:     n.Root.Info.Goal,
		TargetWriteTasks: targetWriteTasks(n),
		OuterWriteTask:   outerTask,
		StartIndex:       e.env.Memory.GlobalStartIndex(),
	})
	if err != nil {
		return graph.Outcome{}, fmt.Errorf("search agent: %w", err)
	}

	var parts []string
	for _, t := range turns {
		for _, page := range t.Pages {
			e.env.Memory.AddSearchResult(page)
			if !ex.OnlyUseReactSummary {
				parts = append(parts, page.Format())
			}
		}
		parts = append(parts, "<web_pages_short_summary>\n"+t.Observation+"\n</web_pages_short_summary>")
	}
	gathered := strings.Join(parts, "\n\n")

	out := graph.Outcome{
		Original: history,
		Result:   gathered,
		Fields:   map[string]string{},
	}
	if ex.LLMMerge && cfg.SearchMerge != nil {
		merged, err := e.merge(ctx, n, *cfg.SearchMerge, gathered, outerTask)
		if err != nil {
			return graph.Outcome{}, err
		}
		out.Fields["agent_result"] = gathered
		out.Result = merged
	}
	return out, nil
}

// merge condenses raw search findings. When the model keeps answering with
// nothing the raw findings are used instead.
func (e *Executor) merge(ctx context.Context, n *graph.Node, pc config.PromptConfig, gathered, outerTask string) (string, error) {
	args := prompts.Args{
		SearchTask:       n.Info.Goal,
		SearchResults:    gathered,
		TargetWriteTasks: targetWriteTasks(n),
		OuterWriteTask:   outerTask,
		RootQuestion:     n.Root.Info.Goal,
		TodayDate:        e.env.today(),
	}
	for attempt := 0; attempt < mergeRetries; attempt++ {
		res, err := e.env.call(ctx, pc, args, attempt > 0)
		if err != nil {
			return "", fmt.Errorf("search merge: %w", err)
		}
		if r := strings.TrimSpace(res["result"]); r != "" {
			return res["result"], nil
		}
		e.env.logger().Error("empty search merge", "node", n.ID, "attempt", attempt)
	}
	e.env.logger().Error("search merge failed, keeping raw results", "node", n.ID)
	return gathered, nil
}
