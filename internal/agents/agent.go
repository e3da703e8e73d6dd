/*
Package agents implements the workers behind each node action: planning,
execution, aggregation and the multi-round web search agent.
*/
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/memory"
	"github.com/josephgoksu/quill/internal/search"
	"github.com/josephgoksu/quill/internal/utils"
	"github.com/josephgoksu/quill/prompts"
)

// Agent serves one node action.
type Agent interface {
	// Name identifies the agent in stored action records.
	Name() string
	Run(ctx context.Context, n *graph.Node) (graph.Outcome, error)
}

// Browser runs one round of web search for the search agent.
type Browser interface {
	FullPipelineSearch(ctx context.Context, queries []string, question, think string, startIndex int) (search.Result, error)
}

// Env is what the agents of one job share.
type Env struct {
	Gen     llm.Generator
	Prompts *prompts.Renderer
	Mode    *config.ModeConfig
	Memory  *memory.Memory
	// Model serves every prompt that does not name its own.
	Model string
	// Browser may be nil when the mode answers retrieval tasks without
	// web search.
	Browser Browser
	Logger  *slog.Logger
	// Today is the date written into prompts. Empty means the current date.
	Today string
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Env) today() string {
	if e.Today != "" {
		return e.Today
	}
	return time.Now().Format("Jan 2, 2006")
}

// stage is the agent step a prompt is built for.
type stage string

const (
	stageAtom           stage = "atom"
	stagePlanning       stage = "planning"
	stageExecute        stage = "execute"
	stageFinalAggregate stage = "final_aggregate"
)

// Missing stands in for candidate plans and thoughts a node does not have.
const Missing = "Missing"

// promptArgs builds the values every node prompt can reference.
func (e *Env) promptArgs(n *graph.Node, st stage, candidateThink, finalAggregate string) prompts.Args {
	run := memory.CollectNodeRunInfo(n)

	var outer []string
	for _, level := range run.Upper {
		for _, p := range level {
			outer = append(outer, fmt.Sprintf("【%s】:\n %s", p.Goal, p.Result))
		}
	}
	same := make([]string, 0, len(run.Same))
	for _, p := range run.Same {
		same = append(same, fmt.Sprintf("【%s】: \n%s", p.Goal, p.Result))
	}

	task := taskText(n, st)

	candidatePlan := Missing
	if n.Info.CandidatePlan != nil {
		candidatePlan = jsonText(n.Info.CandidatePlan)
	}
	if candidateThink == "" {
		candidateThink = Missing
	}

	var targets string
	if n.Tag() == graph.TagRetrieval {
		targets = targetWriteTasks(n)
	}

	return prompts.Args{
		RootQuestion:      n.Root.Info.Goal,
		Article:           e.Memory.Article(),
		FullPlan:          jsonText(n.FullLayerPlan()),
		OuterDependent:    strings.Join(outer, "\n\n"),
		SameDependent:     strings.Join(same, "\n\n"),
		Task:              task,
		CandidatePlan:     candidatePlan,
		CandidateThink:    candidateThink,
		FinalAggregate:    finalAggregate,
		TargetWriteTasks:  targets,
		GlobalWritingPlan: n.PreviousWritingPlan(e.Mode.OfferGlobalWritingPlan),
		TodayDate:         e.today(),
	}
}

// taskText is how the node's own task appears in a prompt. Writing and
// aggregation read it as plain text; planning reads the task record.
func taskText(n *graph.Node, st stage) string {
	if st == stageExecute || st == stageFinalAggregate {
		text := n.Info.Goal
		if n.Info.Length != "" {
			text += " Word count requirement: approximately " + n.Info.Length
		}
		return text
	}
	info := n.Info
	info.CandidatePlan = nil
	return jsonText(info)
}

// targetWriteTasks lists the writing tasks waiting on a retrieval node.
func targetWriteTasks(n *graph.Node) string {
	tasks := n.DirectDependWriteTasks()
	if len(tasks) == 0 {
		return "Not Provided"
	}
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = fmt.Sprintf("Write Task%d, word count requirements: %s", i+1, t.Info.Length)
	}
	return strings.Join(lines, "\n")
}

// outerWriteTask describes the writing part that encloses a retrieval node.
func outerWriteTask(n *graph.Node) string {
	outer := n.OuterWriteTask()
	if outer == nil {
		outer = n.Root
	}
	return fmt.Sprintf("Write Task %s, word count requirements: %s", outer.Info.Goal, outer.Info.Length)
}

func jsonText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// call renders a prompt, sends it and parses the configured tags from the
// reply. The result always holds original, result and reason; parsed tags
// are added under their keys and may replace result.
func (e *Env) call(ctx context.Context, pc config.PromptConfig, args prompts.Args, overwrite bool) (map[string]string, error) {
	if pc.Prompt == "" {
		return nil, fmt.Errorf("no prompt configured")
	}
	system, user, err := e.Prompts.Render(prompts.PromptKey(pc.Prompt), args)
	if err != nil {
		return nil, err
	}
	modelID := pc.Model
	if modelID == "" {
		modelID = e.Model
	}
	reply, err := e.Gen.Generate(ctx, llm.Request{
		Name:           pc.Prompt,
		Model:          modelID,
		System:         system,
		User:           user,
		Temperature:    pc.Temperature,
		OverwriteCache: overwrite,
	})
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		"original": reply.Content,
		"result":   reply.Content,
		"reason":   reply.Reason,
	}
	for key, path := range pc.Parse {
		out[key] = strings.TrimSpace(utils.ExtractTagPath(reply.Content, path))
	}
	return out, nil
}

// outcomeFrom moves original and result out of a call's fields.
func outcomeFrom(fields map[string]string) graph.Outcome {
	out := graph.Outcome{
		Original: fields["original"],
		Result:   fields["result"],
		Fields:   make(map[string]string, len(fields)),
	}
	for k, v := range fields {
		if k == "original" || k == "result" || v == "" {
			continue
		}
		out.Fields[k] = v
	}
	return out
}
