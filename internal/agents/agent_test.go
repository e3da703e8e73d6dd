package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/memory"
	"github.com/josephgoksu/quill/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGen replies to each prompt name with queued responses, in order.
type scriptedGen struct {
	mu      sync.Mutex
	replies map[string][]string
	reqs    []llm.Request
}

func newScriptedGen() *scriptedGen {
	return &scriptedGen{replies: make(map[string][]string)}
}

func (g *scriptedGen) on(prompt string, replies ...string) *scriptedGen {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[prompt] = append(g.replies[prompt], replies...)
	return g
}

func (g *scriptedGen) Generate(_ context.Context, req llm.Request) (llm.Reply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	queue := g.replies[req.Name]
	if len(queue) == 0 {
		return llm.Reply{}, fmt.Errorf("no reply scripted for %s", req.Name)
	}
	g.replies[req.Name] = queue[1:]
	return llm.Reply{Content: queue[0]}, nil
}

func (g *scriptedGen) requests(prompt string) []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []llm.Request
	for _, r := range g.reqs {
		if r.Name == prompt {
			out = append(out, r)
		}
	}
	return out
}

func newTestEnv(t *testing.T, mode config.Mode, gen llm.Generator) *Env {
	t.Helper()
	cfg, err := config.LoadMode(mode)
	require.NoError(t, err)
	renderer, err := prompts.NewRenderer("")
	require.NoError(t, err)
	return &Env{
		Gen:     gen,
		Prompts: renderer,
		Mode:    cfg,
		Memory:  memory.New(),
		Model:   "gpt-4o",
		Today:   "Mar 26, 2025",
	}
}

func mustPlan(t *testing.T, n *graph.Node, raw string) {
	t.Helper()
	var plan []graph.PlanItem
	require.NoError(t, json.Unmarshal([]byte(raw), &plan))
	require.NoError(t, n.BuildInnerGraph(plan))
}

func finish(n *graph.Node, result string) {
	n.Status = graph.StatusFinish
	key := graph.ActionFinalAggregate
	if n.Type == graph.ExecuteNode {
		key = graph.ActionExecute
	}
	n.Results[key] = graph.ActionRecord{Result: graph.Outcome{Result: result}}
}

func child(n *graph.Node, id string) *graph.Node {
	for _, c := range n.Queue() {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// atomOf gives n an empty plan and returns its single execute node.
func atomOf(t *testing.T, n *graph.Node) *graph.Node {
	t.Helper()
	require.NoError(t, n.BuildInnerGraph(nil))
	require.Len(t, n.Queue(), 1)
	return n.Queue()[0]
}

func TestTaskText(t *testing.T) {
	root := graph.NewRoot(graph.TaskInfo{Goal: "Write a fable", TaskType: graph.TaskWrite, Length: "800 words"})
	assert.Equal(t, "Write a fable Word count requirement: approximately 800 words", taskText(root, stageExecute))

	planning := taskText(root, stagePlanning)
	assert.Contains(t, planning, `"goal":"Write a fable"`)
	assert.NotContains(t, planning, "candidate_plan")

	think := graph.NewRoot(graph.TaskInfo{Goal: "Compare theories", TaskType: graph.TaskThink})
	assert.Equal(t, "Compare theories", taskText(think, stageFinalAggregate))
}

func TestPromptArgs_Dependencies(t *testing.T) {
	env := newTestEnv(t, config.ModeReport, newScriptedGen())
	root := graph.NewRoot(graph.TaskInfo{Goal: "Report on salt", TaskType: graph.TaskWrite, Length: "2000"})
	mustPlan(t, root, `[
		{"id": "1", "task_type": "search", "goal": "salt history", "dependency": []},
		{"id": "2", "task_type": "think", "goal": "key periods", "dependency": ["1"]},
		{"id": "3", "task_type": "write", "goal": "history section", "dependency": ["2"], "length": "600"}
	]`)
	finish(child(root, "1"), "found history")

	args := env.promptArgs(child(root, "2"), stagePlanning, "", "")
	assert.Equal(t, "Report on salt", args.RootQuestion)
	assert.Equal(t, "【salt history】: \nfound history", args.SameDependent)
	assert.Equal(t, Missing, args.CandidatePlan)
	assert.Equal(t, Missing, args.CandidateThink)
	assert.Equal(t, "Mar 26, 2025", args.TodayDate)
	assert.Empty(t, args.TargetWriteTasks, "only retrieval tasks list write targets")
	assert.True(t, strings.Contains(args.FullPlan, `"is_current_to_plan_task":true`))

	search := env.promptArgs(child(root, "1"), stagePlanning, "", "")
	assert.Equal(t, "Not Provided", search.TargetWriteTasks)
}

func TestTargetWriteTasks(t *testing.T) {
	root := graph.NewRoot(graph.TaskInfo{Goal: "Report", TaskType: graph.TaskWrite})
	mustPlan(t, root, `[
		{"id": "1", "task_type": "search", "goal": "prices", "dependency": []},
		{"id": "2", "task_type": "write", "goal": "prices section", "dependency": ["1"], "length": "300"},
		{"id": "3", "task_type": "write", "goal": "outlook", "dependency": ["1"], "length": "200"}
	]`)
	atom := atomOf(t, child(root, "1"))
	assert.Equal(t,
		"Write Task1, word count requirements: 300\nWrite Task2, word count requirements: 200",
		targetWriteTasks(atom))
	assert.Equal(t, "Write Task Report, word count requirements: ", outerWriteTask(atom))
}

func TestOutcomeFrom(t *testing.T) {
	out := outcomeFrom(map[string]string{"original": "raw", "result": "text", "reason": "", "think": "hmm"})
	assert.Equal(t, "raw", out.Original)
	assert.Equal(t, "text", out.Result)
	assert.Equal(t, map[string]string{"think": "hmm"}, out.Fields)
}

func TestEnvCall_ParsesTags(t *testing.T) {
	gen := newScriptedGen().on("story/reasoner", "<think>\nfirst\n</think>\n<result>\n  the answer  \n</result>")
	env := newTestEnv(t, config.ModeStory, gen)
	root := graph.NewRoot(graph.TaskInfo{Goal: "Design the hero", TaskType: graph.TaskThink})

	pc := env.Mode.Think.Execute.PromptConfig
	pc.Parse = map[string][]string{"result": {"result"}, "think": {"think"}}
	res, err := env.call(context.Background(), pc, env.promptArgs(root, stageExecute, "", ""), false)
	require.NoError(t, err)
	assert.Equal(t, "the answer", res["result"])
	assert.Equal(t, "first", res["think"])
	assert.Contains(t, res["original"], "<think>")

	reqs := gen.requests("story/reasoner")
	require.Len(t, reqs, 1)
	assert.Equal(t, "gpt-4o", reqs[0].Model)
	assert.Contains(t, reqs[0].User, "Design the hero")
	require.NotNil(t, reqs[0].Temperature)
}
