package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
)

const (
	atomRetries = 10
	planRetries = 10

	defaultAtomicFlag = "atomic"
	complexFlag       = "complex"
)

// Planner decides whether a node is atomic, may refresh its goal from the
// results it depends on, and otherwise splits it into sub tasks.
type Planner struct {
	env *Env
}

func NewPlanner(env *Env) *Planner { return &Planner{env: env} }

func (p *Planner) Name() string { return "UpdateAtomPlanningAgent" }

func (p *Planner) Run(ctx context.Context, n *graph.Node) (graph.Outcome, error) {
	cfg := p.env.Mode.For(n.Info.TaskType)
	atom := cfg.Atom
	log := p.env.logger()

	switch {
	case atom.AllAtom:
		return p.updateOnly(ctx, n, atom)

	case atom.UseCandidatePlan:
		if n.Info.CandidatePlan == nil {
			log.Info("candidate plan missing", "node", n.ID, "goal", n.Info.Goal)
			return planOutcome(nil, nil), nil
		}
		log.Info("using candidate plan", "node", n.ID, "sub_tasks", len(n.Info.CandidatePlan))
		return planOutcome(n.Info.CandidatePlan, nil), nil

	case atom.ForceAtomLayer > 0 && n.Layer >= atom.ForceAtomLayer:
		log.Info("forcing atom", "node", n.ID, "layer", n.Layer, "force_atom_layer", atom.ForceAtomLayer)
		return planOutcome(nil, nil), nil
	}

	fields, err := p.judgeAtom(ctx, n, atom)
	if err != nil {
		return graph.Outcome{}, err
	}
	candidateThink := fields["atom_think"]

	flag := atom.AtomicFlag
	if flag == "" {
		flag = defaultAtomicFlag
	}
	if fields["atom_result"] == flag {
		return planOutcome(nil, fields), nil
	}

	if cfg.Planning == nil {
		log.Warn("node judged complex but no planning prompt is configured", "node", n.ID)
		return planOutcome(nil, fields), nil
	}
	plan, planFields, err := p.plan(ctx, n, *cfg.Planning, candidateThink)
	if err != nil {
		return graph.Outcome{}, err
	}
	for k, v := range planFields {
		fields[k] = v
	}
	return planOutcome(plan, fields), nil
}

// updateOnly handles task types that never split. With a prompt configured
// the goal may still be rewritten from dependency results.
func (p *Planner) updateOnly(ctx context.Context, n *graph.Node, atom config.AtomConfig) (graph.Outcome, error) {
	prompt := atom.PromptFor(len(n.Parents) > 0)
	if prompt == "" {
		return planOutcome(nil, nil), nil
	}
	if atom.OnlyOnDepend && len(n.Parents) == 0 {
		return planOutcome(nil, nil), nil
	}
	pc := atom.PromptConfig
	pc.Prompt = prompt
	res, err := p.env.call(ctx, pc, p.env.promptArgs(n, stageAtom, "", ""), false)
	if err != nil {
		return graph.Outcome{}, fmt.Errorf("update goal: %w", err)
	}
	res["atom_original"] = res["original"]
	delete(res, "original")
	p.updateGoal(n, res["update_result"])
	return planOutcome(nil, res), nil
}

// judgeAtom asks whether the node is atomic until the answer is usable.
func (p *Planner) judgeAtom(ctx context.Context, n *graph.Node, atom config.AtomConfig) (map[string]string, error) {
	pc := atom.PromptConfig
	pc.Prompt = atom.PromptFor(len(n.Parents) > 0)
	args := p.env.promptArgs(n, stageAtom, "", "")

	var res map[string]string
	for attempt := 0; attempt < atomRetries; attempt++ {
		var err error
		res, err = p.env.call(ctx, pc, args, attempt > 0)
		if err != nil {
			return nil, fmt.Errorf("atom judgement: %w", err)
		}
		verdict := strings.TrimSpace(res["atom_result"])
		if verdict == defaultAtomicFlag || verdict == complexFlag {
			break
		}
		p.env.logger().Error("atom judgement unusable", "node", n.ID, "attempt", attempt, "response", res["original"])
	}
	res["atom_original"] = res["original"]
	delete(res, "original")
	p.updateGoal(n, res["update_result"])
	return res, nil
}

// plan asks for sub tasks until the reply parses. A plan that never parses
// leaves the node atomic.
func (p *Planner) plan(ctx context.Context, n *graph.Node, pc config.PromptConfig, candidateThink string) ([]graph.PlanItem, map[string]string, error) {
	args := p.env.promptArgs(n, stagePlanning, candidateThink, "")

	var res map[string]string
	for attempt := 0; attempt < planRetries; attempt++ {
		var err error
		res, err = p.env.call(ctx, pc, args, attempt > 0)
		if err != nil {
			return nil, nil, fmt.Errorf("planning: %w", err)
		}
		plan, perr := ParsePlan(res["plan_result"])
		if perr != nil {
			source := strings.TrimSpace(res["plan_result"])
			if source == "" {
				source = res["original"]
			}
			res["plan_result"] = extractJSONBlock(source)
			plan, perr = ParsePlan(res["plan_result"])
		}
		if perr != nil {
			p.env.logger().Error("plan unusable", "node", n.ID, "attempt", attempt, "error", perr)
			continue
		}
		return plan, res, nil
	}
	p.env.logger().Error("planning failed, treating node as atomic", "node", n.ID)
	return nil, res, nil
}

func (p *Planner) updateGoal(n *graph.Node, update string) {
	if update == "" {
		return
	}
	old := n.Info.Goal
	n.Info.Goal = strings.ReplaceAll(update, "\n", "; ")
	p.env.logger().Info("goal updated", "node", n.ID, "from", old, "to", n.Info.Goal)
}

var errNoSubTasks = errors.New("plan has no sub_tasks field")

// ParsePlan decodes a planner reply of the form {"sub_tasks": [...]}. Code
// fences and a leading json language tag are ignored.
func ParsePlan(raw string) ([]graph.PlanItem, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty plan")
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &body); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	rawTasks, ok := body["sub_tasks"]
	if !ok {
		return nil, errNoSubTasks
	}
	var plan []graph.PlanItem
	if err := json.Unmarshal(rawTasks, &plan); err != nil {
		return nil, fmt.Errorf("decode sub_tasks: %w", err)
	}
	if plan == nil {
		plan = []graph.PlanItem{}
	}
	return plan, nil
}

var jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

func extractJSONBlock(text string) string {
	m := jsonBlockRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func planOutcome(plan []graph.PlanItem, fields map[string]string) graph.Outcome {
	if plan == nil {
		plan = []graph.PlanItem{}
	}
	if fields == nil {
		fields = map[string]string{}
	}
	out := outcomeFrom(fields)
	out.Plan = plan
	out.Result = jsonText(plan)
	return out
}
