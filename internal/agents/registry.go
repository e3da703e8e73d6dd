package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/josephgoksu/quill/internal/graph"
)

// AgentInfo describes an agent for the registry.
type AgentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry lists which agent serves each node action.
var Registry = []AgentInfo{
	{
		ID:          string(graph.ActionPlan),
		Name:        "UpdateAtomPlanningAgent",
		Description: "Judges whether a task is atomic, refreshes its goal and splits complex tasks",
	},
	{
		ID:          string(graph.ActionExecute),
		Name:        "SimpleExecutor",
		Description: "Writes, reasons, or searches the web for an atomic task",
	},
	{
		ID:          string(graph.ActionFinalAggregate),
		Name:        "FinalAggregateAgent",
		Description: "Combines the results of finished sub tasks",
	},
	{
		ID:          string(graph.ActionUpdate),
		Name:        "DummyAgent",
		Description: "Moves a task whose dependencies finished back to ready",
	},
	{
		ID:          string(graph.ActionPriorReflect),
		Name:        "DummyAgent",
		Description: "Starts the sub tasks of a planned task",
	},
	{
		ID:          string(graph.ActionPlanningPostReflect),
		Name:        "DummyAgent",
		Description: "Finishes an aggregated task",
	},
	{
		ID:          string(graph.ActionExecutePostReflect),
		Name:        "DummyAgent",
		Description: "Finishes an executed task",
	},
}

// GetAgentByID returns agent info by action, or nil if not found.
func GetAgentByID(id string) *AgentInfo {
	for _, a := range Registry {
		if a.ID == id {
			return &a
		}
	}
	return nil
}

// Dispatcher routes node actions to agents. It implements graph.Performer.
type Dispatcher struct {
	agents map[graph.Action]Agent
	logger *slog.Logger
}

var _ graph.Performer = (*Dispatcher)(nil)

// NewDispatcher binds every action to its agent over env.
func NewDispatcher(env *Env) *Dispatcher {
	noop := Noop{}
	return &Dispatcher{
		agents: map[graph.Action]Agent{
			graph.ActionPlan:                NewPlanner(env),
			graph.ActionExecute:             NewExecutor(env),
			graph.ActionFinalAggregate:      NewFinalAggregate(env),
			graph.ActionUpdate:              noop,
			graph.ActionPriorReflect:        noop,
			graph.ActionPlanningPostReflect: noop,
			graph.ActionExecutePostReflect:  noop,
		},
		logger: env.logger(),
	}
}

// Perform runs the agent bound to action on n.
func (d *Dispatcher) Perform(ctx context.Context, action graph.Action, n *graph.Node) (graph.Outcome, error) {
	a, ok := d.agents[action]
	if !ok {
		return graph.Outcome{}, fmt.Errorf("no agent for action %q", action)
	}
	level := slog.LevelInfo
	if action.Quiet() {
		level = slog.LevelDebug
	}
	start := time.Now()
	d.logger.Log(ctx, level, "action started", "action", action, "agent", a.Name(), "node", n.String())
	out, err := a.Run(ctx, n)
	if err != nil {
		return graph.Outcome{}, err
	}
	d.logger.Log(ctx, level, "action finished", "action", action, "node", n.ID, "duration", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// Agent names the agent serving action.
func (d *Dispatcher) Agent(action graph.Action) string {
	if a, ok := d.agents[action]; ok {
		return a.Name()
	}
	return ""
}
