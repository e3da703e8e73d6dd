package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
)

// FinalAggregate combines the results of a plan node's children once they
// have all finished.
type FinalAggregate struct {
	env *Env
}

func NewFinalAggregate(env *Env) *FinalAggregate { return &FinalAggregate{env: env} }

func (f *FinalAggregate) Name() string { return "FinalAggregateAgent" }

func (f *FinalAggregate) Run(ctx context.Context, n *graph.Node) (graph.Outcome, error) {
	switch n.Tag() {
	case graph.TagComposition:
		// Children appended their text to the article as they finished.
		return graph.Outcome{Result: f.env.Memory.Article()}, nil

	case graph.TagRetrieval:
		return graph.Outcome{Result: concatChildren(n)}, nil

	default:
		joined := concatChildren(n)
		fa := f.env.Mode.For(n.Info.TaskType).FinalAggregate
		if fa.Mode != config.AggregateLLM {
			return graph.Outcome{Result: joined}, nil
		}
		res, err := f.env.call(ctx, fa.PromptConfig, f.env.promptArgs(n, stageFinalAggregate, "", joined), false)
		if err != nil {
			return graph.Outcome{}, fmt.Errorf("final aggregate: %w", err)
		}
		return outcomeFrom(res), nil
	}
}

func concatChildren(n *graph.Node) string {
	parts := make([]string, 0, len(n.Queue()))
	for _, c := range n.Queue() {
		var result string
		if res := c.FinalResult(); res != nil {
			result = res.Result
		}
		parts = append(parts, fmt.Sprintf("【%s】:\n %s", c.Info.Goal, result))
	}
	return strings.Join(parts, "\n\n")
}

// Noop serves bookkeeping actions that only move a node's status.
type Noop struct{}

func (Noop) Name() string { return "DummyAgent" }

func (Noop) Run(context.Context, *graph.Node) (graph.Outcome, error) {
	return graph.Outcome{}, nil
}
