// Package engine drives a task tree to completion one node action at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OutOfStep is the result of a job that hit the step limit.
const OutOfStep = "Out of Step"

// DefaultMaxSteps bounds the actions one job may run.
const DefaultMaxSteps = config.DefaultMaxSteps

// ErrStalled is returned when no node can act but the root has not finished.
var ErrStalled = errors.New("no runnable node left before the root finished")

// Checkpointer persists the tree after each step.
type Checkpointer interface {
	Checkpoint(root *graph.Node) error
}

// CheckpointFunc adapts a function to Checkpointer.
type CheckpointFunc func(root *graph.Node) error

func (f CheckpointFunc) Checkpoint(root *graph.Node) error { return f(root) }

// Options configures an Engine.
type Options struct {
	MaxSteps   int
	Checkpoint Checkpointer
	Logger     *slog.Logger
}

// Engine runs the actions of one task tree.
type Engine struct {
	root     *graph.Node
	perf     graph.Performer
	maxSteps int
	ckpt     Checkpointer
	logger   *slog.Logger
	tracer   trace.Tracer
	steps    int
}

// New returns an engine for root. The performer runs each node action.
func New(root *graph.Node, perf graph.Performer, opts Options) *Engine {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		root:     root,
		perf:     perf,
		maxSteps: opts.MaxSteps,
		ckpt:     opts.Checkpoint,
		logger:   opts.Logger,
		tracer:   otel.Tracer("quill/engine"),
	}
}

// RootTask is the task a job starts from.
func RootTask(mode *config.ModeConfig, prompt string) graph.TaskInfo {
	return graph.TaskInfo{
		ID:         "",
		Dependency: []string{},
		Goal:       prompt,
		TaskType:   graph.TaskWrite,
		Length:     mode.RootLength,
	}
}

// Root returns the tree the engine runs.
func (e *Engine) Root() *graph.Node { return e.root }

// Steps returns how many actions have run.
func (e *Engine) Steps() int { return e.steps }

// Run performs actions until the root finishes and returns its result. When
// the step limit is reached the result is OutOfStep. Cancellation is checked
// between steps.
func (e *Engine) Run(ctx context.Context) (string, error) {
	ctx, span := e.tracer.Start(ctx, "engine.run",
		trace.WithAttributes(attribute.String("task.goal", e.root.Info.Goal)))
	defer span.End()

	if e.root.Status == graph.StatusNotReady {
		e.root.Status = graph.StatusReady
	}
	start := time.Now()
	e.logger.Info("engine started", "goal", e.root.Info.Goal, "max_steps", e.maxSteps)

	for {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return "", err
		}
		if e.root.Status == graph.StatusFinish {
			break
		}
		if e.steps >= e.maxSteps {
			e.logger.Warn("step limit reached", "steps", e.steps)
			span.AddEvent("engine.out_of_step")
			return OutOfStep, nil
		}

		n := nextNode(e.root)
		if n == nil {
			span.SetStatus(codes.Error, ErrStalled.Error())
			return "", ErrStalled
		}
		if err := e.step(ctx, n); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
	}

	result := ""
	if res := e.root.FinalResult(); res != nil {
		result = res.Result
	}
	e.logger.Info("engine finished", "steps", e.steps, "duration", time.Since(start).Round(time.Second))
	span.SetAttributes(attribute.Int("engine.steps", e.steps))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (e *Engine) step(ctx context.Context, n *graph.Node) error {
	ctx, span := e.tracer.Start(ctx, "engine.step", trace.WithAttributes(
		attribute.String("node.id", n.ID),
		attribute.String("node.status", string(n.Status)),
		attribute.String("task.type", n.Info.TaskType),
	))
	defer span.End()

	e.steps++
	action, err := n.Advance(ctx, e.perf)
	span.SetAttributes(attribute.String("node.action", string(action)))
	if err != nil {
		n.Status = graph.StatusFailed
		e.checkpoint()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	metrics.EngineSteps.WithLabelValues(string(action), n.Info.TaskType).Inc()
	e.logger.Debug("step", "n", e.steps, "action", action, "node", n.ID, "status", n.Status)

	forwardExam(e.root)
	e.checkpoint()
	return nil
}

func (e *Engine) checkpoint() {
	if e.ckpt == nil {
		return
	}
	if err := e.ckpt.Checkpoint(e.root); err != nil {
		e.logger.Warn("checkpoint failed", "error", err)
	}
}

// nextNode finds the first activate node breadth first, looking inside
// suspended nodes only.
func nextNode(root *graph.Node) *graph.Node {
	queue := []*graph.Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		switch {
		case n.Status.IsActivate():
			return n
		case n.Status.IsSuspend():
			queue = append(queue, n.Queue()...)
		}
	}
	return nil
}

// forwardExam re-examines the tree bottom up so a finished child can release
// its dependents and its outer node in the same step.
func forwardExam(n *graph.Node) bool {
	changed := false
	for _, c := range n.Queue() {
		if forwardExam(c) {
			changed = true
		}
	}
	if n.Exam() {
		changed = true
	}
	return changed
}

// Describe renders the tree one node per line for logs and the CLI.
func Describe(root *graph.Node) string {
	var b strings.Builder
	root.Walk(func(n *graph.Node) {
		fmt.Fprintf(&b, "%*s%s\n", 2*n.Layer, "", n.String())
	})
	return b.String()
}
