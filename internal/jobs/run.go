package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/engine"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/logger"
	"github.com/josephgoksu/quill/internal/memory"
	"github.com/josephgoksu/quill/internal/metrics"
	"github.com/josephgoksu/quill/internal/results"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/telemetry"
)

const doneTimeLayout = "2006-01-02 15:04:05"

// Plan is everything a job needs to build its agents.
type Plan struct {
	TaskID       string
	Prompt       string
	Mode         *config.ModeConfig
	Memory       *memory.Memory
	LLM          llm.Config
	APIKeys      map[string]string
	EnableSearch bool
	SearchEngine string
	Usage        *llm.Usage
	Logger       *slog.Logger
}

// PerformerFactory builds the performer that runs the node actions of a job.
type PerformerFactory func(ctx context.Context, p *Plan) (graph.Performer, error)

// job is a task running in this process.
type job struct {
	id      string
	kind    string
	prompt  string
	model   string
	search  string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	stopped  bool
	finished bool
}

// markStopped flags the job as stopped by the user. It reports false when
// the job already finished.
func (j *job) markStopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return false
	}
	j.stopped = true
	return true
}

// claimFinish returns whether the caller is the first to finish the job and
// whether it was stopped.
func (j *job) claimFinish() (first, stopped bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return false, j.stopped
	}
	j.finished = true
	return true, j.stopped
}

func (m *Manager) run(ctx context.Context, j *job, p *Plan) {
	defer close(j.done)
	defer logger.RecoverTask(j.id, j.prompt, func(err error) {
		m.logger.Error("task panicked", "task_id", j.id, "error", err)
		m.finish(j, "", 0, err)
	})

	log := m.logger.With("task_id", j.id)
	if w, err := m.opts.Results.OpenLog(j.id); err == nil {
		defer closeQuietly(w)
		log = logger.Tee(log, logger.ForTask(w, j.id))
	} else {
		log.Warn("open engine log failed", "error", err)
	}
	p.Logger = log

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(j, "", 0, err)
		return
	}
	defer m.sem.Release(1)

	perf, err := m.opts.NewPerformer(ctx, p)
	if err != nil {
		m.finish(j, "", 0, fmt.Errorf("build agents: %w", err))
		return
	}

	root := graph.NewRoot(engine.RootTask(p.Mode, p.Prompt))
	eng := engine.New(root, perf, engine.Options{
		MaxSteps: m.opts.MaxSteps,
		Logger:   log,
		Checkpoint: engine.CheckpointFunc(func(root *graph.Node) error {
			if err := m.opts.Results.Checkpoint(j.id, root, p.Memory); err != nil {
				return err
			}
			return m.opts.Results.WriteWorkspace(j.id, p.Memory.Article())
		}),
	})

	result, err := eng.Run(ctx)
	usage := p.Usage.Snapshot()
	log.Info("usage", "calls", usage.Calls, "input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens, "cost_usd", usage.CostUSD)
	m.finish(j, result, eng.Steps(), err)
}

// finish records the final state of a job once. A job stopped by the user
// keeps the result Stop wrote.
func (m *Manager) finish(j *job, result string, steps int, runErr error) {
	first, stopped := j.claimFinish()
	if !first {
		return
	}
	defer func() {
		m.mu.Lock()
		delete(m.running, j.id)
		m.mu.Unlock()
		metrics.JobsRunning.Dec()
	}()

	now := time.Now()
	status, errMsg := store.StatusCompleted, ""
	switch {
	case stopped:
		status = store.StatusStopped
	case runErr != nil && errors.Is(runErr, context.Canceled):
		// Cancelled by Shutdown; leave no done.txt so the task shows as
		// interrupted after a restart.
		status, errMsg = store.StatusError, "Task was interrupted by a server shutdown"
	case runErr != nil:
		status, errMsg = store.StatusError, runErr.Error()
		if err := m.opts.Results.MarkDone(j.id, fmt.Sprintf("Failed at %s: %s", now.Format(doneTimeLayout), errMsg)); err != nil {
			m.logger.Warn("write done file failed", "task_id", j.id, "error", err)
		}
	default:
		err := m.opts.Results.WriteResult(results.Result{
			ID:           j.id,
			Result:       result,
			Model:        j.model,
			SearchEngine: j.search,
			Steps:        steps,
			FinishedAt:   now.UTC(),
		})
		if err == nil {
			err = m.opts.Results.MarkDone(j.id, "Completed at "+now.Format(doneTimeLayout))
		}
		if err != nil {
			status, errMsg = store.StatusError, fmt.Sprintf("save result: %v", err)
		}
	}

	if !stopped {
		if err := m.opts.Index.SetStatus(j.id, status, errMsg); err != nil && !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("update task status failed", "task_id", j.id, "error", err)
		}
	}

	elapsed := now.Sub(j.started)
	metrics.JobsFinished.WithLabelValues(j.kind, status).Inc()
	metrics.JobDuration.WithLabelValues(j.kind).Observe(elapsed.Seconds())
	m.opts.Telemetry.Track(telemetry.EventTaskFinished, telemetry.TaskFinished(j.kind, j.model, status, steps, elapsed))

	if errMsg != "" {
		m.logger.Error("task failed", "task_id", j.id, "error", errMsg, "steps", steps)
	} else {
		m.logger.Info("task finished", "task_id", j.id, "status", status, "steps", steps, "elapsed", elapsed.Round(time.Second))
	}
	if !stopped {
		m.notify(Event{TaskID: j.id, Status: status, Message: errMsg})
	}
}

func closeQuietly(c io.Closer) { _ = c.Close() }
