// Package jobs runs generation tasks and answers every question the HTTP API,
// the CLI and the MCP server ask about them. Those surfaces stay thin adapters
// over Manager.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/memory"
	"github.com/josephgoksu/quill/internal/metrics"
	"github.com/josephgoksu/quill/internal/policy"
	"github.com/josephgoksu/quill/internal/results"
	"github.com/josephgoksu/quill/internal/search"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/telemetry"
	"github.com/josephgoksu/quill/prompts"
	"golang.org/x/sync/semaphore"
)

// Errors callers map to HTTP status codes.
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrInvalidTaskID      = errors.New("invalid task ID format")
	ErrResultNotAvailable = errors.New("task result not available")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrRejected           = errors.New("rejected by policy")
)

// StoppedResult is stored as the result of a task stopped by the user.
const StoppedResult = "Task was stopped by user request before completion."

var taskIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// ValidTaskID reports whether id is safe to use as a directory name.
func ValidTaskID(id string) bool { return taskIDPattern.MatchString(id) }

// Request starts a story or report.
type Request struct {
	Kind         config.Mode
	Prompt       string
	Model        string
	EnableSearch bool
	// SearchEngine is google or bing. Reports default to google.
	SearchEngine string
	// APIKeys maps provider ids to keys. They live only as long as the job.
	APIKeys map[string]string
}

// Event reports a status change of a task.
type Event struct {
	TaskID  string
	Status  string
	Message string
}

// Options configures a Manager.
type Options struct {
	Results *results.Store
	Index   *store.SQLiteStore
	// Cache backs the LLM, search and web page caches. Nil disables caching.
	Cache   cache.Backend
	Prompts *prompts.Renderer
	// Policy admits requests. Nil admits everything.
	Policy *policy.Engine
	// Audit is cleared with the task on Delete. May be nil.
	Audit     *policy.AuditStore
	Telemetry telemetry.Client
	Logger    *slog.Logger

	MaxSteps      int
	MaxConcurrent int
	// LLMRetries bounds retries of transient model errors. Zero keeps the
	// generator default.
	LLMRetries    int
	SearchBackend string
	SearxngURL    string
	// DefaultEngine is used by reports that name no search engine.
	DefaultEngine string

	// NewPerformer builds the agents of one job. Nil uses the LLM backed
	// dispatcher.
	NewPerformer PerformerFactory
}

// Manager owns the running jobs and the task index.
type Manager struct {
	opts   Options
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu        sync.Mutex
	running   map[string]*job
	listeners map[int]func(Event)
	nextID    int
}

// New returns a manager. Results and Index are required.
func New(opts Options) (*Manager, error) {
	if opts.Results == nil || opts.Index == nil {
		return nil, errors.New("jobs: results and index stores are required")
	}
	if opts.Prompts == nil {
		r, err := prompts.NewRenderer("")
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		opts.Prompts = r
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NoopClient{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = config.DefaultMaxConcurrentJobs
	}
	if opts.SearchBackend == "" {
		opts.SearchBackend = search.BackendSerpAPI
	}
	if opts.DefaultEngine == "" {
		opts.DefaultEngine = search.EngineGoogle
	}
	m := &Manager{
		opts:      opts,
		logger:    opts.Logger,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		running:   make(map[string]*job),
		listeners: make(map[int]func(Event)),
	}
	if m.opts.NewPerformer == nil {
		m.opts.NewPerformer = m.dispatcher
	}
	return m, nil
}

// Subscribe registers fn for task events until the returned function is
// called. fn runs on the goroutine that changed the task and must not block.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(ev Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Start validates and admits req, records the task and runs it in the
// background. It returns the new task id.
func (m *Manager) Start(ctx context.Context, req Request) (string, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Model = strings.TrimSpace(req.Model)
	switch {
	case !req.Kind.Valid():
		return "", fmt.Errorf("%w: unknown task type %q", ErrInvalidRequest, req.Kind)
	case req.Prompt == "":
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	case req.Model == "":
		return "", fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if req.APIKeys == nil {
		req.APIKeys = map[string]string{}
	}
	if req.Kind == config.ModeStory {
		req.EnableSearch = false
		req.SearchEngine = ""
	} else if req.SearchEngine == "" {
		req.SearchEngine = m.opts.DefaultEngine
	}

	id := string(req.Kind) + "-" + uuid.NewString()
	if err := m.admit(ctx, id, req); err != nil {
		return "", err
	}
	llmCfg, err := config.ResolveLLM(req.Model, req.APIKeys)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	mode, err := config.LoadMode(req.Kind)
	if err != nil {
		return "", err
	}
	if !req.EnableSearch {
		mode = mode.WithoutWebSearch()
	}

	now := time.Now().UTC()
	in := results.Input{
		ID:           id,
		Prompt:       req.Prompt,
		Kind:         string(req.Kind),
		Model:        req.Model,
		SearchEngine: req.SearchEngine,
		EnableSearch: req.EnableSearch,
		CreatedAt:    now,
	}
	if err := m.opts.Results.Create(in); err != nil {
		return "", err
	}
	task := store.Task{
		ID:           id,
		Kind:         in.Kind,
		Prompt:       in.Prompt,
		Model:        in.Model,
		SearchEngine: in.SearchEngine,
		Status:       store.StatusRunning,
		CreatedAt:    now,
		StartedAt:    now,
	}
	if err := m.opts.Index.SaveTask(task); err != nil {
		return "", fmt.Errorf("save task: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:      id,
		kind:    in.Kind,
		prompt:  in.Prompt,
		model:   in.Model,
		search:  in.SearchEngine,
		started: now,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.running[id] = j
	m.mu.Unlock()

	metrics.JobsStarted.WithLabelValues(j.kind).Inc()
	metrics.JobsRunning.Inc()
	m.opts.Telemetry.Track(telemetry.EventTaskStarted,
		telemetry.TaskStarted(j.kind, j.model, string(llmCfg.Provider), req.EnableSearch))
	m.logger.Info("task started", "task_id", id, "kind", j.kind, "model", j.model, "search", req.EnableSearch)

	plan := &Plan{
		TaskID:       id,
		Prompt:       req.Prompt,
		Mode:         mode,
		Memory:       memory.New(),
		LLM:          llmCfg,
		APIKeys:      req.APIKeys,
		EnableSearch: req.EnableSearch,
		SearchEngine: req.SearchEngine,
		Usage:        &llm.Usage{},
	}
	go m.run(jobCtx, j, plan)
	return id, nil
}

func (m *Manager) admit(ctx context.Context, id string, req Request) error {
	if m.opts.Policy == nil {
		return nil
	}
	provider, _ := llm.InferProvider(req.Model)
	in := policy.Input{
		Kind:          string(req.Kind),
		Prompt:        req.Prompt,
		Model:         req.Model,
		Provider:      string(provider),
		HasAPIKey:     provider != "" && config.ResolveAPIKey(provider, req.APIKeys) != "",
		EnableSearch:  req.EnableSearch,
		SearchBackend: m.opts.SearchBackend,
		HasSearchKey:  config.SearchAPIKey(req.APIKeys) != "",
	}
	d, err := m.opts.Policy.Admit(ctx, id, in)
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	for _, w := range d.Warnings {
		m.logger.Warn("policy warning", "task_id", id, "warning", w)
	}
	if !d.IsAllowed() {
		m.opts.Telemetry.Track(telemetry.EventTaskRejected, telemetry.TaskRejected(in.Kind, len(d.Violations)))
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(d.Violations, "; "))
	}
	return nil
}

// Shutdown cancels every running job and waits for them to finish or for ctx
// to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	jobs := make([]*job, 0, len(m.running))
	for _, j := range m.running {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Running returns the ids of jobs in flight.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) runningJob(id string) (*job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.running[id]
	return j, ok
}

// Results returns the store holding task directories.
func (m *Manager) Results() *results.Store { return m.opts.Results }
