package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/policy"
	"github.com/josephgoksu/quill/internal/results"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/telemetry"
	"github.com/josephgoksu/quill/prompts"
	"github.com/spf13/afero"
)

// resultsDirName holds one folder per task inside the data directory.
const resultsDirName = "results"

// runtime bundles everything a command needs to run or inspect tasks.
// The server and the CLI share the same data directory, so a task started
// by one is visible to the other.
type runtime struct {
	cfg       *config.AppConfig
	index     *store.SQLiteStore
	results   *results.Store
	audit     *policy.AuditStore
	policy    *policy.Engine
	telemetry telemetry.Client
	jobs      *jobs.Manager
	logger    *slog.Logger
}

// openRuntime loads the config and opens the index, the task folders, the
// admission policy and the job manager.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	index, err := store.NewSQLiteStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	rt := &runtime{
		cfg:     cfg,
		index:   index,
		results: results.NewOs(filepath.Join(cfg.Data.Dir, resultsDirName)),
		audit:   policy.NewAuditStore(index.DB()),
		logger:  logger,
	}

	rt.policy, err = policy.NewEngine(ctx, policy.EngineConfig{
		Dir:             cfg.Policy.Dir,
		MaxPromptLength: cfg.Policy.MaxPromptLength,
		Audit:           rt.audit,
	})
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("load policy: %w", err)
	}

	rt.telemetry = newTelemetryClient(cfg)

	renderer, err := prompts.NewRenderer(cfg.Prompts.Dir)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	rt.jobs, err = jobs.New(jobs.Options{
		Results:       rt.results,
		Index:         index,
		Cache:         index,
		Prompts:       renderer,
		Policy:        rt.policy,
		Audit:         rt.audit,
		Telemetry:     rt.telemetry,
		Logger:        logger,
		MaxSteps:      cfg.Engine.MaxSteps,
		MaxConcurrent: cfg.Engine.MaxConcurrentJobs,
		LLMRetries:    cfg.LLM.MaxRetries,
		SearchBackend: cfg.Search.Backend,
		SearxngURL:    cfg.Search.SearxngURL,
		DefaultEngine: cfg.Search.DefaultEngine,
	})
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("create job manager: %w", err)
	}
	return rt, nil
}

// newTelemetryClient returns a PostHog client when a key is configured and
// the installation has not opted out.
func newTelemetryClient(cfg *config.AppConfig) telemetry.Client {
	if cfg.Telemetry.PosthogKey == "" {
		return telemetry.NoopClient{}
	}
	tcfg, err := telemetry.LoadConfig(afero.NewOsFs(), cfg.Data.Dir)
	if err != nil || !tcfg.IsEnabled() {
		return telemetry.NoopClient{}
	}
	client, err := telemetry.NewPostHogClient(telemetry.ClientConfig{
		APIKey:   cfg.Telemetry.PosthogKey,
		Version:  version,
		Config:   tcfg,
		Endpoint: cfg.Telemetry.PosthogHost,
	})
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		return telemetry.NoopClient{}
	}
	return client
}

// close stops running jobs and releases the index. A job cut off by ctx is
// reported as interrupted the next time it is read.
func (rt *runtime) close(ctx context.Context) error {
	var errs []error
	if err := rt.jobs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown jobs: %w", err))
	}
	if err := rt.telemetry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close telemetry: %w", err))
	}
	if err := rt.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	return errors.Join(errs...)
}
