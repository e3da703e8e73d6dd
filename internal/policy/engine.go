package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/spf13/afero"
)

// DefaultPackage is the Rego package holding the deny and warn rules.
const DefaultPackage = "quill.admission"

// Engine evaluates admission rules locally. Queries are compiled once when
// the engine is built.
type Engine struct {
	files  []*File
	pkg    string
	deny   rego.PreparedEvalQuery
	warn   rego.PreparedEvalQuery
	audit  *AuditStore
	maxLen int
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Dir holds extra .rego files. Empty means only the embedded policy.
	Dir string
	// Package is the Rego package to query. Defaults to DefaultPackage.
	Package string
	// MaxPromptLength is passed to the rules. Zero disables the check.
	MaxPromptLength int
	// Fs is used to read Dir. Defaults to the OS filesystem.
	Fs afero.Fs
	// Audit records every decision when set.
	Audit *AuditStore
}

// NewEngine loads the embedded policy plus cfg.Dir and compiles the queries.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	files, err := Defaults()
	if err != nil {
		return nil, err
	}
	extra, err := NewLoader(cfg.Fs, cfg.Dir).LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	files = append(files, extra...)
	e, err := NewEngineWithPolicies(ctx, cfg.Package, files)
	if err != nil {
		return nil, err
	}
	e.maxLen = cfg.MaxPromptLength
	e.audit = cfg.Audit
	return e, nil
}

// NewEngineWithPolicies compiles an engine from explicit modules.
func NewEngineWithPolicies(ctx context.Context, pkg string, files []*File) (*Engine, error) {
	if pkg == "" {
		pkg = DefaultPackage
	}
	e := &Engine{files: files, pkg: pkg}
	var err error
	if e.deny, err = e.prepare(ctx, "deny"); err != nil {
		return nil, fmt.Errorf("compile deny rules: %w", err)
	}
	if e.warn, err = e.prepare(ctx, "warn"); err != nil {
		return nil, fmt.Errorf("compile warn rules: %w", err)
	}
	return e, nil
}

func (e *Engine) prepare(ctx context.Context, rule string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(fmt.Sprintf("data.%s.%s", e.pkg, rule))}
	for _, f := range e.files {
		opts = append(opts, rego.Module(f.Path, f.Content))
	}
	opts = append(opts, Builtins()...)
	return rego.New(opts...).PrepareForEval(ctx)
}

// PolicyNames returns the names of the loaded modules.
func (e *Engine) PolicyNames() []string {
	names := make([]string, len(e.files))
	for i, f := range e.files {
		names[i] = f.Name
	}
	return names
}

// Evaluate runs the deny and warn rules against in. Any deny message makes
// the decision a denial.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Decision, error) {
	if in.MaxPromptLength == 0 {
		in.MaxPromptLength = e.maxLen
	}
	violations, err := querySet(ctx, e.deny, in)
	if err != nil {
		return nil, fmt.Errorf("query deny rules: %w", err)
	}
	warnings, err := querySet(ctx, e.warn, in)
	if err != nil {
		return nil, fmt.Errorf("query warn rules: %w", err)
	}

	d := &Decision{
		DecisionID:  uuid.New().String(),
		PolicyPath:  e.pkg,
		Result:      ResultAllow,
		Warnings:    warnings,
		Input:       &in,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(violations) > 0 {
		d.Result = ResultDeny
		d.Violations = violations
	}
	return d, nil
}

// Admit evaluates in for a task and records the decision in the audit
// store. Audit failures do not affect the decision.
func (e *Engine) Admit(ctx context.Context, taskID string, in Input) (*Decision, error) {
	d, err := e.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}
	d.TaskID = taskID
	if e.audit != nil {
		_ = e.audit.SaveDecision(d)
	}
	return d, nil
}

// querySet collects the string members of a set rule. An undefined rule
// yields nothing.
func querySet(ctx context.Context, q rego.PreparedEvalQuery, in Input) ([]string, error) {
	rs, err := q.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			set, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, item := range set {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out, nil
}

// ValidatePolicy checks that content compiles, custom functions included.
func ValidatePolicy(ctx context.Context, content string) error {
	opts := []func(*rego.Rego){
		rego.Query("data"),
		rego.Module("validation.rego", content),
	}
	opts = append(opts, Builtins()...)
	if _, err := rego.New(opts...).PrepareForEval(ctx); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}
