/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/policy"
	"github.com/spf13/cobra"
)

// policyCmd represents the policy parent command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and test the admission policy",
	Long: `Every generation request is checked against Rego rules before it starts.
An embedded policy is always loaded; extra .rego files are read from policy.dir.

Examples:
  quill policy list                          # list loaded modules
  quill policy check rules/*.rego            # validate rule files
  quill policy test --model gpt-4o "A fable" # dry-run a request
  quill policy decisions story-1234          # show recorded decisions`,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded policy modules",
	Args:  cobra.NoArgs,
	RunE:  runPolicyList,
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <file.rego>...",
	Short: "Validate Rego files without loading them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPolicyCheck,
}

var policyTestCmd = &cobra.Command{
	Use:   "test <prompt>",
	Short: "Dry-run a generation request against the policy",
	Long: `Evaluate a hypothetical request and print the decision. Nothing is started
and nothing is recorded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPolicyTest,
}

var policyDecisionsCmd = &cobra.Command{
	Use:   "decisions [task-id]",
	Short: "Show recorded admission decisions",
	Long: `With a task id, list the decisions recorded for that task. Without one,
report how many requests were denied recently.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyDecisions,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd, policyCheckCmd, policyTestCmd, policyDecisionsCmd)

	policyTestCmd.Flags().String("kind", string(config.ModeStory), "story or report")
	policyTestCmd.Flags().StringP("model", "m", defaultModel, "model id")
	policyTestCmd.Flags().Bool("search", false, "request web search (reports)")
	policyTestCmd.Flags().StringToString("key", nil, "provider key as provider=key (repeatable)")
	policyDecisionsCmd.Flags().Int("limit", 20, "maximum decisions to list")
	policyDecisionsCmd.Flags().Duration("since", 24*time.Hour, "window for the denied count")
}

func loadPolicyEngine(ctx context.Context, cfg *config.AppConfig) (*policy.Engine, error) {
	engine, err := policy.NewEngine(ctx, policy.EngineConfig{
		Dir:             cfg.Policy.Dir,
		MaxPromptLength: cfg.Policy.MaxPromptLength,
	})
	if err != nil {
		return nil, fmt.Errorf("create policy engine: %w", err)
	}
	return engine, nil
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	engine, err := loadPolicyEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	names := engine.PolicyNames()

	if isJSON() {
		return printJSON(map[string]any{
			"policies_dir": cfg.Policy.Dir,
			"count":        len(names),
			"policies":     names,
		})
	}
	if cfg.Policy.Dir != "" {
		cmd.Printf("Policies directory: %s\n", cfg.Policy.Dir)
	}
	cmd.Printf("Loaded %d policy module(s):\n\n", len(names))
	for _, n := range names {
		cmd.Printf("  • %s\n", n)
	}
	return nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	type checked struct {
		File  string `json:"file"`
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}
	results := make([]checked, 0, len(args))
	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err == nil {
			err = policy.ValidatePolicy(cmd.Context(), string(data))
		}
		c := checked{File: path, Valid: err == nil}
		if err != nil {
			c.Error = err.Error()
			failed++
		}
		results = append(results, c)
	}

	if isJSON() {
		if err := printJSON(map[string]any{"files": results, "failed": failed}); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				cmd.Printf("✓ %s\n", r.File)
			} else {
				cmd.Printf("✗ %s: %s\n", r.File, r.Error)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d policy file(s) invalid", failed, len(args))
	}
	return nil
}

func runPolicyTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	engine, err := loadPolicyEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	kind, _ := cmd.Flags().GetString("kind")
	model, _ := cmd.Flags().GetString("model")
	search, _ := cmd.Flags().GetBool("search")
	keys, _ := cmd.Flags().GetStringToString("key")

	provider, _ := llm.InferProvider(model)
	d, err := engine.Evaluate(cmd.Context(), policy.Input{
		Kind:          kind,
		Prompt:        strings.Join(args, " "),
		Model:         model,
		Provider:      string(provider),
		HasAPIKey:     provider != "" && config.ResolveAPIKey(provider, keys) != "",
		EnableSearch:  search,
		SearchBackend: cfg.Search.Backend,
		HasSearchKey:  config.SearchAPIKey(keys) != "",
	})
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(d)
	}
	if d.IsAllowed() {
		cmd.Println("✓ allowed")
	} else {
		cmd.Println("✗ denied")
	}
	for _, v := range d.Violations {
		cmd.Printf("  deny: %s\n", v)
	}
	for _, w := range d.Warnings {
		cmd.Printf("  warn: %s\n", w)
	}
	return nil
}

func runPolicyDecisions(cmd *cobra.Command, args []string) error {
	index, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()
	audit := policy.NewAuditStore(index.DB())

	if len(args) == 0 {
		since, _ := cmd.Flags().GetDuration("since")
		n, err := audit.CountDenied(time.Now().Add(-since))
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(map[string]any{"denied": n, "since": since.String()})
		}
		cmd.Printf("%d request(s) denied in the last %s\n", n, since)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	decisions, err := audit.ListDecisions(args[0], limit)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(map[string]any{"taskId": args[0], "decisions": decisions})
	}
	if len(decisions) == 0 {
		cmd.Printf("No decisions recorded for %s\n", args[0])
		return nil
	}
	for _, d := range decisions {
		cmd.Printf("%s  %-5s  %s\n", d.EvaluatedAt.Local().Format("2006-01-02 15:04:05"), d.Result, d.DecisionID)
		for _, v := range d.Violations {
			cmd.Printf("    deny: %s\n", v)
		}
		for _, w := range d.Warnings {
			cmd.Printf("    warn: %s\n", w)
		}
	}
	return nil
}
