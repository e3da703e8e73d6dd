/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/logger"
	"github.com/josephgoksu/quill/internal/policy"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check quill setup and diagnose issues",
	Long: `Validate your quill installation and configuration.

Checks:
  • configuration and data directory
  • task index and admission policy
  • provider API keys in the environment
  • recent crash logs

Use this to troubleshoot a server that will not start or tasks that fail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "fail"
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func runDoctor(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	checks := doctorChecks(ctx)

	if isJSON() {
		return printJSON(checks)
	}

	fmt.Println("🩺 quill doctor")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	hasErrors := false
	for _, c := range checks {
		icon := "✅"
		switch c.Status {
		case "warn":
			icon = "⚠️ "
		case "fail":
			icon = "❌"
			hasErrors = true
		}
		fmt.Printf("%s %s: %s\n", icon, c.Name, c.Message)
		if c.Hint != "" {
			fmt.Printf("   → %s\n", c.Hint)
		}
	}
	fmt.Println()
	if hasErrors {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("All checks passed.")
	return nil
}

func doctorChecks(ctx context.Context) []DoctorCheck {
	cfg, err := config.Load()
	if err != nil {
		return []DoctorCheck{{
			Name:    "Config",
			Status:  "fail",
			Message: err.Error(),
			Hint:    "Fix the value in .quill.yaml or the QUILL_* environment variable",
		}}
	}
	checks := []DoctorCheck{configCheck()}
	checks = append(checks, checkDataDir(cfg.Data.Dir))
	checks = append(checks, checkIndex(cfg.Data.Dir)...)
	checks = append(checks, checkPolicy(ctx, cfg))
	checks = append(checks, checkProviderKeys()...)
	checks = append(checks, checkPort(cfg.Server.Addr()))
	checks = append(checks, checkCrashLogs())
	return checks
}

func configCheck() DoctorCheck {
	if f := viper.ConfigFileUsed(); f != "" {
		return DoctorCheck{Name: "Config", Status: "ok", Message: f}
	}
	return DoctorCheck{Name: "Config", Status: "ok", Message: "defaults and environment (no config file)"}
}

func checkDataDir(dir string) DoctorCheck {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return DoctorCheck{Name: "Data directory", Status: "fail", Message: err.Error(), Hint: "Set data.dir to a writable directory"}
	}
	probe := filepath.Join(dir, ".doctor")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return DoctorCheck{Name: "Data directory", Status: "fail", Message: dir + " is not writable"}
	}
	_ = os.Remove(probe)
	return DoctorCheck{Name: "Data directory", Status: "ok", Message: dir}
}

func checkIndex(dir string) []DoctorCheck {
	index, err := store.NewSQLiteStore(dir)
	if err != nil {
		return []DoctorCheck{{Name: "Index", Status: "fail", Message: err.Error(), Hint: "Remove " + filepath.Join(dir, store.DBFileName) + " and run 'quill reload'"}}
	}
	defer func() { _ = index.Close() }()

	tasks, err := index.ListTasks()
	if err != nil {
		return []DoctorCheck{{Name: "Index", Status: "fail", Message: err.Error()}}
	}
	running := 0
	for _, t := range tasks {
		if t.Status == store.StatusRunning {
			running++
		}
	}
	checks := []DoctorCheck{{Name: "Index", Status: "ok", Message: fmt.Sprintf("%d tasks, %d running", len(tasks), running)}}

	denied, err := policy.NewAuditStore(index.DB()).CountDenied(time.Now().Add(-24 * time.Hour))
	if err == nil && denied > 0 {
		checks = append(checks, DoctorCheck{
			Name:    "Admission",
			Status:  "warn",
			Message: fmt.Sprintf("%d request(s) denied in the last 24h", denied),
			Hint:    "Run 'quill policy decisions <task-id>' to see why",
		})
	}
	return checks
}

func checkPolicy(ctx context.Context, cfg *config.AppConfig) DoctorCheck {
	engine, err := loadPolicyEngine(ctx, cfg)
	if err != nil {
		return DoctorCheck{Name: "Policy", Status: "fail", Message: err.Error(), Hint: "Run 'quill policy check' on the files in policy.dir"}
	}
	return DoctorCheck{Name: "Policy", Status: "ok", Message: strings.Join(engine.PolicyNames(), ", ")}
}

func checkProviderKeys() []DoctorCheck {
	var found []string
	for _, p := range []llm.Provider{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini} {
		if config.ResolveAPIKey(p, nil) != "" {
			found = append(found, string(p))
		}
	}
	checks := []DoctorCheck{}
	if len(found) == 0 {
		checks = append(checks, DoctorCheck{
			Name:    "Provider keys",
			Status:  "warn",
			Message: "no provider key in the environment",
			Hint:    "Requests must send apiKeys, or set OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY",
		})
	} else {
		checks = append(checks, DoctorCheck{Name: "Provider keys", Status: "ok", Message: strings.Join(found, ", ")})
	}
	if config.SearchAPIKey(nil) == "" {
		checks = append(checks, DoctorCheck{
			Name:    "Search key",
			Status:  "warn",
			Message: "SERPAPI_API_KEY is not set",
			Hint:    "Reports need apiKeys.serpapi, the env var, or search.backend=searxng",
		})
	}
	return checks
}

func checkPort(addr string) DoctorCheck {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return DoctorCheck{Name: "Listen address", Status: "warn", Message: addr + " is in use", Hint: "A server may already be running; try 'curl http://" + addr + "/api/ping'"}
	}
	_ = ln.Close()
	return DoctorCheck{Name: "Listen address", Status: "ok", Message: addr + " is free"}
}

func checkCrashLogs() DoctorCheck {
	logs, err := logger.ListCrashLogs()
	if err != nil || len(logs) == 0 {
		return DoctorCheck{Name: "Crash logs", Status: "ok", Message: "none"}
	}
	return DoctorCheck{
		Name:    "Crash logs",
		Status:  "warn",
		Message: fmt.Sprintf("%d crash log(s), latest %s", len(logs), logs[len(logs)-1]),
		Hint:    "Attach the latest crash log when reporting a bug",
	}
}
