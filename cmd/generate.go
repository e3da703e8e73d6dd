/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/ui"
	"github.com/spf13/cobra"
)

const defaultModel = "gpt-4o"

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a story or a report from the terminal",
	Long: `Run a generation in this process and show the task tree while it is written.

The task is stored in the data directory like tasks started through the API,
so 'quill serve' lists it in its history.`,
}

var generateStoryCmd = &cobra.Command{
	Use:   "story <prompt>",
	Short: "Write a story",
	Example: `  quill generate story "A fox who learns to read"
  quill generate story --model claude-3-7-sonnet-20250219 -o fox.md "A fox who learns to read"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, config.ModeStory, strings.Join(args, " "))
	},
}

var generateReportCmd = &cobra.Command{
	Use:   "report <prompt>",
	Short: "Write a research report, searching the web while writing",
	Example: `  quill generate report "State of small modular reactors"
  quill generate report --engine bing --key serpapi=$SERPAPI_KEY "State of small modular reactors"
  quill generate report --no-search "History of the printing press"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, config.ModeReport, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.AddCommand(generateStoryCmd, generateReportCmd)

	generateCmd.PersistentFlags().StringP("model", "m", defaultModel, "model id, e.g. gpt-4o, claude-3-7-sonnet-20250219, gemini-2.0-flash or ollama/llama3")
	generateCmd.PersistentFlags().StringToString("key", nil, "provider key as provider=key (repeatable); falls back to env vars")
	generateCmd.PersistentFlags().StringP("output", "o", "", "write the result to this file instead of stdout")
	generateReportCmd.Flags().Bool("no-search", false, "write the report without web search")
	generateReportCmd.Flags().String("engine", "", "search engine: google or bing (default from search.defaultEngine)")
}

func runGenerate(cmd *cobra.Command, kind config.Mode, prompt string) error {
	model, _ := cmd.Flags().GetString("model")
	keys, _ := cmd.Flags().GetStringToString("key")
	output, _ := cmd.Flags().GetString("output")

	req := jobs.Request{Kind: kind, Prompt: prompt, Model: model, APIKeys: keys}
	if kind == config.ModeReport {
		noSearch, _ := cmd.Flags().GetBool("no-search")
		req.EnableSearch = !noSearch
		req.SearchEngine, _ = cmd.Flags().GetString("engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = rt.close(shutdownCtx)
	}()

	id, err := rt.jobs.Start(ctx, req)
	if err != nil {
		return err
	}

	var st jobs.StatusInfo
	if ui.IsInteractive() && !isJSON() {
		st, err = followInteractive(rt, id)
	} else {
		st, err = rt.jobs.Wait(ctx, id)
		if errors.Is(err, context.Canceled) {
			msg, _ := rt.jobs.Stop(id)
			return errors.New(msg)
		}
	}
	if err != nil {
		return err
	}
	return printOutcome(rt, st, output)
}

// followInteractive shows the watch TUI until the task ends. Leaving early
// stops the task, since it runs inside this process.
func followInteractive(rt *runtime, id string) (jobs.StatusInfo, error) {
	model := ui.NewWatchModel(rt.jobs, id, rt.cfg.Engine.PollInterval)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return jobs.StatusInfo{}, fmt.Errorf("watch ui: %w", err)
	}
	wm, ok := final.(ui.WatchModel)
	if !ok {
		return jobs.StatusInfo{}, fmt.Errorf("watch ui: unexpected model %T", final)
	}
	if wm.Err() != nil {
		return jobs.StatusInfo{}, wm.Err()
	}
	if !wm.Finished() {
		msg, err := rt.jobs.Stop(id)
		if err != nil {
			return jobs.StatusInfo{}, err
		}
		fmt.Fprintln(os.Stderr, msg)
	}
	return rt.jobs.Status(id)
}

// printOutcome prints the article of a completed task, or the reason it
// has none.
func printOutcome(rt *runtime, st jobs.StatusInfo, output string) error {
	res, err := rt.jobs.Result(st.TaskID)
	if err != nil {
		if isJSON() {
			return printJSON(st)
		}
		reason := st.Error
		if reason == "" {
			reason = "the task ended without a result"
		}
		return fmt.Errorf("%s: %s", st.TaskID, reason)
	}

	if output != "" {
		if err := os.WriteFile(output, []byte(res.Result), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
	}
	switch {
	case isJSON():
		return printJSON(res)
	case output != "":
		fmt.Fprintln(os.Stderr, ui.RenderSuccessPanel("Done", fmt.Sprintf("%s written to %s", st.TaskID, output)))
	default:
		fmt.Println(res.Result)
	}
	return nil
}
