/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/ui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Follow a task's progress until it ends",
	Long: `Follow a task started by 'quill serve' or another process. Progress is read
from the shared data directory, so leaving the watch does not stop the task.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 0, "poll interval (default engine.pollInterval)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close(context.Background()) }()

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = rt.cfg.Engine.PollInterval
	}

	if ui.IsInteractive() && !isJSON() {
		final, err := tea.NewProgram(ui.NewWatchModel(rt.jobs, id, interval)).Run()
		if err != nil {
			return fmt.Errorf("watch ui: %w", err)
		}
		if wm, ok := final.(ui.WatchModel); ok && wm.Err() != nil {
			return wm.Err()
		}
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := ""
	for {
		st, err := rt.jobs.Status(id)
		if err != nil {
			return err
		}
		if st.Status != last {
			if isJSON() {
				_ = printJSON(st)
			} else {
				fmt.Printf("%s %s (%.0fs)\n", st.TaskID, st.Status, st.ElapsedTime)
			}
			last = st.Status
		}
		if st.Status != store.StatusRunning {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
