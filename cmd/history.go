/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/josephgoksu/quill/internal/ui"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished tasks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rt.close(ctx) }()

		entries, err := rt.jobs.History()
		if err != nil {
			return err
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		if isJSON() {
			return printJSON(map[string]any{"history": entries})
		}
		if len(entries) == 0 {
			fmt.Println("No finished tasks yet. Start one with 'quill generate story <prompt>'.")
			return nil
		}
		width := ui.TerminalWidth(100) - 60
		fmt.Println(ui.HistoryTable(entries, max(width, 20)).Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 0, "show at most n entries")
}
