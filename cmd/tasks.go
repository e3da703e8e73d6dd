/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/taskgraph"
	"github.com/josephgoksu/quill/internal/ui"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <task-id>",
	Short: "Stop a running task",
	Long: `Stop a task and keep what it wrote so far.

A task running inside 'quill serve' is only cancelled when the command goes
through that server, so pass --server for those.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return runTaskAction(cmd,
			func(ctx context.Context, rt *runtime) (string, error) { return rt.jobs.Stop(id) },
			func(ctx context.Context, c *apiClient) (string, error) { return c.stop(ctx, id) },
		)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <task-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task and all its files",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return runTaskAction(cmd,
			func(ctx context.Context, rt *runtime) (string, error) {
				if err := rt.jobs.Delete(id); err != nil {
					return "", err
				}
				return fmt.Sprintf("Task %s deleted successfully", id), nil
			},
			func(ctx context.Context, c *apiClient) (string, error) { return c.delete(ctx, id) },
		)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild the task index from the task folders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskAction(cmd,
			func(ctx context.Context, rt *runtime) (string, error) {
				n, err := rt.jobs.Reload()
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Task storage reloaded (%d tasks)", n), nil
			},
			func(ctx context.Context, c *apiClient) (string, error) { return c.reload(ctx) },
		)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task's status and outline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		st, tree, err := fetchStatus(ctx, cmd, args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(map[string]any{"status": st, "taskGraph": tree})
		}
		done, total := ui.Progress(tree)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  %s  %d/%d tasks  %s\n", st.TaskID, ui.StatusBadge(st.Status), done, total, st.Model)
		if st.Error != "" {
			fmt.Fprintln(out, ui.RenderErrorPanel("Error", st.Error))
		}
		if tree != nil {
			fmt.Fprintln(out, ui.RenderTree(tree, ui.TerminalWidth(100)))
		}
		return nil
	},
}

// fetchStatus reads a task's status and tree from the data directory, or
// from the server named by --server.
func fetchStatus(ctx context.Context, cmd *cobra.Command, id string) (jobs.StatusInfo, *taskgraph.Node, error) {
	if base, _ := cmd.Flags().GetString("server"); base != "" {
		c, err := newAPIClient(base)
		if err != nil {
			return jobs.StatusInfo{}, nil, err
		}
		st, err := c.status(ctx, id)
		if err != nil {
			return st, nil, err
		}
		tree, err := c.taskGraph(ctx, id)
		return st, tree, err
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return jobs.StatusInfo{}, nil, err
	}
	defer func() { _ = rt.close(ctx) }()
	st, err := rt.jobs.Status(id)
	if err != nil {
		return st, nil, err
	}
	tree, _ := rt.jobs.TaskGraph(id)
	return st, tree, nil
}

var resultCmd = &cobra.Command{
	Use:   "result <task-id>",
	Short: "Print a finished task's article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rt.close(ctx) }()

		st, err := rt.jobs.Status(args[0])
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		return printOutcome(rt, st, output)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd, deleteCmd, reloadCmd, statusCmd, resultCmd)
	for _, c := range []*cobra.Command{stopCmd, deleteCmd, reloadCmd, statusCmd} {
		c.Flags().String("server", "", "URL of a running quill server, e.g. http://127.0.0.1:5001")
	}
	resultCmd.Flags().StringP("output", "o", "", "write the result to this file instead of stdout")
}

// runTaskAction runs local against the data directory, or remote against
// the server named by --server, and prints the resulting message.
func runTaskAction(cmd *cobra.Command,
	local func(context.Context, *runtime) (string, error),
	remote func(context.Context, *apiClient) (string, error),
) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var (
		msg string
		err error
	)
	if addr, _ := cmd.Flags().GetString("server"); addr != "" {
		c, cerr := newAPIClient(addr)
		if cerr != nil {
			return cerr
		}
		msg, err = remote(ctx, c)
	} else {
		rt, rerr := openRuntime(ctx)
		if rerr != nil {
			return rerr
		}
		defer func() { _ = rt.close(ctx) }()
		msg, err = local(ctx, rt)
	}
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(map[string]string{"status": "ok", "message": msg})
	}
	fmt.Println(msg)
	return nil
}
