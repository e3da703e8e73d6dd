/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/josephgoksu/quill/internal/config"
	mcppresenter "github.com/josephgoksu/quill/internal/mcp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI tool integration",
	Long: `Start a Model Context Protocol (MCP) server so AI assistants can write
stories and reports with quill.

Tools:
  generate_story, generate_report   start a task (optionally wait for it)
  task_status, task_result          follow a task and fetch its article
  task_stop, task_history           stop a task, list finished ones

Tasks run inside this process and share the data directory with 'quill serve'.
The server runs until the client disconnects.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runMCPServer(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// mcpMarkdownResponse wraps Markdown content in an MCP tool result.
func mcpMarkdownResponse(markdown string) (*mcpsdk.CallToolResultFor[any], error) {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: markdown}},
	}, nil
}

// mcpErrorResponse wraps an error in an MCP tool result with IsError=true.
// Tool errors go in the result, not the protocol, so the model can see them
// and correct its call.
func mcpErrorResponse(err error) (*mcpsdk.CallToolResultFor[any], error) {
	return mcpFormattedErrorResponse(mcppresenter.FormatError(err.Error()))
}

// mcpFormattedErrorResponse wraps pre-formatted error text with IsError=true.
func mcpFormattedErrorResponse(formattedError string) (*mcpsdk.CallToolResultFor[any], error) {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: formattedError}},
		IsError: true,
	}, nil
}

// mcpToolResponse converts a handler outcome into a tool result.
func mcpToolResponse(result *mcppresenter.ToolResult, err error) (*mcpsdk.CallToolResultFor[any], error) {
	if err != nil {
		return mcpErrorResponse(err)
	}
	if result.Error != "" {
		return mcpFormattedErrorResponse(result.Error)
	}
	return mcpMarkdownResponse(result.Content)
}

func runMCPServer(ctx context.Context) error {
	// NOTE: MCP uses stdio transport. stdout MUST be pure JSON-RPC.
	// All status/debug output goes to stderr only.
	fmt.Fprintln(os.Stderr, "quill MCP server starting...")

	rt, err := openRuntime(ctx)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = rt.close(shutdownCtx)
	}()
	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "[DEBUG] Using data dir: %s\n", rt.cfg.Data.Dir)
	}

	impl := &mcpsdk.Implementation{
		Name:    "quill-mcp",
		Version: version,
	}
	serverOpts := &mcpsdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.InitializedParams) {
			fmt.Fprintf(os.Stderr, "✓ MCP connection established\n")
		},
	}
	server := mcpsdk.NewServer(impl, serverOpts)
	svc := rt.jobs

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "generate_story",
		Description: "Write a story. Returns a task id to follow with task_status, or the finished story when wait=true. Stories never search the web.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[mcppresenter.GenerateParams]) (*mcpsdk.CallToolResultFor[any], error) {
		return mcpToolResponse(mcppresenter.HandleGenerate(ctx, svc, config.ModeStory, params.Arguments))
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "generate_report",
		Description: "Write a research report, searching the web while writing unless enable_search=false. Returns a task id, or the finished report when wait=true.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[mcppresenter.GenerateParams]) (*mcpsdk.CallToolResultFor[any], error) {
		return mcpToolResponse(mcppresenter.HandleGenerate(ctx, svc, config.ModeReport, params.Arguments))
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "task_status",
		Description: "Show a task's status (running, completed, error or stopped) and the top of its task tree.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[mcppresenter.TaskParams]) (*mcpsdk.CallToolResultFor[any], error) {
		return mcpToolResponse(mcppresenter.HandleStatus(svc, params.Arguments))
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "task_result",
		Description: "Return the article of a completed or stopped task.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[mcppresenter.TaskParams]) (*mcpsdk.CallToolResultFor[any], error) {
		return mcpToolResponse(mcppresenter.HandleResult(svc, params.Arguments))
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "task_stop",
		Description: "Stop a running task. Stopping a finished task is not an error.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[mcppresenter.TaskParams]) (*mcpsdk.CallToolResultFor[any], error) {
		return mcpToolResponse(mcppresenter.HandleStop(svc, params.Arguments))
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "task_history",
		Description: "List finished tasks, newest first.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[mcppresenter.HistoryParams]) (*mcpsdk.CallToolResultFor[any], error) {
		return mcpToolResponse(mcppresenter.HandleHistory(svc, params.Arguments))
	})

	if err := server.Run(ctx, mcpsdk.NewStdioTransport()); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
