/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/josephgoksu/quill/internal/server"
	"github.com/josephgoksu/quill/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and Socket.IO API for the web UI",
	Long: `Start the quill API server.

The server accepts story and report requests, runs them in the background and
streams task tree updates to subscribed Socket.IO clients.

Examples:
  quill serve                     # listen on 127.0.0.1:5001
  quill serve --port 8080         # custom port
  quill serve --host 0.0.0.0      # listen on every interface`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen host (default 127.0.0.1)")
	serveCmd.Flags().IntP("port", "p", 0, "listen port (default 5001)")
	serveCmd.Flags().StringSlice("allowed-origin", nil, "origin allowed by CORS and the WebSocket upgrade (repeatable)")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.allowedOrigins", serveCmd.Flags().Lookup("allowed-origin"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	cfg := rt.cfg

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
			ServiceName:    "quill",
			ServiceVersion: version,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		})
		if err != nil {
			rt.logger.Warn("tracing disabled", "error", err)
		} else {
			defer func() {
				tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = shutdownTracing(tctx)
			}()
		}
	}

	n, err := rt.jobs.Reload()
	if err != nil {
		rt.logger.Warn("could not index task directories", "error", err)
	}

	srv, err := server.New(rt.jobs, server.Options{
		Addr:           cfg.Server.Addr(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PollInterval:   cfg.Engine.PollInterval,
		Audit:          rt.audit,
		Logger:         rt.logger,
	})
	if err != nil {
		_ = rt.close(ctx)
		return fmt.Errorf("failed to create API server: %w", err)
	}

	fmt.Println()
	fmt.Println("🪶 quill starting...")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("📁 Data: %s (%d tasks)\n", cfg.Data.Dir, n)
	fmt.Printf("🌐 API: http://%s\n", srv.Addr())
	fmt.Printf("🔍 Search: %s (%s)\n", cfg.Search.Backend, cfg.Search.DefaultEngine)
	fmt.Println()

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	srv.Start(&wg, errChan)

	fmt.Println("✅ quill is running! Press Ctrl+C to stop")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		fmt.Printf("\n\n⏹️  Received %v, shutting down...\n", sig)
	case runErr = <-errChan:
		fmt.Printf("\n\n❌ Error: %v\n", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	fmt.Println("   Stopping API server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("   ⚠️  Server shutdown error: %v\n", err)
	}
	wg.Wait()

	fmt.Println("   Stopping running tasks...")
	if err := rt.close(shutdownCtx); err != nil {
		fmt.Printf("   ⚠️  %v\n", err)
	}

	fmt.Println("✅ quill stopped")
	return runErr
}
