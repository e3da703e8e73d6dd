/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"

	"github.com/josephgoksu/quill/internal/telemetry"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Manage telemetry settings",
	Long: `View and manage quill's anonymous telemetry settings.

When telemetry.posthogKey is configured, quill reports task counts, models and
durations. Prompts, articles and API keys are never sent.

Use 'quill config telemetry status' to see current settings.`,
}

var telemetryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current telemetry status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := telemetry.LoadConfig(afero.NewOsFs(), dataDir())
		if err != nil {
			return fmt.Errorf("failed to read telemetry status: %w", err)
		}
		if isJSON() {
			return printJSON(cfg)
		}
		if cfg.IsEnabled() {
			fmt.Println("📊 Telemetry: enabled")
			fmt.Printf("   Install ID: %s\n", cfg.AnonymousID)
			fmt.Println()
			fmt.Println("   To disable: quill config telemetry disable")
		} else {
			fmt.Println("📊 Telemetry: disabled")
			fmt.Println()
			fmt.Println("   To enable: quill config telemetry enable")
		}
		return nil
	},
}

var telemetryEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setTelemetry(true); err != nil {
			return fmt.Errorf("failed to enable telemetry: %w", err)
		}
		fmt.Println("✅ Telemetry enabled.")
		return nil
	},
}

var telemetryDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setTelemetry(false); err != nil {
			return fmt.Errorf("failed to disable telemetry: %w", err)
		}
		fmt.Println("✅ Telemetry disabled.")
		return nil
	},
}

// configCmd is the parent config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage quill configuration",
	Long:  `View and manage quill configuration settings.`,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(telemetryCmd)
	telemetryCmd.AddCommand(telemetryStatusCmd, telemetryEnableCmd, telemetryDisableCmd)
}

func setTelemetry(enabled bool) error {
	fs := afero.NewOsFs()
	dir := dataDir()
	cfg, err := telemetry.LoadConfig(fs, dir)
	if err != nil {
		return err
	}
	cfg.Enabled = enabled
	return cfg.Save(fs, dir)
}
