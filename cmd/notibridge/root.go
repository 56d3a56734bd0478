// Package main provides the CLI entrypoint for notibridge.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/notibridge/notibridge/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.RelayConfig
	globalOpts struct {
		verbose     bool
		journalFile string
		configPath  string
		noColor     bool
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "notibridge",
	Short: "Inspect and exercise the guest notification bridge",
	Long: `notibridge is the operator tool for the guest notification bridge.

It talks to the host notification daemon the way the relay does, browses
the relay's journal of forwarded notifications, and watches bridge
traffic on the session bus.

Running notibridge without a subcommand launches the interactive journal
browser.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logging
		setupLogger()

		if globalOpts.noColor {
			color.NoColor = true
		}

		// Load relay configuration; a missing file yields defaults
		var err error
		cfg, err = config.LoadRelayConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
	// Default to the journal browser when no subcommand is provided
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.journalFile, "journal-file", "",
		"Path to relay journal (default: ~/.local/share/notibridge/journal.jsonl)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to relay config file (default: ~/.config/notibridge/relay.toml)")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.noColor, "no-color", false,
		"Disable colored output")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// journalPath returns the journal file to read, honoring the flag override.
func journalPath() string {
	if globalOpts.journalFile != "" {
		return globalOpts.journalFile
	}
	if cfg != nil {
		return cfg.JournalFile()
	}
	return config.JournalPath()
}
