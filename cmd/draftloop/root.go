package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// cfgFile is shared by every subcommand through the persistent flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "draftloop",
	Short: "Iterative document drafting with review-driven convergence",
	Long: `draftloop turns a one-line idea into a reviewed markdown document.

A writer model drafts the document, a reviewer model critiques it as
structured JSON, and the session applies targeted edits or full rewrites
until the review score crosses the acceptance threshold or the iteration
budget runs out. The best draft seen so far is always kept, so even an
exhausted session emits a usable document.

Provider credentials come from the environment:
  ANTHROPIC_API_KEY   for --generator anthropic (the default)
  OPENAI_API_KEY      for --generator openai

All tuning knobs can also be set in a YAML config file (--config) or
through DRAFTLOOP_* environment variables; flags win over both.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		setupLogging(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log verbosity: debug, info, warn, error")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
