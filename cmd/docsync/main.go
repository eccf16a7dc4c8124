package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/schaermu/docsync/internal/config"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "Keep scaffolded documentation sites in sync with their templates",
	Long: `docsync scaffolds documentation sites from built-in templates and later
re-applies updated templates without clobbering local edits.

Every file docsync writes is recorded with a content hash in
.docsync/manifest.json. On sync, files that still hold what docsync last wrote
are updated; files edited by hand are left alone unless --force is given, in
which case they are backed up first.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "docsync %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/docsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Add commands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// bootstrap builds the logger and loads the configuration. Log settings from
// the config file apply unless overridden on the command line.
func bootstrap(cmd *cobra.Command) (*slog.Logger, *config.Config, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("log-level") {
		logLevel = cfg.Log.Level
	}
	if !flags.Changed("log-format") {
		logFormat = cfg.Log.Format
	}

	return setupLogger(), cfg, nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format. Logs go to stderr so command output
	// on stdout stays parseable.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	logger.Debug("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"hash_algorithm", cfg.Sync.HashAlgorithm,
		"journal", cfg.JournalEnabled(),
		"lock_timeout", cfg.Sync.LockTimeout,
		"default_theme", cfg.TemplateDefaults().ThemeName)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
