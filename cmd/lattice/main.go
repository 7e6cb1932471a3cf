package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"lattice"
	"lattice/internal/config"
)

var (
	flagConfig string
	flagFormat string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lattice",
	Short:         "Incremental discovery and evaluation for source trees",
	Long:          "Lattice walks a source tree from entry points, parses modules with tree-sitter, caches results by content hash, and evaluates definitions dependency-first. Updates reparse only affected files.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: lattice.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}

var (
	flagWorkDir  string
	flagEntries  []string
	flagBackend  string
	flagCacheDir string
	flagWorkers  int
)

// addSessionFlags registers the flags shared by build, watch, and status.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagWorkDir, "workdir", "", "source tree root (default: from config, then \".\")")
	cmd.Flags().StringSliceVar(&flagEntries, "entry", nil, "entry point path or glob, repeatable (overrides config)")
	cmd.Flags().StringVar(&flagBackend, "cache", "", "cache backend: memory|file|sqlite (overrides config)")
	cmd.Flags().StringVar(&flagCacheDir, "cache-dir", "", "cache directory for file and sqlite backends (overrides config)")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel parse workers (overrides config)")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagWorkDir != "" {
		cfg.WorkDir = flagWorkDir
	}
	if len(flagEntries) > 0 {
		cfg.Entries = flagEntries
	}
	if flagBackend != "" {
		cfg.CacheBackend = flagBackend
	}
	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Entries) == 0 {
		return nil, fmt.Errorf("no entry points: pass --entry or set entries in the config file")
	}
	return cfg, nil
}

// newLogger builds the slog logger from the configured level. Logs go to
// stderr so stdout stays clean for command output.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newBackend constructs the configured cache backend.
func newBackend(cfg *config.Config) (lattice.Backend, error) {
	switch cfg.CacheBackend {
	case "file":
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir %s: %w", cfg.CacheDir, err)
		}
		return lattice.NewFileBackend(cfg.CacheDir), nil
	case "sqlite":
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir %s: %w", cfg.CacheDir, err)
		}
		return lattice.NewSQLiteBackend(filepath.Join(cfg.CacheDir, "cache.db"))
	default:
		return lattice.NewMemoryBackend(), nil
	}
}

// newSession assembles a session from the effective config.
func newSession(cfg *config.Config, logger *slog.Logger) (*lattice.Session, lattice.Backend, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []lattice.Option{
		lattice.WithCacheBackend(backend),
		lattice.WithLogger(logger),
	}
	if cfg.Workers > 0 {
		opts = append(opts, lattice.WithWorkers(cfg.Workers))
	}
	if cfg.SchemaHash != "" {
		opts = append(opts, lattice.WithSchemaHash(cfg.SchemaHash))
	}
	if cfg.ScriptsDir != "" {
		opts = append(opts, lattice.WithScriptsDir(cfg.ScriptsDir))
	}

	session, err := lattice.NewSession(cfg.WorkDir, cfg.Entries, opts...)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return session, backend, nil
}
