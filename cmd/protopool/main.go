package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg    Config
	logger = logrus.New()
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
	Use:           "protopool",
	Short:         "Load, link and inspect protobuf schemas",
	Long:          "protopool imports file descriptors from .proto sources or a gRPC reflection server into a SQLite database and resolves them into a linked descriptor graph.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting cwd: %w", err)
		}
		cfg, err = loadConfig(cmd.Flags(), findRepoRoot(cwd), os.LookupEnv)
		if err != nil {
			return err
		}
		return setupLogger(logger, cfg)
	},
	// No Run, so it prints help by default.
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("db", "", "database path (default: .protopool/pool.db relative to repo root)")
	flags.String("format", "json", "output format: json|text")
	flags.String("config", "", "config file (default: .protopool/config.yaml relative to repo root)")
	flags.String("log-level", "warn", "log level: debug|info|warn|error")
	flags.String("log-format", "text", "log format: text|json")
	flags.StringSlice("proto-path", nil, "import path for .proto sources (repeatable)")
	flags.String("reflect-addr", "", "address of a gRPC server with reflection enabled")
	flags.Int("workers", 0, "parallel workers (default: number of CPUs)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(dependentsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runCmd)
}

// setupLogger applies the configured level and format. Logs go to stderr so
// they never mix with command output.
func setupLogger(l *logrus.Logger, c Config) error {
	l.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(c.LogLevel.String)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel.String, err)
	}
	l.SetLevel(level)
	switch c.LogFormat.String {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.LogFormat.String)
	}
	return nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from config or the default.
func resolveDBPath(repoRoot string) string {
	if cfg.DB.Valid && cfg.DB.String != "" {
		if filepath.IsAbs(cfg.DB.String) {
			return cfg.DB.String
		}
		return filepath.Join(repoRoot, cfg.DB.String)
	}
	return filepath.Join(repoRoot, ".protopool", "pool.db")
}
