package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/protopool/internal/importer"
)

var (
	flagForce bool
	flagFrom  string
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import file descriptors into the database",
	Long:  "Fetches file descriptors from .proto sources (--proto-path) or a reflection server (--reflect-addr) and stores them. With no arguments every file the source lists is imported.",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().BoolVar(&flagForce, "force", false, "delete the database and import from scratch")
	importCmd.Flags().StringVar(&flagFrom, "from", "", "source to import from: proto|reflect (default: whichever is configured)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := openSources(ctx)
	if err != nil {
		return outputError("import", err)
	}
	defer src.Close()

	from, source, err := pickSource(src)
	if err != nil {
		return outputError("import", err)
	}

	if flagForce {
		root, err := repoRoot()
		if err != nil {
			return outputError("import", err)
		}
		dbPath := resolveDBPath(root)
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return outputError("import", fmt.Errorf("removing database for --force: %w", err))
		}
		logger.WithField("database", dbPath).Info("cleared database")
	}

	s, dbPath, err := createStore()
	if err != nil {
		return outputError("import", err)
	}
	defer s.Close()

	im := importer.New(s,
		importer.WithWorkers(int(cfg.Workers.Int64)),
		importer.WithLogger(logger),
	)
	res, err := im.Import(ctx, source, args...)
	if err != nil {
		return outputError("import", err)
	}
	if err := s.SetMetadata("last_import", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return outputError("import", err)
	}
	if err := s.SetMetadata("last_import_source", from); err != nil {
		return outputError("import", err)
	}

	changed := res.Changed
	if changed == nil {
		changed = []string{}
	}
	return outputResult(CLIResult{
		Command: "import",
		Results: CLIImport{
			Source:     from,
			Database:   dbPath,
			Changed:    changed,
			Unchanged:  res.Unchanged,
			Stale:      res.Stale,
			DurationMS: res.Duration.Milliseconds(),
		},
	})
}

// pickSource selects the import source from --from, or the only configured
// one. .proto sources win when both are configured.
func pickSource(src *sources) (string, importer.Source, error) {
	switch flagFrom {
	case "proto":
		if src.proto == nil {
			return "", nil, fmt.Errorf("--from proto requires --proto-path")
		}
		return "proto", src.proto, nil
	case "reflect":
		if src.reflect == nil {
			return "", nil, fmt.Errorf("--from reflect requires --reflect-addr")
		}
		return "reflect", src.reflect, nil
	case "":
		if src.proto != nil {
			return "proto", src.proto, nil
		}
		if src.reflect != nil {
			return "reflect", src.reflect, nil
		}
		return "", nil, fmt.Errorf("no source configured: set --proto-path or --reflect-addr")
	default:
		return "", nil, fmt.Errorf("invalid source %q: must be proto or reflect", flagFrom)
	}
}
