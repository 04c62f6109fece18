package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/protopool"
	"github.com/jward/protopool/internal/store"
)

var describeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Describe a file, message, enum, service, extension, field or oneof",
	Long:  "Resolves the name through the database and any configured sources, loading dependencies as needed, and prints the linked descriptor.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

// openPool opens the database when it exists and connects the configured
// sources. At least one of them must be available.
func openPool(cmd *cobra.Command) (*protopool.Pool, *store.Store, func(), error) {
	src, err := openSources(cmd.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := openStore()
	if err != nil {
		if src.proto == nil && src.reflect == nil {
			src.Close()
			return nil, nil, nil, err
		}
		logger.WithError(err).Debug("continuing without database")
		s = nil
	}
	closeFn := func() {
		if s != nil {
			s.Close()
		}
		src.Close()
	}
	return newPool(s, src), s, closeFn, nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	pool, _, closeFn, err := openPool(cmd)
	if err != nil {
		return outputError("describe", err)
	}
	defer closeFn()

	d, err := describe(pool, args[0])
	if err != nil {
		return outputError("describe", err)
	}
	return outputResult(CLIResult{Command: "describe", Results: d})
}

// describe tries each descriptor kind in turn. A malformed schema error
// stops the search; only misses move on to the next kind.
func describe(pool *protopool.Pool, name string) (CLIDescribe, error) {
	lookups := []func() (CLIDescribe, error){
		func() (CLIDescribe, error) {
			f, err := pool.FindFileByName(name)
			if err != nil {
				return CLIDescribe{}, err
			}
			return CLIDescribe{Kind: "file", Name: f.Name, File: f.Name, Detail: fileDetailToCLI(f)}, nil
		},
		func() (CLIDescribe, error) {
			m, err := pool.FindMessageByName(name)
			if err != nil {
				return CLIDescribe{}, err
			}
			return CLIDescribe{Kind: "message", Name: m.FullName, File: m.File.Name, Detail: messageToCLI(m)}, nil
		},
		func() (CLIDescribe, error) {
			e, err := pool.FindEnumByName(name)
			if err != nil {
				return CLIDescribe{}, err
			}
			return CLIDescribe{Kind: "enum", Name: e.FullName, File: e.File.Name, Detail: enumToCLI(e)}, nil
		},
		func() (CLIDescribe, error) {
			s, err := pool.FindServiceByName(name)
			if err != nil {
				return CLIDescribe{}, err
			}
			return CLIDescribe{Kind: "service", Name: s.FullName, File: s.File.Name, Detail: serviceToCLI(s)}, nil
		},
		func() (CLIDescribe, error) {
			x, err := pool.FindExtensionByName(name)
			if err != nil {
				return CLIDescribe{}, err
			}
			return CLIDescribe{Kind: "extension", Name: x.FullName, File: x.File.Name, Detail: fieldToCLI(x)}, nil
		},
		func() (CLIDescribe, error) {
			f, err := pool.FindFieldByName(name)
			if err != nil {
				return CLIDescribe{}, err
			}
			return CLIDescribe{Kind: "field", Name: f.FullName, File: f.File.Name, Detail: fieldToCLI(f)}, nil
		},
		func() (CLIDescribe, error) {
			o, err := pool.FindOneofByName(name)
			if err != nil {
				return CLIDescribe{}, err
			}
			fields := make([]string, 0, len(o.Fields))
			for _, f := range o.Fields {
				fields = append(fields, f.Name)
			}
			return CLIDescribe{
				Kind:   "oneof",
				Name:   o.FullName,
				File:   o.ContainingType.File.Name,
				Detail: CLIOneof{Name: o.Name, Fields: fields},
			}, nil
		},
	}
	for _, lookup := range lookups {
		d, err := lookup()
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, protopool.ErrNotFound) {
			return CLIDescribe{}, err
		}
	}
	return CLIDescribe{}, fmt.Errorf("%w: %s", protopool.ErrNotFound, name)
}

// --- files ---

var (
	flagLimit  int
	flagOffset int
	flagLive   bool
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List imported files",
	Long:  "Lists files stored in the database, or with --live the files the configured sources offer.",
	Args:  cobra.NoArgs,
	RunE:  runFiles,
}

func init() {
	filesCmd.Flags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	filesCmd.Flags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	filesCmd.Flags().BoolVar(&flagLive, "live", false, "list files from --proto-path / --reflect-addr instead of the database")
}

func runFiles(cmd *cobra.Command, args []string) error {
	if flagLive {
		return runLiveFiles(cmd)
	}
	s, err := openStore()
	if err != nil {
		return outputError("files", err)
	}
	defer s.Close()

	files, err := s.Files()
	if err != nil {
		return outputError("files", err)
	}
	total := len(files)
	files = paginate(files)
	out := make([]CLIFile, 0, len(files))
	for _, f := range files {
		out = append(out, fileToCLI(f))
	}
	return outputResult(CLIResult{Command: "files", Results: out, TotalCount: intPtr(total)})
}

func runLiveFiles(cmd *cobra.Command) error {
	src, err := openSources(cmd.Context())
	if err != nil {
		return outputError("files", err)
	}
	defer src.Close()
	_, source, err := pickSource(src)
	if err != nil {
		return outputError("files", err)
	}
	names, err := source.Files()
	if err != nil {
		return outputError("files", err)
	}
	total := len(names)
	names = paginate(names)
	if names == nil {
		names = []string{}
	}
	return outputResult(CLIResult{Command: "files", Results: names, TotalCount: intPtr(total)})
}

// paginate applies --offset and --limit.
func paginate[T any](items []T) []T {
	limit := min(max(flagLimit, 1), 500)
	offset := max(flagOffset, 0)
	if offset >= len(items) {
		return nil
	}
	return items[offset:min(offset+limit, len(items))]
}

// --- dependents ---

var dependentsCmd = &cobra.Command{
	Use:   "dependents <file>",
	Short: "Files that import a file, directly or transitively",
	Args:  cobra.ExactArgs(1),
	RunE:  runDependents,
}

func runDependents(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("dependents", err)
	}
	defer s.Close()

	f, err := s.File(args[0])
	if err != nil {
		return outputError("dependents", err)
	}
	if f == nil {
		return outputError("dependents", fmt.Errorf("%w: file %q", protopool.ErrNotFound, args[0]))
	}
	deps, err := s.Dependents(args[0])
	if err != nil {
		return outputError("dependents", err)
	}
	if deps == nil {
		deps = []string{}
	}
	return outputResult(CLIResult{Command: "dependents", Results: deps})
}

// --- check ---

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Build every imported file and report errors and conflicts",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	pool, s, closeFn, err := openPool(cmd)
	if err != nil {
		return outputError("check", err)
	}
	defer closeFn()
	if s == nil {
		return outputError("check", fmt.Errorf("check needs a database (run 'protopool import' first)"))
	}

	files, err := s.Files()
	if err != nil {
		return outputError("check", err)
	}
	report := CLICheck{Files: len(files), Errors: []CLIFileError{}, Conflicts: []CLIConflict{}}
	for _, f := range files {
		if _, err := pool.FindFileByName(f.Name); err != nil {
			report.Errors = append(report.Errors, CLIFileError{File: f.Name, Error: err.Error()})
		}
	}
	for _, c := range pool.Conflicts() {
		report.Conflicts = append(report.Conflicts, conflictToCLI(c))
	}
	if err := outputResult(CLIResult{Command: "check", Results: report}); err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		errorHandled = true
		fmt.Fprintf(os.Stderr, "%d of %d files failed to build\n", len(report.Errors), len(files))
		return fmt.Errorf("check failed")
	}
	return nil
}
