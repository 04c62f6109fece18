// Package runtime runs Risor scripts against a descriptor pool. Scripts see
// lookup functions that return descriptors as maps, protobuf parsing host
// functions, and, when a Store is attached, read access to stored files.
package runtime

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/jward/protopool"
	"github.com/jward/protopool/internal/store"
)

// Runtime embeds a Risor VM wired to a Pool.
type Runtime struct {
	pool       *protopool.Pool
	store      *store.Store
	scriptsDir string
	fsys       fs.FS
	srcFS      afero.Fs
	log        logrus.FieldLogger
	sources    *treeSources
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithStore exposes s to scripts through stored_files, dependents and
// db_query.
func WithStore(s *store.Store) RuntimeOption {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithSourceFS sets the filesystem the parse host function reads from.
// Defaults to the OS filesystem.
func WithSourceFS(fsys afero.Fs) RuntimeOption {
	return func(r *Runtime) {
		r.srcFS = fsys
	}
}

// WithLogger sets the logger behind the log global.
func WithLogger(l logrus.FieldLogger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime over pool with scripts under scriptsDir. pool
// may be nil, in which case the lookup globals are absent.
func NewRuntime(pool *protopool.Pool, scriptsDir string, opts ...RuntimeOption) *Runtime {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	r := &Runtime{
		pool:       pool,
		scriptsDir: scriptsDir,
		srcFS:      afero.NewOsFs(),
		log:        discard,
		sources:    newTreeSources(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller, returning the value of its
// last expression.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) (any, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (any, error) {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (any, error) {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	if result == nil || result == object.Nil {
		return nil, nil
	}
	return result.Interface(), nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on that filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"parse":      makeParseFn(r.srcFS, r.sources),
		"parse_src":  makeParseSrcFn(r.sources),
		"scan":       makeScanFn(),
		"node_text":  makeNodeTextFn(r.sources),
		"node_child": makeNodeChildFn(),
		"node_span":  makeNodeSpanFn(),
		"query":      makeQueryFn(r.sources),
		"log":        mustProxy(&logObject{log: r.log}),
	}

	if r.pool != nil {
		globals["find_file"] = makeFindFileFn(r.pool)
		globals["find_file_containing"] = makeFindFileContainingFn(r.pool)
		globals["find_message"] = makeFindMessageFn(r.pool)
		globals["find_enum"] = makeFindEnumFn(r.pool)
		globals["find_service"] = makeFindServiceFn(r.pool)
		globals["find_field"] = makeFindFieldFn(r.pool)
		globals["find_oneof"] = makeFindOneofFn(r.pool)
		globals["find_extension"] = makeFindExtensionFn(r.pool)
		globals["find_extension_by_number"] = makeFindExtensionByNumberFn(r.pool)
		globals["all_extensions"] = makeAllExtensionsFn(r.pool)
		globals["files"] = makeFilesFn(r.pool)
		globals["conflicts"] = makeConflictsFn(r.pool)
	}

	if r.store != nil {
		globals["stored_files"] = makeStoredFilesFn(r.store)
		globals["dependents"] = makeDependentsFn(r.store)
		globals["db_query"] = makeDBQueryFn(r.store)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
