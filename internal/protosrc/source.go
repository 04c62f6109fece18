// Package protosrc serves raw file schema records compiled from .proto
// sources on a filesystem.
//
// Files are compiled without linking: type references stay exactly as they
// were written and no imports are loaded, leaving resolution to the pool.
// Symbol lookups are answered from an index built by scanning every source
// under the import paths.
package protosrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc/protoparse"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jward/protopool/internal/symbols"
)

// Database compiles .proto files found under a list of import paths. Earlier
// import paths shadow later ones.
type Database struct {
	fs          afero.Fs
	importPaths []string
	workers     int
	log         logrus.FieldLogger

	mu      sync.Mutex
	index   map[string]string // symbol -> file name
	indexed bool
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for scan progress and skipped files.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Database) {
		d.log = l
	}
}

// WithWorkers bounds how many files are scanned concurrently. Values below
// one mean runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(d *Database) {
		d.workers = n
	}
}

// New creates a Database reading from fs. An empty importPaths means the
// filesystem root ".".
func New(fs afero.Fs, importPaths []string, opts ...Option) *Database {
	if len(importPaths) == 0 {
		importPaths = []string{"."}
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	d := &Database{
		fs:          fs,
		importPaths: importPaths,
		log:         discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindFileByName compiles the named file. It returns nil if no import path
// contains it.
func (d *Database) FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error) {
	if _, ok := d.locate(name); !ok {
		return nil, nil
	}
	fds, err := d.Parse(name)
	if err != nil {
		return nil, err
	}
	return fds[0], nil
}

// FindFileContainingSymbol compiles the file declaring symbol, or returns nil
// if no scanned source declares it or one of its ancestors. The symbol index
// is built on first use; call Reindex after sources change.
func (d *Database) FindFileContainingSymbol(symbol string) (*descriptorpb.FileDescriptorProto, error) {
	if err := d.ensureIndex(context.Background()); err != nil {
		return nil, err
	}
	symbol = symbols.Normalize(symbol)

	d.mu.Lock()
	var file string
	for name := symbol; name != ""; name = parent(name) {
		if f, ok := d.index[name]; ok {
			file = f
			break
		}
	}
	d.mu.Unlock()

	if file == "" {
		return nil, nil
	}
	return d.FindFileByName(file)
}

// Parse compiles the named files without linking them. Names are relative to
// the import paths and stay that way in the returned records.
func (d *Database) Parse(names ...string) ([]*descriptorpb.FileDescriptorProto, error) {
	// The parser ignores ImportPaths when not linking, so the accessor
	// resolves names itself.
	p := protoparse.Parser{
		Accessor: func(filename string) (io.ReadCloser, error) {
			path, ok := d.locate(filename)
			if !ok {
				return nil, fmt.Errorf("%s: %w", filename, os.ErrNotExist)
			}
			return d.fs.Open(path)
		},
	}
	fds, err := p.ParseFilesButDoNotLink(names...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", strings.Join(names, ", "), err)
	}
	return fds, nil
}

// Files returns the names of every .proto source under the import paths,
// relative to the import path that provides it, sorted. Hidden directories
// and paths matched by an import path's .gitignore are skipped.
func (d *Database) Files() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, root := range d.importPaths {
		gi := d.loadGitignore(root)
		err := afero.Walk(d.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil
				}
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if info.IsDir() {
				if rel != "." && strings.HasPrefix(info.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".proto" {
				return nil
			}
			if gi != nil && gi.MatchesPath(rel) {
				return nil
			}
			if !seen[rel] {
				seen[rel] = true
				names = append(names, rel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", root, err)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Reindex rescans every source and replaces the symbol index. When two files
// declare the same symbol the one that sorts first wins.
func (d *Database) Reindex(ctx context.Context) error {
	names, err := d.Files()
	if err != nil {
		return err
	}
	results, err := d.scanAll(ctx, names)
	if err != nil {
		return err
	}

	index := make(map[string]string)
	for _, name := range names {
		for _, sym := range results[name] {
			if prev, ok := index[sym.Name]; ok {
				d.log.WithFields(logrus.Fields{
					"symbol": sym.Name,
					"file":   name,
					"kept":   prev,
				}).Debug("duplicate symbol in sources")
				continue
			}
			index[sym.Name] = name
		}
	}

	d.mu.Lock()
	d.index = index
	d.indexed = true
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"files":   len(names),
		"symbols": len(index),
	}).Debug("source index built")
	return nil
}

func (d *Database) ensureIndex(ctx context.Context) error {
	d.mu.Lock()
	done := d.indexed
	d.mu.Unlock()
	if done {
		return nil
	}
	return d.Reindex(ctx)
}

// scanAll scans names with a worker pool, each worker owning its own
// Scanner.
func (d *Database) scanAll(ctx context.Context, names []string) (map[string][]symbols.Symbol, error) {
	results := make(map[string][]symbols.Symbol, len(names))
	if len(names) == 0 {
		return results, nil
	}

	numWorkers := d.workers
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, len(names))

	workCh := make(chan string, len(names))
	for _, name := range names {
		workCh <- name
	}
	close(workCh)

	type result struct {
		name string
		syms []symbols.Symbol
		err  error
	}
	resultCh := make(chan result, len(names))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc := NewScanner()
			defer sc.Close()
			for name := range workCh {
				if err := ctx.Err(); err != nil {
					resultCh <- result{name: name, err: err}
					continue
				}
				syms, err := d.scanFile(ctx, sc, name)
				resultCh <- result{name: name, syms: syms, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var errs []error
	for res := range resultCh {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", res.name, res.err))
			continue
		}
		results[res.name] = res.syms
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("scanning had %d error(s): %w", len(errs), errs[0])
	}
	return results, nil
}

func (d *Database) scanFile(ctx context.Context, sc *Scanner, name string) ([]symbols.Symbol, error) {
	path, ok := d.locate(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	src, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return nil, err
	}
	syms, err := sc.Scan(ctx, src)
	if !errors.Is(err, ErrUnparsed) {
		return syms, err
	}

	// proto2 and anything else the grammar rejects gets compiled instead.
	fds, err := d.Parse(name)
	if err != nil {
		d.log.WithError(err).WithField("file", name).Warn("skipping unparsable source")
		return nil, nil
	}
	return symbols.Collect(fds[0]), nil
}

// loadGitignore compiles root's .gitignore, or returns nil when there is
// none.
func (d *Database) loadGitignore(root string) *ignore.GitIgnore {
	data, err := afero.ReadFile(d.fs, filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}

// locate returns the path of name under the first import path that has it.
func (d *Database) locate(name string) (string, bool) {
	for _, root := range d.importPaths {
		path := filepath.Join(root, filepath.FromSlash(name))
		if info, err := d.fs.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func parent(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}
