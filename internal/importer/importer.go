// Package importer copies raw file schema records from a source (proto
// sources on disk, a reflection server) into the SQLite store.
package importer

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jward/protopool/internal/store"
)

// Source lists and serves raw file schema records.
type Source interface {
	Files() ([]string, error)
	FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error)
}

// Importer runs the import pipeline against one store.
type Importer struct {
	store   *store.Store
	workers int
	log     logrus.FieldLogger
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers bounds how many files are fetched concurrently. Values below
// one mean runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		im.workers = n
	}
}

// WithLogger sets the logger for import progress.
func WithLogger(l logrus.FieldLogger) Option {
	return func(im *Importer) {
		im.log = l
	}
}

// New creates an Importer writing to s.
func New(s *store.Store, opts ...Option) *Importer {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	im := &Importer{store: s, log: discard}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Result summarizes one import run.
type Result struct {
	// Changed lists files whose stored record was added or replaced.
	Changed []string
	// Unchanged counts files whose stored record already matched.
	Unchanged int
	// Stale lists stored files that import a changed file, directly or
	// transitively, and were not themselves reimported.
	Stale    []string
	Duration time.Duration
}

// Import copies the named files from src into the store. With no names,
// every file src lists is imported.
//
//	Phase 1 (serial):   list the files to import.
//	Phase 2 (parallel): fetch records into a shared Batch via a worker pool.
//	Phase 3 (serial):   commit the batch and compute stale dependents.
func (im *Importer) Import(ctx context.Context, src Source, names ...string) (*Result, error) {
	start := time.Now()

	// ---- Phase 1: Serial file listing ----
	if len(names) == 0 {
		var err error
		names, err = src.Files()
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
	}
	names = dedupe(names)
	res := &Result{}
	if len(names) == 0 {
		return res, nil
	}

	// ---- Phase 2: Parallel fetch ----
	batch := store.NewBatch(im.store)
	numWorkers := im.workers
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, len(names))

	workCh := make(chan string, len(names))
	for _, name := range names {
		workCh <- name
	}
	close(workCh)

	errCh := make(chan error, len(names))
	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range workCh {
				if err := ctx.Err(); err != nil {
					errCh <- err
					continue
				}
				if err := fetch(src, batch, name); err != nil {
					errCh <- fmt.Errorf("import %s: %w", name, err)
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("import had %d error(s): %w", len(errs), errs[0])
	}

	// ---- Phase 3: Serial commit ----
	changed, err := im.store.CommitBatch(batch)
	if err != nil {
		return nil, err
	}
	sort.Strings(changed)
	res.Changed = changed
	res.Unchanged = len(names) - len(changed)

	imported := make(map[string]bool, len(names))
	for _, name := range names {
		imported[name] = true
	}
	stale := make(map[string]bool)
	for _, name := range changed {
		deps, err := im.store.Dependents(name)
		if err != nil {
			return nil, fmt.Errorf("dependents of %s: %w", name, err)
		}
		for _, d := range deps {
			if !imported[d] {
				stale[d] = true
			}
		}
	}
	for name := range stale {
		res.Stale = append(res.Stale, name)
	}
	sort.Strings(res.Stale)
	res.Duration = time.Since(start)

	im.log.WithFields(logrus.Fields{
		"changed":   len(res.Changed),
		"unchanged": res.Unchanged,
		"stale":     len(res.Stale),
		"duration":  res.Duration.Round(time.Millisecond),
	}).Info("import finished")
	return res, nil
}

func fetch(src Source, w store.Writer, name string) error {
	fd, err := src.FindFileByName(name)
	if err != nil {
		return err
	}
	if fd == nil {
		return fmt.Errorf("not found in source")
	}
	_, err = w.PutFile(fd)
	return err
}

// dedupe drops repeated names, keeping first occurrences in order.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
