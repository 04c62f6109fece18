package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jward/protopool"
	"github.com/jward/protopool/internal/protosrc"
	"github.com/jward/protopool/internal/reflectdb"
	"github.com/jward/protopool/internal/store"
)

const dialTimeout = 10 * time.Second

// repoRoot returns the repository root for the working directory.
func repoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findRepoRoot(cwd), nil
}

// openStore opens the existing database.
func openStore() (*store.Store, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(root)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'protopool import' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// createStore opens the database, creating it and its schema when missing.
func createStore() (*store.Store, string, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, "", err
	}
	dbPath := resolveDBPath(root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, "", err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, "", err
	}
	return s, dbPath, nil
}

// sources holds the optional live backends named by the config.
type sources struct {
	proto   *protosrc.Database
	reflect *reflectdb.Database
	conn    *grpc.ClientConn
}

func (s *sources) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// openSources connects the backends configured by proto_paths and
// reflect_addr. Either may be absent.
func openSources(ctx context.Context) (*sources, error) {
	src := &sources{}
	if paths := cfg.protoPaths(); len(paths) > 0 {
		src.proto = protosrc.New(afero.NewOsFs(), paths,
			protosrc.WithLogger(logger),
			protosrc.WithWorkers(int(cfg.Workers.Int64)),
		)
	}
	if cfg.ReflectAddr.Valid && cfg.ReflectAddr.String != "" {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		conn, err := grpc.DialContext(dialCtx, cfg.ReflectAddr.String,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithBlock(),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", cfg.ReflectAddr.String, err)
		}
		src.conn = conn
		src.reflect = reflectdb.New(conn, reflectdb.WithLogger(logger))
	}
	return src, nil
}

// newPool builds a pool over the store followed by the live sources, so
// imported records win over fresh ones.
func newPool(s *store.Store, src *sources) *protopool.Pool {
	var dbs []protopool.Database
	if s != nil {
		dbs = append(dbs, s)
	}
	if src != nil && src.proto != nil {
		dbs = append(dbs, src.proto)
	}
	if src != nil && src.reflect != nil {
		dbs = append(dbs, src.reflect)
	}
	return protopool.New(
		protopool.WithDatabase(protopool.Chain(dbs...)),
		protopool.WithLogger(logger),
	)
}
