package protopool

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/descriptorpb"
)

// Database supplies raw file schema records to a Pool on demand. A miss is
// reported either as an error wrapping ErrNotFound or as a nil record with a
// nil error.
type Database interface {
	FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error)
	FindFileContainingSymbol(symbol string) (*descriptorpb.FileDescriptorProto, error)
}

// chain consults each database in order until one has the answer.
type chain []Database

// Chain returns a Database that asks each of dbs in turn. Nil entries are
// skipped. A database error other than a miss stops the search.
func Chain(dbs ...Database) Database {
	var c chain
	for _, db := range dbs {
		if db != nil {
			c = append(c, db)
		}
	}
	return c
}

func (c chain) FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error) {
	return c.first(func(db Database) (*descriptorpb.FileDescriptorProto, error) {
		return db.FindFileByName(name)
	}, "file %q", name)
}

func (c chain) FindFileContainingSymbol(symbol string) (*descriptorpb.FileDescriptorProto, error) {
	return c.first(func(db Database) (*descriptorpb.FileDescriptorProto, error) {
		return db.FindFileContainingSymbol(symbol)
	}, "file containing %q", symbol)
}

func (c chain) first(
	find func(Database) (*descriptorpb.FileDescriptorProto, error),
	format string, arg string,
) (*descriptorpb.FileDescriptorProto, error) {
	for _, db := range c {
		fd, err := find(db)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if fd != nil {
			return fd, nil
		}
	}
	return nil, fmt.Errorf("%w: "+format, ErrNotFound, arg)
}
