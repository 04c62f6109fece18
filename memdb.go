package protopool

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jward/protopool/internal/symbols"
)

// MemoryDatabase is a map-backed Database. Every Pool owns one for records
// registered through Pool.Add; it can also be used on its own as a backing
// store.
type MemoryDatabase struct {
	mu      sync.RWMutex
	files   map[string]*descriptorpb.FileDescriptorProto
	symbols map[string]string // symbol -> file name
}

// Compile-time check: *MemoryDatabase satisfies Database.
var _ Database = (*MemoryDatabase)(nil)

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		files:   make(map[string]*descriptorpb.FileDescriptorProto),
		symbols: make(map[string]string),
	}
}

// Add registers fd. Adding an identical record again is a no-op; adding a
// different record under a name already present fails with
// ErrConflictingDefinition.
func (db *MemoryDatabase) Add(fd *descriptorpb.FileDescriptorProto) error {
	name := fd.GetName()
	if name == "" {
		return fmt.Errorf("add file: %w: record has no name", ErrMalformedSchema)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.files[name]; ok {
		if proto.Equal(existing, fd) {
			return nil
		}
		return fmt.Errorf("add file %q: %w", name, ErrConflictingDefinition)
	}
	db.files[name] = fd
	for _, sym := range symbols.Collect(fd) {
		if _, taken := db.symbols[sym.Name]; !taken {
			db.symbols[sym.Name] = name
		}
	}
	return nil
}

func (db *MemoryDatabase) FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fd, ok := db.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: file %q", ErrNotFound, name)
	}
	return fd, nil
}

// FindFileContainingSymbol finds the file declaring symbol. Names below a
// declared symbol (a field of a message, a method of a service) resolve to
// the file of the nearest declared ancestor.
func (db *MemoryDatabase) FindFileContainingSymbol(symbol string) (*descriptorpb.FileDescriptorProto, error) {
	symbol = symbols.Normalize(symbol)

	db.mu.RLock()
	defer db.mu.RUnlock()
	for name := symbol; name != ""; name = parentName(name) {
		if file, ok := db.symbols[name]; ok {
			return db.files[file], nil
		}
	}
	return nil, fmt.Errorf("%w: symbol %q", ErrNotFound, symbol)
}

// Len returns the number of stored records.
func (db *MemoryDatabase) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.files)
}
