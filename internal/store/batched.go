package store

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Batch buffers file records in memory so that several importer goroutines
// can write without contending for the SQLite write lock. CommitBatch
// flushes it in one transaction.
//
// Thread safety: the mutex protects the buffer. Reads of names that are
// not buffered pass through to the underlying Store.
type Batch struct {
	store *Store
	mu    sync.Mutex

	order []string
	files map[string]*descriptorpb.FileDescriptorProto
}

// Compile-time check: *Batch satisfies Writer.
var _ Writer = (*Batch)(nil)

// NewBatch creates a Batch backed by s for read queries.
func NewBatch(s *Store) *Batch {
	return &Batch{
		store: s,
		files: make(map[string]*descriptorpb.FileDescriptorProto),
	}
}

// PutFile buffers fd. A second record with the same name replaces the first;
// an identical one reports false.
func (b *Batch) PutFile(fd *descriptorpb.FileDescriptorProto) (bool, error) {
	name := fd.GetName()
	if name == "" {
		return false, fmt.Errorf("put file: record has no name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.files[name]; ok {
		if proto.Equal(prev, fd) {
			return false, nil
		}
	} else {
		b.order = append(b.order, name)
	}
	b.files[name] = fd
	return true, nil
}

// FindFileByName returns the buffered record for name, falling back to the
// database.
func (b *Batch) FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error) {
	b.mu.Lock()
	fd, ok := b.files[name]
	b.mu.Unlock()
	if ok {
		return fd, nil
	}
	return b.store.FindFileByName(name)
}

// Len returns the number of buffered records.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Files returns the buffered records in the order they were first put.
func (b *Batch) Files() []*descriptorpb.FileDescriptorProto {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*descriptorpb.FileDescriptorProto, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.files[name])
	}
	return out
}

func (b *Batch) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = nil
	b.files = make(map[string]*descriptorpb.FileDescriptorProto)
}
