package store

import "google.golang.org/protobuf/types/descriptorpb"

// Writer is the interface for import-phase writes. Both Store (direct
// SQLite) and Batch (in-memory buffering for parallel imports) implement it.
type Writer interface {
	// PutFile records fd and reports whether anything changed.
	PutFile(fd *descriptorpb.FileDescriptorProto) (bool, error)

	// FindFileByName lets importers check what is already recorded.
	FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error)
}

// Compile-time check: *Store satisfies Writer.
var _ Writer = (*Store)(nil)
