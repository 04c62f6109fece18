// Package protopool is a dynamic descriptor pool for protocol buffer
// schemas. It ingests raw FileDescriptorProto records and produces a linked,
// queryable graph of descriptors without generated code.
//
// # Building
//
// Files are built lazily. A lookup that misses the pool's indices asks the
// pool's in-memory store, then the configured [Database], for the file that
// declares the name, builds that file's dependencies first, then builds and
// registers the file itself:
//
//	db := protopool.NewMemoryDatabase()
//	_ = db.Add(fileProto)
//
//	pool := protopool.New(protopool.WithDatabase(db))
//	msg, err := pool.FindMessageByName("shop.Order")
//
// Type references are resolved the protobuf way: a fully-qualified name
// (".shop.Order") is taken as is, anything else is searched for from the
// innermost enclosing message or package outward.
//
// # Conflicts
//
// Registering a name that is already registered with another kind, or from
// another file, never replaces the existing entry. The conflict is logged
// and kept for [Pool.Conflicts]. Two different extensions claiming the same
// field number on one message are an error ([ErrExtensionNumberCollision]).
//
// # Backing stores
//
// Besides [MemoryDatabase], the repository provides SQLite, .proto source
// and gRPC reflection backed databases under internal/, wired together by
// the protopool command.
package protopool
