package store

import "time"

// File is one stored schema file. The raw record itself is loaded on demand
// by FindFileByName.
type File struct {
	ID          int64
	Name        string
	Package     string
	Syntax      string
	Hash        string
	LastIndexed time.Time
}

// Symbol is one fully-qualified name declared by a stored file.
type Symbol struct {
	ID     int64
	FileID int64
	Name   string
	Kind   string
}

// Dependency is one import of a stored file, in declaration order.
type Dependency struct {
	FileID  int64
	Ordinal int
	Name    string
	Public  bool
}
