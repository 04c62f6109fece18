package protopool

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a name has no file, symbol or extension
	// slot anywhere reachable from the pool.
	ErrNotFound = errors.New("not found")

	// ErrMalformedSchema marks a raw record the builder cannot link.
	ErrMalformedSchema = errors.New("malformed schema")

	// ErrUnresolvedType is wrapped by MalformedSchemaError when a type
	// reference matches nothing in any enclosing scope.
	ErrUnresolvedType = errors.New("unresolved type reference")

	// ErrExtensionNumberCollision marks two distinct extensions claiming the
	// same field number on the same message.
	ErrExtensionNumberCollision = errors.New("extension number collision")

	// ErrCyclicDependency is returned when a file transitively imports itself.
	ErrCyclicDependency = errors.New("cyclic file dependency")

	// ErrConflictingDefinition is returned by MemoryDatabase.Add when a
	// different record is already stored under the same file name.
	ErrConflictingDefinition = errors.New("conflicting file definition")
)

// MalformedSchemaError reports why a file could not be built.
type MalformedSchemaError struct {
	File    string
	Element string
	Err     error
}

func (e *MalformedSchemaError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("malformed schema %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("malformed schema %s: %s: %v", e.File, e.Element, e.Err)
}

func (e *MalformedSchemaError) Unwrap() error { return e.Err }

func (e *MalformedSchemaError) Is(target error) bool { return target == ErrMalformedSchema }

// DefinitionConflictError records a name registered twice with a different
// kind or from a different file. It never aborts a build; the pool keeps the
// first registration and exposes the conflict through Pool.Conflicts.
type DefinitionConflictError struct {
	Name         string
	Kind         Kind
	File         string
	ExistingKind Kind
	ExistingFile string
}

func (e *DefinitionConflictError) Error() string {
	return fmt.Sprintf("conflicting definition of %s: %s from %q already registered as %s from %q",
		e.Name, e.Kind, e.File, e.ExistingKind, e.ExistingFile)
}

// ExtensionNumberCollisionError names both extensions claiming a slot.
type ExtensionNumberCollisionError struct {
	Containing string
	Number     int32
	Existing   string
	New        string
}

func (e *ExtensionNumberCollisionError) Error() string {
	return fmt.Sprintf("extension %s and %s both use number %d on %s",
		e.Existing, e.New, e.Number, e.Containing)
}

func (e *ExtensionNumberCollisionError) Is(target error) bool {
	return target == ErrExtensionNumberCollision
}

func malformed(file, element string, err error) error {
	return &MalformedSchemaError{File: file, Element: element, Err: err}
}
