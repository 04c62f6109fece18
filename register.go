package protopool

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// AddDescriptor registers a message and its file. Nested types are not
// registered.
func (p *Pool) AddDescriptor(m *MessageDescriptor) error {
	if m == nil {
		return fmt.Errorf("protopool: add descriptor: nil message")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerMessageLocked(m)
	p.addFileLocked(m.File)
	return nil
}

// AddEnumDescriptor registers an enum and its file. Values of a top-level
// enum are registered at package scope too.
func (p *Pool) AddEnumDescriptor(e *EnumDescriptor) error {
	if e == nil {
		return fmt.Errorf("protopool: add enum descriptor: nil enum")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerEnumLocked(e)
	p.addFileLocked(e.File)
	return nil
}

// AddServiceDescriptor registers s by its full name. Its file is not added.
func (p *Pool) AddServiceDescriptor(s *ServiceDescriptor) error {
	if s == nil {
		return fmt.Errorf("protopool: add service descriptor: nil service")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerServiceLocked(s)
	return nil
}

// AddExtensionDescriptor registers an extension. It fails with
// ErrExtensionNumberCollision if a different extension already uses the same
// number on the same message; adding the same extension again is a no-op.
func (p *Pool) AddExtensionDescriptor(x *FieldDescriptor) error {
	if x == nil || !x.IsExtension || x.ContainingType == nil {
		return fmt.Errorf("protopool: add extension descriptor: %w: not an extension", ErrMalformedSchema)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkExtensionSlotLocked(x, nil); err != nil {
		return fmt.Errorf("protopool: %w", err)
	}
	if x.ExtensionScope == nil {
		p.registerTopLevelExtensionLocked(x)
	}
	p.indexExtensionLocked(x)
	return nil
}

// AddFileDescriptor registers a file without the types it declares. The
// file's top-level extensions become discoverable by name through
// FindFileContainingSymbol.
func (p *Pool) AddFileDescriptor(f *FileDescriptor) error {
	if f == nil {
		return fmt.Errorf("protopool: add file descriptor: nil file")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addFileLocked(f)
	for _, x := range f.Extensions {
		p.fileByExtension[x.FullName] = f
	}
	return nil
}

// registerFileLocked adds a freshly built file and everything it declares.
// Extension slots are checked for the whole file first, so a collision
// leaves the pool untouched.
func (p *Pool) registerFileLocked(f *FileDescriptor) error {
	pending := make(map[extensionSlot]*FieldDescriptor)
	for _, x := range fileExtensions(f) {
		if err := p.checkExtensionSlotLocked(x, pending); err != nil {
			return err
		}
	}

	p.addFileLocked(f)
	for _, m := range f.Messages {
		p.registerMessageTreeLocked(m)
	}
	for _, e := range f.Enums {
		p.registerEnumLocked(e)
	}
	for _, x := range f.Extensions {
		p.registerTopLevelExtensionLocked(x)
		p.indexExtensionLocked(x)
	}
	for _, s := range f.Services {
		p.registerServiceLocked(s)
	}
	return nil
}

func (p *Pool) addFileLocked(f *FileDescriptor) {
	if f == nil {
		return
	}
	if _, ok := p.files[f.Name]; !ok {
		p.files[f.Name] = f
	}
}

func (p *Pool) registerMessageLocked(m *MessageDescriptor) {
	if p.checkConflictLocked(m.FullName, KindMessage, fileName(m.File)) {
		p.messages[m.FullName] = m
	}
}

func (p *Pool) registerMessageTreeLocked(m *MessageDescriptor) {
	p.registerMessageLocked(m)
	for _, e := range m.Enums {
		p.registerEnumLocked(e)
	}
	for _, n := range m.NestedMessages {
		p.registerMessageTreeLocked(n)
	}
	for _, x := range m.Extensions {
		p.indexExtensionLocked(x)
	}
}

func (p *Pool) registerEnumLocked(e *EnumDescriptor) {
	file := fileName(e.File)
	if p.checkConflictLocked(e.FullName, KindEnum, file) {
		p.enums[e.FullName] = e
	}
	if e.Parent != nil {
		return
	}
	for _, v := range e.Values {
		if p.checkConflictLocked(v.FullName, KindEnumValue, file) {
			p.topEnumValues[v.FullName] = v
		}
	}
}

func (p *Pool) registerServiceLocked(s *ServiceDescriptor) {
	if p.checkConflictLocked(s.FullName, KindService, fileName(s.File)) {
		p.services[s.FullName] = s
	}
}

func (p *Pool) registerTopLevelExtensionLocked(x *FieldDescriptor) {
	if p.checkConflictLocked(x.FullName, KindExtension, fileName(x.File)) {
		p.extensions[x.FullName] = x
		if x.File != nil {
			p.fileByExtension[x.FullName] = x.File
		}
	}
}

// indexExtensionLocked records x under the message it extends. The slot must
// already have been checked.
func (p *Pool) indexExtensionLocked(x *FieldDescriptor) {
	containing := x.ContainingType.FullName
	if p.extensionsByNumber[containing] == nil {
		p.extensionsByNumber[containing] = make(map[int32]*FieldDescriptor)
	}
	if _, ok := p.extensionsByNumber[containing][x.Number]; ok {
		return
	}
	p.extensionsByNumber[containing][x.Number] = x
}

type extensionSlot struct {
	containing string
	number     int32
}

// checkExtensionSlotLocked fails if a different extension holds x's slot,
// either in the pool or in pending (extensions of the file being
// registered). When pending is non-nil x is added to it.
func (p *Pool) checkExtensionSlotLocked(x *FieldDescriptor, pending map[extensionSlot]*FieldDescriptor) error {
	slot := extensionSlot{containing: x.ContainingType.FullName, number: x.Number}
	existing, ok := p.extensionsByNumber[slot.containing][slot.number]
	if !ok && pending != nil {
		existing, ok = pending[slot]
	}
	if ok && !sameExtension(existing, x) {
		return &ExtensionNumberCollisionError{
			Containing: slot.containing,
			Number:     slot.number,
			Existing:   existing.FullName,
			New:        x.FullName,
		}
	}
	if pending != nil {
		pending[slot] = x
	}
	return nil
}

// sameExtension reports whether a and b are one definition: the same
// descriptor, or two built from the same declaration.
func sameExtension(a, b *FieldDescriptor) bool {
	if a == b {
		return true
	}
	return a.FullName == b.FullName &&
		fileName(a.File) == fileName(b.File) &&
		a.Number == b.Number &&
		a.Type == b.Type &&
		a.ContainingType.FullName == b.ContainingType.FullName
}

// checkConflictLocked reports whether name may be registered as kind from
// file. A name already registered is never replaced; if the earlier
// registration has a different kind or comes from a different file the
// conflict is recorded and logged.
func (p *Pool) checkConflictLocked(name string, kind Kind, file string) bool {
	existingKind, existingFile, ok := p.registeredLocked(name)
	if !ok {
		return true
	}
	if existingKind == kind && existingFile == file {
		return false
	}
	conflict := &DefinitionConflictError{
		Name:         name,
		Kind:         kind,
		File:         file,
		ExistingKind: existingKind,
		ExistingFile: existingFile,
	}
	p.conflicts = append(p.conflicts, conflict)
	p.log.WithFields(logrus.Fields{
		"name":          name,
		"kind":          kind,
		"file":          file,
		"existing_kind": existingKind,
		"existing_file": existingFile,
	}).Warn("conflicting definition ignored")
	return false
}

// registeredLocked looks name up in the five name indices.
func (p *Pool) registeredLocked(name string) (kind Kind, file string, ok bool) {
	if m, ok := p.messages[name]; ok {
		return KindMessage, fileName(m.File), true
	}
	if e, ok := p.enums[name]; ok {
		return KindEnum, fileName(e.File), true
	}
	if s, ok := p.services[name]; ok {
		return KindService, fileName(s.File), true
	}
	if x, ok := p.extensions[name]; ok {
		return KindExtension, fileName(x.File), true
	}
	if v, ok := p.topEnumValues[name]; ok {
		if v.Enum == nil {
			return KindEnumValue, "", true
		}
		return KindEnumValue, fileName(v.Enum.File), true
	}
	return "", "", false
}

// fileExtensions lists every extension f declares, top-level first.
func fileExtensions(f *FileDescriptor) []*FieldDescriptor {
	out := append([]*FieldDescriptor(nil), f.Extensions...)
	var walk func(ms []*MessageDescriptor)
	walk = func(ms []*MessageDescriptor) {
		for _, m := range ms {
			out = append(out, m.Extensions...)
			walk(m.NestedMessages)
		}
	}
	walk(f.Messages)
	return out
}

func fileName(f *FileDescriptor) string {
	if f == nil {
		return ""
	}
	return f.Name
}
