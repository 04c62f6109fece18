package protopool

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jward/protopool/internal/symbols"
)

// Pool is a registry of linked descriptors. Files are built on demand from
// the pool's own in-memory store and, after it, the configured Database.
//
// A Pool is safe for concurrent use. Lookups that hit an index only take a
// read lock; anything that may build a file takes the write lock for the
// whole (possibly recursive) build.
type Pool struct {
	mu     sync.RWMutex
	log    logrus.FieldLogger
	local  *MemoryDatabase
	source Database
	db     Database

	files           map[string]*FileDescriptor
	messages        map[string]*MessageDescriptor
	enums           map[string]*EnumDescriptor
	services        map[string]*ServiceDescriptor
	extensions      map[string]*FieldDescriptor // top-level only
	fileByExtension map[string]*FileDescriptor
	topEnumValues   map[string]*EnumValueDescriptor

	// extended message full name -> field number -> extension
	extensionsByNumber map[string]map[int32]*FieldDescriptor

	conflicts []*DefinitionConflictError
}

// Option configures a Pool.
type Option func(*Pool)

// WithDatabase sets the backing store consulted when a name is not in the
// pool or its in-memory store.
func WithDatabase(db Database) Option {
	return func(p *Pool) {
		p.db = db
	}
}

// WithLogger sets where build progress and definition conflicts are logged.
// The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pool) {
		p.log = log
	}
}

// New creates an empty Pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		local:              NewMemoryDatabase(),
		files:              make(map[string]*FileDescriptor),
		messages:           make(map[string]*MessageDescriptor),
		enums:              make(map[string]*EnumDescriptor),
		services:           make(map[string]*ServiceDescriptor),
		extensions:         make(map[string]*FieldDescriptor),
		fileByExtension:    make(map[string]*FileDescriptor),
		topEnumValues:      make(map[string]*EnumValueDescriptor),
		extensionsByNumber: make(map[string]map[int32]*FieldDescriptor),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.log = l
	}
	p.source = Chain(p.local, p.db)
	return p
}

// Add registers a raw record with the pool's in-memory store. The file is
// built the first time something looks it up.
func (p *Pool) Add(fd *descriptorpb.FileDescriptorProto) error {
	if err := p.local.Add(fd); err != nil {
		return fmt.Errorf("protopool: %w", err)
	}
	return nil
}

// AddSerializedFile decodes a serialized FileDescriptorProto, adds it like
// Add, and builds it.
func (p *Pool) AddSerializedFile(data []byte) (*FileDescriptor, error) {
	fd := &descriptorpb.FileDescriptorProto{}
	if err := proto.Unmarshal(data, fd); err != nil {
		return nil, fmt.Errorf("protopool: decode file: %w", err)
	}
	if err := p.Add(fd); err != nil {
		return nil, err
	}
	return p.FindFileByName(fd.GetName())
}

// FindFileByName returns the named file, building it and its dependencies
// if needed.
func (p *Pool) FindFileByName(name string) (*FileDescriptor, error) {
	p.mu.RLock()
	f, ok := p.files[name]
	p.mu.RUnlock()
	if ok {
		return f, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.loadFileLocked(name, nil)
	if err != nil {
		return nil, fmt.Errorf("protopool: find file %q: %w", name, err)
	}
	return f, nil
}

// FindFileContainingSymbol returns the file declaring symbol, which may be
// any message, enum, top-level enum value, service, extension, or a member
// (field, oneof, method) of one of those.
func (p *Pool) FindFileContainingSymbol(symbol string) (*FileDescriptor, error) {
	return lookupOrLoad(p, "file containing", symbol, p.fileOfSymbolLocked)
}

// FindMessageByName finds a message, nested or not, by its full name.
func (p *Pool) FindMessageByName(name string) (*MessageDescriptor, error) {
	return lookupOrLoad(p, "message", name, func(n string) (*MessageDescriptor, bool) {
		m, ok := p.messages[n]
		return m, ok
	})
}

// FindEnumByName finds an enum by its full name.
func (p *Pool) FindEnumByName(name string) (*EnumDescriptor, error) {
	return lookupOrLoad(p, "enum", name, func(n string) (*EnumDescriptor, bool) {
		e, ok := p.enums[n]
		return e, ok
	})
}

// FindServiceByName finds a service by its full name.
func (p *Pool) FindServiceByName(name string) (*ServiceDescriptor, error) {
	return lookupOrLoad(p, "service", name, func(n string) (*ServiceDescriptor, bool) {
		s, ok := p.services[n]
		return s, ok
	})
}

// FindFieldByName finds a message field by its full name, such as
// "pkg.Message.field".
func (p *Pool) FindFieldByName(name string) (*FieldDescriptor, error) {
	name = symbols.Normalize(name)
	msgName, fieldName := splitName(name)
	m, err := p.FindMessageByName(msgName)
	if err != nil {
		return nil, err
	}
	if f := m.FieldByName(fieldName); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("protopool: find field %q: %w", name, ErrNotFound)
}

// FindOneofByName finds a oneof by its full name, such as "pkg.Message.kind".
func (p *Pool) FindOneofByName(name string) (*OneofDescriptor, error) {
	name = symbols.Normalize(name)
	msgName, oneofName := splitName(name)
	m, err := p.FindMessageByName(msgName)
	if err != nil {
		return nil, err
	}
	if o := m.OneofByName(oneofName); o != nil {
		return o, nil
	}
	return nil, fmt.Errorf("protopool: find oneof %q: %w", name, ErrNotFound)
}

// FindExtensionByName finds an extension by full name. Top-level extensions
// are named after their package, nested ones after the message declaring
// them.
func (p *Pool) FindExtensionByName(name string) (*FieldDescriptor, error) {
	name = symbols.Normalize(name)
	p.mu.RLock()
	x, ok := p.extensions[name]
	p.mu.RUnlock()
	if ok {
		return x, nil
	}

	scopeName, extName := splitName(name)
	if scopeName != "" {
		m, err := p.FindMessageByName(scopeName)
		switch {
		case err == nil:
			if x := m.ExtensionByName(extName); x != nil {
				return x, nil
			}
			return nil, fmt.Errorf("protopool: find extension %q: %w", name, ErrNotFound)
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	f, err := p.FindFileContainingSymbol(name)
	if err != nil {
		return nil, err
	}
	if x := f.ExtensionByName(extName); x != nil {
		return x, nil
	}
	return nil, fmt.Errorf("protopool: find extension %q: %w", name, ErrNotFound)
}

// FindExtensionByNumber returns the extension of message with the given
// field number. Only extensions the pool has built or been given through
// AddExtensionDescriptor are known; nothing is loaded.
func (p *Pool) FindExtensionByNumber(message *MessageDescriptor, number int32) (*FieldDescriptor, error) {
	if message == nil {
		return nil, fmt.Errorf("protopool: find extension %d of nil message: %w", number, ErrNotFound)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if x, ok := p.extensionsByNumber[message.FullName][number]; ok {
		return x, nil
	}
	return nil, fmt.Errorf("protopool: find extension %d of %q: %w", number, message.FullName, ErrNotFound)
}

// FindAllExtensions returns every known extension of message ordered by
// field number. A nil message has none.
func (p *Pool) FindAllExtensions(message *MessageDescriptor) []*FieldDescriptor {
	if message == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	byNumber := p.extensionsByNumber[message.FullName]
	out := make([]*FieldDescriptor, 0, len(byNumber))
	for _, x := range byNumber {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Files returns every file in the pool sorted by name.
func (p *Pool) Files() []*FileDescriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*FileDescriptor, 0, len(p.files))
	for _, f := range p.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Conflicts returns the definition conflicts recorded so far, oldest first.
func (p *Pool) Conflicts() []*DefinitionConflictError {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.conflicts)
}

// lookupOrLoad returns lookup(name) if it hits; otherwise it builds the file
// the stores say declares name and tries again.
func lookupOrLoad[T any](p *Pool, kind, name string, lookup func(string) (T, bool)) (T, error) {
	var zero T
	name = symbols.Normalize(name)

	p.mu.RLock()
	v, ok := lookup(name)
	p.mu.RUnlock()
	if ok {
		return v, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := lookup(name); ok {
		return v, nil
	}
	raw, err := p.source.FindFileContainingSymbol(name)
	if err != nil {
		return zero, fmt.Errorf("protopool: find %s %q: %w", kind, name, err)
	}
	if raw == nil {
		return zero, fmt.Errorf("protopool: find %s %q: %w", kind, name, ErrNotFound)
	}
	if _, err := p.buildLocked(raw, nil); err != nil {
		return zero, fmt.Errorf("protopool: find %s %q: %w", kind, name, err)
	}
	if v, ok := lookup(name); ok {
		return v, nil
	}
	return zero, fmt.Errorf("protopool: find %s %q: %w", kind, name, ErrNotFound)
}

// loadFileLocked returns the named file, fetching and building it if needed.
// stack holds the files currently being built, outermost first.
func (p *Pool) loadFileLocked(name string, stack []string) (*FileDescriptor, error) {
	if f, ok := p.files[name]; ok {
		return f, nil
	}
	if slices.Contains(stack, name) {
		return nil, cycleError(stack, name)
	}
	raw, err := p.source.FindFileByName(name)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: file %q", ErrNotFound, name)
	}
	return p.buildLocked(raw, stack)
}

// buildLocked builds raw after its dependencies and registers the result.
func (p *Pool) buildLocked(raw *descriptorpb.FileDescriptorProto, stack []string) (*FileDescriptor, error) {
	name := raw.GetName()
	if f, ok := p.files[name]; ok {
		return f, nil
	}
	if slices.Contains(stack, name) {
		return nil, cycleError(stack, name)
	}
	stack = append(stack, name)

	deps := make([]*FileDescriptor, 0, len(raw.GetDependency()))
	for _, depName := range raw.GetDependency() {
		dep, err := p.loadFileLocked(depName, stack)
		if err != nil {
			return nil, fmt.Errorf("load dependency %q of %q: %w", depName, name, err)
		}
		deps = append(deps, dep)
	}

	log := p.log.WithField("file", name)
	log.Debug("building file")
	f, err := buildFile(raw, deps)
	if err != nil {
		return nil, err
	}
	if err := p.registerFileLocked(f); err != nil {
		return nil, err
	}
	log.WithField("dependencies", len(deps)).Debug("file built")
	return f, nil
}

// fileOfSymbolLocked finds the built file declaring name, or the file of the
// message or service name is a member of.
func (p *Pool) fileOfSymbolLocked(name string) (*FileDescriptor, bool) {
	if _, file, ok := p.registeredLocked(name); ok {
		return p.files[file], p.files[file] != nil
	}
	if f, ok := p.fileByExtension[name]; ok {
		return f, true
	}
	parent, short := splitName(name)
	if m, ok := p.messages[parent]; ok && m.File != nil && m.hasMember(short) {
		return m.File, true
	}
	if s, ok := p.services[parent]; ok && s.File != nil && s.MethodByName(short) != nil {
		return s.File, true
	}
	return nil, false
}

func cycleError(stack []string, name string) error {
	i := slices.Index(stack, name)
	path := append(slices.Clone(stack[i:]), name)
	return fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(path, " -> "))
}

// splitName splits a full name at its last dot.
func splitName(name string) (parent, short string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

func parentName(name string) string {
	parent, _ := splitName(name)
	return parent
}
