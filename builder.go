package protopool

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jward/protopool/internal/symbols"
)

// fileBuilder turns one raw record into a linked descriptor graph. Building
// runs in passes so types can reference each other regardless of
// declaration order:
//
//  1. messages and enums, depth-first, each added to the scope as produced
//  2. field and extension shells (type references unresolved)
//  3. type resolution, defaults and extendees
//  4. oneofs
//  5. services and methods
//
// Registration into the pool happens afterwards in Pool.registerFileLocked.
type fileBuilder struct {
	raw      *descriptorpb.FileDescriptorProto
	file     *FileDescriptor
	scope    scope
	messages []pendingMessage
	fields   []pendingField
}

type pendingMessage struct {
	desc  *MessageDescriptor
	proto *descriptorpb.DescriptorProto
}

type pendingField struct {
	desc  *FieldDescriptor
	proto *descriptorpb.FieldDescriptorProto
	// from is the package or message full name the field's type references
	// are resolved from.
	from string
}

// buildFile builds raw given its already-built direct dependencies, in
// declaration order. The scope is seeded from the transitive closure of deps.
func buildFile(raw *descriptorpb.FileDescriptorProto, deps []*FileDescriptor) (*FileDescriptor, error) {
	f := &FileDescriptor{
		Name:         raw.GetName(),
		Package:      raw.GetPackage(),
		Syntax:       parseSyntax(raw.GetSyntax()),
		Dependencies: deps,
		Proto:        raw,
	}
	for _, i := range raw.GetPublicDependency() {
		if i < 0 || int(i) >= len(deps) {
			return nil, malformed(f.Name, "", fmt.Errorf("public dependency index %d out of range", i))
		}
		f.PublicDependencies = append(f.PublicDependencies, deps[i])
	}

	b := &fileBuilder{raw: raw, file: f, scope: scope{}}
	seen := make(map[*FileDescriptor]bool)
	for _, dep := range deps {
		b.addDependency(dep, seen)
	}

	for _, mp := range raw.GetMessageType() {
		f.Messages = append(f.Messages, b.makeMessage(mp, nil, f.Package))
	}
	for _, ep := range raw.GetEnumType() {
		f.Enums = append(f.Enums, b.makeEnum(ep, nil, f.Package))
	}
	for i, xp := range raw.GetExtension() {
		f.Extensions = append(f.Extensions, b.makeField(xp, i, nil, f.Package, true))
	}

	for _, pf := range b.fields {
		if err := b.resolveField(pf); err != nil {
			return nil, err
		}
	}
	for _, pm := range b.messages {
		if err := b.makeOneofs(pm); err != nil {
			return nil, err
		}
	}
	for i, sp := range raw.GetService() {
		s, err := b.makeService(sp, i)
		if err != nil {
			return nil, err
		}
		f.Services = append(f.Services, s)
	}
	return f, nil
}

func (b *fileBuilder) addDependency(dep *FileDescriptor, seen map[*FileDescriptor]bool) {
	if seen[dep] {
		return
	}
	seen[dep] = true
	b.scope.addFile(dep)
	for _, d := range dep.Dependencies {
		b.addDependency(d, seen)
	}
}

func (b *fileBuilder) makeMessage(mp *descriptorpb.DescriptorProto, parent *MessageDescriptor, from string) *MessageDescriptor {
	fullName := symbols.Join(from, mp.GetName())
	m := &MessageDescriptor{
		Name:       mp.GetName(),
		FullName:   fullName,
		File:       b.file,
		Parent:     parent,
		Syntax:     b.file.Syntax,
		IsMapEntry: mp.GetOptions().GetMapEntry(),
	}
	b.scope.addMessage(m)
	b.messages = append(b.messages, pendingMessage{desc: m, proto: mp})

	for _, np := range mp.GetNestedType() {
		m.NestedMessages = append(m.NestedMessages, b.makeMessage(np, m, fullName))
	}
	for _, ep := range mp.GetEnumType() {
		m.Enums = append(m.Enums, b.makeEnum(ep, m, fullName))
	}
	for i, fp := range mp.GetField() {
		m.Fields = append(m.Fields, b.makeField(fp, i, m, fullName, false))
	}
	for i, xp := range mp.GetExtension() {
		m.Extensions = append(m.Extensions, b.makeField(xp, i, m, fullName, true))
	}
	for _, r := range mp.GetExtensionRange() {
		m.ExtensionRanges = append(m.ExtensionRanges, ExtensionRange{Start: r.GetStart(), End: r.GetEnd()})
	}
	return m
}

// makeEnum builds an enum. Its values are named as siblings of the enum,
// within from.
func (b *fileBuilder) makeEnum(ep *descriptorpb.EnumDescriptorProto, parent *MessageDescriptor, from string) *EnumDescriptor {
	e := &EnumDescriptor{
		Name:     ep.GetName(),
		FullName: symbols.Join(from, ep.GetName()),
		File:     b.file,
		Parent:   parent,
	}
	for i, vp := range ep.GetValue() {
		e.Values = append(e.Values, &EnumValueDescriptor{
			Name:     vp.GetName(),
			FullName: symbols.Join(from, vp.GetName()),
			Index:    i,
			Number:   vp.GetNumber(),
			Enum:     e,
		})
	}
	b.scope.addEnum(e)
	return e
}

// makeField builds a shell. For extensions owner is the enclosing message
// (nil at file level); for regular fields it is the containing message.
func (b *fileBuilder) makeField(fp *descriptorpb.FieldDescriptorProto, index int, owner *MessageDescriptor, from string, isExtension bool) *FieldDescriptor {
	f := &FieldDescriptor{
		Name:        fp.GetName(),
		FullName:    symbols.Join(from, fp.GetName()),
		Index:       index,
		Number:      fp.GetNumber(),
		Label:       Label(fp.GetLabel()),
		IsExtension: isExtension,
		File:        b.file,
		JSONName:    fp.GetJsonName(),
	}
	// GetType reports TYPE_DOUBLE when unset; an absent tag is inferred later.
	if fp.Type != nil {
		f.Type = FieldType(fp.GetType())
	}
	if isExtension {
		f.ExtensionScope = owner
	} else {
		f.ContainingType = owner
	}
	b.fields = append(b.fields, pendingField{desc: f, proto: fp, from: from})
	return f
}

func (b *fileBuilder) resolveField(pf pendingField) error {
	f, fp := pf.desc, pf.proto

	var box typeBox
	if fp.GetTypeName() != "" {
		var err error
		box, err = b.scope.resolve(pf.from, fp.GetTypeName())
		if err != nil {
			return malformed(b.file.Name, f.FullName, err)
		}
	}

	if f.Type == TypeUnset {
		switch {
		case box.message != nil:
			f.Type = TypeMessage
		case box.enum != nil:
			f.Type = TypeEnum
		default:
			return malformed(b.file.Name, f.FullName, errors.New("field has neither a type nor a type name"))
		}
	}

	switch f.Type {
	case TypeMessage, TypeGroup:
		if box.message == nil {
			return malformed(b.file.Name, f.FullName, fmt.Errorf("%w: %q is not a message", ErrUnresolvedType, fp.GetTypeName()))
		}
		f.MessageType = box.message
	case TypeEnum:
		if box.enum == nil {
			return malformed(b.file.Name, f.FullName, fmt.Errorf("%w: %q is not an enum", ErrUnresolvedType, fp.GetTypeName()))
		}
		f.EnumType = box.enum
	}

	def, hasDefault, err := computeDefault(f, fp.GetDefaultValue(), fp.DefaultValue != nil)
	if err != nil {
		return malformed(b.file.Name, f.FullName, err)
	}
	f.Default, f.HasDefault = def, hasDefault

	if f.IsExtension {
		if fp.GetExtendee() == "" {
			return malformed(b.file.Name, f.FullName, errors.New("extension has no extendee"))
		}
		target, err := b.scope.resolve(pf.from, fp.GetExtendee())
		if err != nil {
			return malformed(b.file.Name, f.FullName, err)
		}
		if target.message == nil {
			return malformed(b.file.Name, f.FullName, fmt.Errorf("extendee %q is not a message", fp.GetExtendee()))
		}
		f.ContainingType = target.message
	}
	return nil
}

func (b *fileBuilder) makeOneofs(pm pendingMessage) error {
	m := pm.desc
	for i, op := range pm.proto.GetOneofDecl() {
		m.Oneofs = append(m.Oneofs, &OneofDescriptor{
			Name:           op.GetName(),
			FullName:       symbols.Join(m.FullName, op.GetName()),
			Index:          i,
			ContainingType: m,
		})
	}
	for i, fp := range pm.proto.GetField() {
		if fp.OneofIndex == nil {
			continue
		}
		idx := int(fp.GetOneofIndex())
		if idx < 0 || idx >= len(m.Oneofs) {
			return malformed(b.file.Name, m.Fields[i].FullName, fmt.Errorf("oneof index %d out of range", idx))
		}
		o := m.Oneofs[idx]
		o.Fields = append(o.Fields, m.Fields[i])
		m.Fields[i].ContainingOneof = o
	}
	return nil
}

func (b *fileBuilder) makeService(sp *descriptorpb.ServiceDescriptorProto, index int) (*ServiceDescriptor, error) {
	s := &ServiceDescriptor{
		Name:     sp.GetName(),
		FullName: symbols.Join(b.file.Package, sp.GetName()),
		Index:    index,
		File:     b.file,
	}
	for i, mp := range sp.GetMethod() {
		name := symbols.Join(s.FullName, mp.GetName())
		in, err := b.resolveMessage(mp.GetInputType(), name)
		if err != nil {
			return nil, err
		}
		out, err := b.resolveMessage(mp.GetOutputType(), name)
		if err != nil {
			return nil, err
		}
		s.Methods = append(s.Methods, &MethodDescriptor{
			Name:            mp.GetName(),
			FullName:        name,
			Index:           i,
			Service:         s,
			InputType:       in,
			OutputType:      out,
			ClientStreaming: mp.GetClientStreaming(),
			ServerStreaming: mp.GetServerStreaming(),
		})
	}
	return s, nil
}

func (b *fileBuilder) resolveMessage(typeName, element string) (*MessageDescriptor, error) {
	box, err := b.scope.resolve(b.file.Package, typeName)
	if err != nil {
		return nil, malformed(b.file.Name, element, err)
	}
	if box.message == nil {
		return nil, malformed(b.file.Name, element, fmt.Errorf("%w: %q is not a message", ErrUnresolvedType, typeName))
	}
	return box.message, nil
}
