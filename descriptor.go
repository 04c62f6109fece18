package protopool

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/descriptorpb"
)

// Syntax is the schema dialect a file was written in.
type Syntax string

const (
	SyntaxProto2   Syntax = "proto2"
	SyntaxProto3   Syntax = "proto3"
	SyntaxEditions Syntax = "editions"
)

func parseSyntax(s string) Syntax {
	switch s {
	case "proto3":
		return SyntaxProto3
	case "editions":
		return SyntaxEditions
	default:
		return SyntaxProto2
	}
}

// FieldType is the wire-type tag of a field. Values match
// descriptorpb.FieldDescriptorProto_Type; TypeUnset means the record carried
// no tag and the builder inferred one.
type FieldType int32

const (
	TypeUnset    FieldType = 0
	TypeDouble   FieldType = 1
	TypeFloat    FieldType = 2
	TypeInt64    FieldType = 3
	TypeUint64   FieldType = 4
	TypeInt32    FieldType = 5
	TypeFixed64  FieldType = 6
	TypeFixed32  FieldType = 7
	TypeBool     FieldType = 8
	TypeString   FieldType = 9
	TypeGroup    FieldType = 10
	TypeMessage  FieldType = 11
	TypeBytes    FieldType = 12
	TypeUint32   FieldType = 13
	TypeEnum     FieldType = 14
	TypeSfixed32 FieldType = 15
	TypeSfixed64 FieldType = 16
	TypeSint32   FieldType = 17
	TypeSint64   FieldType = 18
)

func (t FieldType) String() string {
	if t == TypeUnset {
		return "unset"
	}
	name, ok := descriptorpb.FieldDescriptorProto_Type_name[int32(t)]
	if !ok {
		return fmt.Sprintf("FieldType(%d)", int32(t))
	}
	// TYPE_DOUBLE -> double
	return strings.ToLower(strings.TrimPrefix(name, "TYPE_"))
}

// Category groups wire types by in-memory representation.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryInt32
	CategoryInt64
	CategoryUint32
	CategoryUint64
	CategoryDouble
	CategoryFloat
	CategoryBool
	CategoryEnum
	CategoryString
	CategoryMessage
)

var categoryNames = [...]string{
	"unknown", "int32", "int64", "uint32", "uint64", "double", "float",
	"bool", "enum", "string", "message",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Category returns the representation category of t. Bytes share the string
// category; groups share the message category.
func (t FieldType) Category() Category {
	switch t {
	case TypeInt32, TypeSint32, TypeSfixed32:
		return CategoryInt32
	case TypeInt64, TypeSint64, TypeSfixed64:
		return CategoryInt64
	case TypeUint32, TypeFixed32:
		return CategoryUint32
	case TypeUint64, TypeFixed64:
		return CategoryUint64
	case TypeDouble:
		return CategoryDouble
	case TypeFloat:
		return CategoryFloat
	case TypeBool:
		return CategoryBool
	case TypeEnum:
		return CategoryEnum
	case TypeString, TypeBytes:
		return CategoryString
	case TypeMessage, TypeGroup:
		return CategoryMessage
	}
	return CategoryUnknown
}

// Label is a field's cardinality.
type Label int32

const (
	LabelOptional Label = 1
	LabelRequired Label = 2
	LabelRepeated Label = 3
)

func (l Label) String() string {
	switch l {
	case LabelOptional:
		return "optional"
	case LabelRequired:
		return "required"
	case LabelRepeated:
		return "repeated"
	}
	return fmt.Sprintf("Label(%d)", int32(l))
}

// FileDescriptor is a built schema file.
type FileDescriptor struct {
	Name               string
	Package            string
	Syntax             Syntax
	Dependencies       []*FileDescriptor
	PublicDependencies []*FileDescriptor

	Messages   []*MessageDescriptor
	Enums      []*EnumDescriptor
	Services   []*ServiceDescriptor
	Extensions []*FieldDescriptor

	// Proto is the raw record the file was built from. Nil for hand-built
	// descriptors.
	Proto *descriptorpb.FileDescriptorProto
}

func (f *FileDescriptor) MessageByName(name string) *MessageDescriptor {
	for _, m := range f.Messages {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (f *FileDescriptor) EnumByName(name string) *EnumDescriptor {
	for _, e := range f.Enums {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func (f *FileDescriptor) ServiceByName(name string) *ServiceDescriptor {
	for _, s := range f.Services {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (f *FileDescriptor) ExtensionByName(name string) *FieldDescriptor {
	for _, x := range f.Extensions {
		if x.Name == name {
			return x
		}
	}
	return nil
}

// ExtensionRange is a half-open range [Start, End) of field numbers reserved
// for extensions.
type ExtensionRange struct {
	Start int32
	End   int32
}

// Contains reports whether n falls inside the range.
func (r ExtensionRange) Contains(n int32) bool {
	return r.Start <= n && n < r.End
}

// MessageDescriptor describes a message type.
type MessageDescriptor struct {
	Name     string
	FullName string
	File     *FileDescriptor
	// Parent is the enclosing message for nested types, nil at top level.
	Parent *MessageDescriptor
	Syntax Syntax

	Fields          []*FieldDescriptor
	NestedMessages  []*MessageDescriptor
	Enums           []*EnumDescriptor
	Oneofs          []*OneofDescriptor
	Extensions      []*FieldDescriptor
	ExtensionRanges []ExtensionRange
	IsMapEntry      bool
}

func (m *MessageDescriptor) FieldByName(name string) *FieldDescriptor {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (m *MessageDescriptor) FieldByNumber(n int32) *FieldDescriptor {
	for _, f := range m.Fields {
		if f.Number == n {
			return f
		}
	}
	return nil
}

func (m *MessageDescriptor) OneofByName(name string) *OneofDescriptor {
	for _, o := range m.Oneofs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// ExtensionByName looks up an extension declared inside this message's scope
// (not one that extends it).
func (m *MessageDescriptor) ExtensionByName(name string) *FieldDescriptor {
	for _, x := range m.Extensions {
		if x.Name == name {
			return x
		}
	}
	return nil
}

// hasMember reports whether short names a field, oneof, scoped extension or
// nested enum value of m.
func (m *MessageDescriptor) hasMember(short string) bool {
	if m.FieldByName(short) != nil || m.OneofByName(short) != nil || m.ExtensionByName(short) != nil {
		return true
	}
	for _, e := range m.Enums {
		if e.ValueByName(short) != nil {
			return true
		}
	}
	return false
}

func (m *MessageDescriptor) NestedMessageByName(name string) *MessageDescriptor {
	for _, n := range m.NestedMessages {
		if n.Name == name {
			return n
		}
	}
	return nil
}

func (m *MessageDescriptor) EnumByName(name string) *EnumDescriptor {
	for _, e := range m.Enums {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// IsExtendable reports whether the message declares any extension range.
func (m *MessageDescriptor) IsExtendable() bool {
	return len(m.ExtensionRanges) > 0
}

// IsExtensionNumber reports whether n falls in one of the extension ranges.
func (m *MessageDescriptor) IsExtensionNumber(n int32) bool {
	for _, r := range m.ExtensionRanges {
		if r.Contains(n) {
			return true
		}
	}
	return false
}

// FieldDescriptor describes a message field or an extension.
type FieldDescriptor struct {
	Name     string
	FullName string
	// Index is the declaration position within the owning message, or within
	// the enclosing scope's extension list for extensions.
	Index  int
	Number int32
	Type   FieldType
	Label  Label

	MessageType *MessageDescriptor
	EnumType    *EnumDescriptor

	// ContainingType is the owning message for regular fields and the
	// extended message for extensions.
	ContainingType  *MessageDescriptor
	ContainingOneof *OneofDescriptor

	HasDefault bool
	Default    DefaultValue

	IsExtension bool
	// ExtensionScope is the message an extension is declared inside, nil for
	// top-level extensions and regular fields.
	ExtensionScope *MessageDescriptor
	File           *FileDescriptor
	JSONName       string
}

// Category returns the representation category of the field's wire type.
func (f *FieldDescriptor) Category() Category {
	return f.Type.Category()
}

func (f *FieldDescriptor) IsRepeated() bool {
	return f.Label == LabelRepeated
}

// EnumDescriptor describes an enum type.
type EnumDescriptor struct {
	Name     string
	FullName string
	File     *FileDescriptor
	Parent   *MessageDescriptor
	Values   []*EnumValueDescriptor
}

func (e *EnumDescriptor) ValueByName(name string) *EnumValueDescriptor {
	for _, v := range e.Values {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// ValueByNumber returns the first declared value with number n. Aliased
// numbers resolve to the earliest declaration.
func (e *EnumDescriptor) ValueByNumber(n int32) *EnumValueDescriptor {
	for _, v := range e.Values {
		if v.Number == n {
			return v
		}
	}
	return nil
}

// EnumValueDescriptor is one value of an enum. Its full name is scoped as a
// sibling of the enum, not a child.
type EnumValueDescriptor struct {
	Name     string
	FullName string
	Index    int
	Number   int32
	Enum     *EnumDescriptor
}

// ServiceDescriptor describes an RPC service.
type ServiceDescriptor struct {
	Name     string
	FullName string
	Index    int
	File     *FileDescriptor
	Methods  []*MethodDescriptor
}

func (s *ServiceDescriptor) MethodByName(name string) *MethodDescriptor {
	for _, m := range s.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// MethodDescriptor describes one RPC method.
type MethodDescriptor struct {
	Name            string
	FullName        string
	Index           int
	Service         *ServiceDescriptor
	InputType       *MessageDescriptor
	OutputType      *MessageDescriptor
	ClientStreaming bool
	ServerStreaming bool
}

// OneofDescriptor describes a oneof group within a message.
type OneofDescriptor struct {
	Name           string
	FullName       string
	Index          int
	ContainingType *MessageDescriptor
	Fields         []*FieldDescriptor
}
