// Package symbols enumerates the fully-qualified names a raw file schema
// record declares. Backing stores use it to answer "which file defines this
// symbol" without building descriptors.
package symbols

import (
	"strings"

	"google.golang.org/protobuf/types/descriptorpb"
)

// Kind classifies a declared symbol.
type Kind string

const (
	Message   Kind = "message"
	Enum      Kind = "enum"
	EnumValue Kind = "enum_value"
	Extension Kind = "extension"
	Service   Kind = "service"
	Method    Kind = "method"
)

// Symbol is one declared name within a file.
type Symbol struct {
	Name string
	Kind Kind
}

// Join builds a fully-qualified name from an enclosing scope and a short name.
// An empty scope yields the name unchanged.
func Join(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

// Normalize strips a single leading dot from a name.
func Normalize(name string) string {
	return strings.TrimPrefix(name, ".")
}

// Collect returns every symbol declared by fd in declaration order: messages
// (nested ones following their parent), enums, enum values (scoped as
// siblings of their enum), extensions, services and methods.
func Collect(fd *descriptorpb.FileDescriptorProto) []Symbol {
	var out []Symbol
	pkg := fd.GetPackage()
	for _, m := range fd.GetMessageType() {
		out = collectMessage(out, pkg, m)
	}
	for _, e := range fd.GetEnumType() {
		out = collectEnum(out, pkg, e)
	}
	for _, ext := range fd.GetExtension() {
		out = append(out, Symbol{Name: Join(pkg, ext.GetName()), Kind: Extension})
	}
	for _, svc := range fd.GetService() {
		svcName := Join(pkg, svc.GetName())
		out = append(out, Symbol{Name: svcName, Kind: Service})
		for _, m := range svc.GetMethod() {
			out = append(out, Symbol{Name: Join(svcName, m.GetName()), Kind: Method})
		}
	}
	return out
}

func collectMessage(out []Symbol, scope string, m *descriptorpb.DescriptorProto) []Symbol {
	name := Join(scope, m.GetName())
	out = append(out, Symbol{Name: name, Kind: Message})
	for _, nested := range m.GetNestedType() {
		out = collectMessage(out, name, nested)
	}
	for _, e := range m.GetEnumType() {
		out = collectEnum(out, name, e)
	}
	for _, ext := range m.GetExtension() {
		out = append(out, Symbol{Name: Join(name, ext.GetName()), Kind: Extension})
	}
	return out
}

func collectEnum(out []Symbol, scope string, e *descriptorpb.EnumDescriptorProto) []Symbol {
	out = append(out, Symbol{Name: Join(scope, e.GetName()), Kind: Enum})
	for _, v := range e.GetValue() {
		out = append(out, Symbol{Name: Join(scope, v.GetName()), Kind: EnumValue})
	}
	return out
}

// Declares reports whether fd declares symbol, or declares a message that
// encloses it (so fields and oneofs of a declared message match too).
func Declares(fd *descriptorpb.FileDescriptorProto, symbol string) bool {
	symbol = Normalize(symbol)
	for _, s := range Collect(fd) {
		if s.Name == symbol {
			return true
		}
		if s.Kind == Message && strings.HasPrefix(symbol, s.Name+".") {
			return true
		}
	}
	return false
}
