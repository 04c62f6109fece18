package protopool

import (
	"fmt"
	"strings"
)

// typeBox holds whichever of a message or an enum a scope name refers to.
type typeBox struct {
	message *MessageDescriptor
	enum    *EnumDescriptor
}

// scope maps dot-prefixed fully-qualified names to the types visible while
// building one file.
type scope map[string]typeBox

func (s scope) addMessage(m *MessageDescriptor) {
	s["."+m.FullName] = typeBox{message: m}
}

func (s scope) addEnum(e *EnumDescriptor) {
	s["."+e.FullName] = typeBox{enum: e}
}

// addTree adds m together with every message and enum nested inside it.
func (s scope) addTree(m *MessageDescriptor) {
	s.addMessage(m)
	for _, e := range m.Enums {
		s.addEnum(e)
	}
	for _, n := range m.NestedMessages {
		s.addTree(n)
	}
}

// addFile adds every message and enum a built file declares.
func (s scope) addFile(f *FileDescriptor) {
	for _, m := range f.Messages {
		s.addTree(m)
	}
	for _, e := range f.Enums {
		s.addEnum(e)
	}
}

// resolve finds typeName as seen from within pkg, which is a package or a
// message full name. A verbatim hit wins; otherwise the name is tried under
// pkg and each of its enclosing scopes in turn, innermost first, ending at
// the root.
func (s scope) resolve(pkg, typeName string) (typeBox, error) {
	if box, ok := s[typeName]; ok {
		return box, nil
	}
	components := strings.Split(dotted(pkg), ".")
	for len(components) > 0 {
		candidate := strings.Join(append(components[:len(components):len(components)], typeName), ".")
		if box, ok := s[candidate]; ok {
			return box, nil
		}
		components = components[:len(components)-1]
	}
	return typeBox{}, fmt.Errorf("%w: %q from scope %q", ErrUnresolvedType, typeName, pkg)
}

// dotted returns name with exactly one leading dot.
func dotted(name string) string {
	if strings.HasPrefix(name, ".") {
		return name
	}
	return "." + name
}
