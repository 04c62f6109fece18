package protopool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeResolve(t *testing.T) {
	t.Parallel()
	s := scope{}
	inner := &MessageDescriptor{Name: "M", FullName: "a.b.c.M"}
	outer := &MessageDescriptor{Name: "M", FullName: "a.b.M"}
	root := &MessageDescriptor{Name: "Root", FullName: "Root"}
	color := &EnumDescriptor{Name: "Color", FullName: "a.Color"}
	s.addMessage(inner)
	s.addMessage(outer)
	s.addMessage(root)
	s.addEnum(color)

	tests := []struct {
		name     string
		pkg      string
		typeName string
		want     string
	}{
		{"innermost scope wins", "a.b.c", "M", "a.b.c.M"},
		{"fully qualified is verbatim", "a.b.c", ".a.b.M", "a.b.M"},
		{"outer scope", "a.b", "M", "a.b.M"},
		{"partially qualified", "a.b.c.Holder", "b.M", "a.b.M"},
		{"from message scope", "a.b.c.Holder", "M", "a.b.c.M"},
		{"root fallback", "a.b.c", "Root", "Root"},
		{"root from empty package", "", "Root", "Root"},
		{"enum", "a.b.c", "Color", "a.Color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, err := s.resolve(tt.pkg, tt.typeName)
			require.NoError(t, err)
			switch {
			case box.message != nil:
				assert.Equal(t, tt.want, box.message.FullName)
			case box.enum != nil:
				assert.Equal(t, tt.want, box.enum.FullName)
			default:
				t.Fatalf("empty result for %q", tt.typeName)
			}
		})
	}
}

func TestScopeResolve_NotFound(t *testing.T) {
	t.Parallel()
	s := scope{}
	s.addMessage(&MessageDescriptor{Name: "M", FullName: "a.b.M"})

	_, err := s.resolve("x.y", "M")
	assert.ErrorIs(t, err, ErrUnresolvedType)

	// A verbatim miss on a qualified name still fails.
	_, err = s.resolve("a.b", ".a.M")
	assert.ErrorIs(t, err, ErrUnresolvedType)
}

func TestScopeAddTree(t *testing.T) {
	t.Parallel()
	nested := &MessageDescriptor{Name: "N", FullName: "p.M.N"}
	e := &EnumDescriptor{Name: "E", FullName: "p.M.N.E"}
	nested.Enums = []*EnumDescriptor{e}
	top := &MessageDescriptor{Name: "M", FullName: "p.M", NestedMessages: []*MessageDescriptor{nested}}

	s := scope{}
	s.addFile(&FileDescriptor{Messages: []*MessageDescriptor{top}})

	assert.Len(t, s, 3)
	assert.Same(t, e, s[".p.M.N.E"].enum)
}
