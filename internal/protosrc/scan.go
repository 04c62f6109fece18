package protosrc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/protobuf"

	"github.com/jward/protopool/internal/symbols"
)

// ErrUnparsed is returned by Scan when the grammar cannot parse the source
// cleanly. The grammar covers proto3 only, so every proto2 file lands here.
var ErrUnparsed = errors.New("source not parsed by the protobuf grammar")

// Scanner extracts declared symbols from .proto source text without
// compiling it. A Scanner owns a tree-sitter parser and is not safe for
// concurrent use; give each goroutine its own.
type Scanner struct {
	parser *sitter.Parser
}

// NewScanner creates a Scanner for the protobuf grammar.
func NewScanner() *Scanner {
	p := sitter.NewParser()
	p.SetLanguage(protobuf.GetLanguage())
	return &Scanner{parser: p}
}

// Close releases the parser.
func (s *Scanner) Close() {
	s.parser.Close()
}

// Scan returns the fully-qualified names declared in src: messages, enums,
// enum values, extensions, services and methods, nested declarations
// included. Enum values are scoped as siblings of their enum.
func (s *Scanner) Scan(ctx context.Context, src []byte) ([]symbols.Symbol, error) {
	tree, err := s.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrUnparsed
	}
	w := &walker{src: src}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if n := root.NamedChild(i); n.Type() == "package" {
			w.pkg = packageName(n, src)
			break
		}
	}
	w.body(root, w.pkg)
	return w.out, nil
}

type walker struct {
	src []byte
	pkg string
	out []symbols.Symbol
}

func (w *walker) add(name string, kind symbols.Kind) {
	w.out = append(w.out, symbols.Symbol{Name: name, Kind: kind})
}

// body visits the declarations directly inside n, scoped under scope.
func (w *walker) body(n *sitter.Node, scope string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "message":
			name := symbols.Join(scope, w.declName(child, "message_name"))
			w.add(name, symbols.Message)
			if b := childOfType(child, "message_body"); b != nil {
				w.body(b, name)
			}
		case "enum":
			w.enum(child, scope)
		case "service":
			w.service(child, scope)
		case "extend":
			w.extend(child, scope)
		case "message_body":
			w.body(child, scope)
		}
	}
}

func (w *walker) enum(n *sitter.Node, scope string) {
	w.add(symbols.Join(scope, w.declName(n, "enum_name")), symbols.Enum)
	b := childOfType(n, "enum_body")
	if b == nil {
		return
	}
	for i := 0; i < int(b.NamedChildCount()); i++ {
		f := b.NamedChild(i)
		if f.Type() != "enum_field" {
			continue
		}
		if id := childOfType(f, "identifier"); id != nil {
			w.add(symbols.Join(scope, id.Content(w.src)), symbols.EnumValue)
		}
	}
}

func (w *walker) service(n *sitter.Node, scope string) {
	name := symbols.Join(scope, w.declName(n, "service_name"))
	w.add(name, symbols.Service)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		rpc := n.NamedChild(i)
		if rpc.Type() == "rpc" {
			w.add(symbols.Join(name, w.declName(rpc, "rpc_name")), symbols.Method)
		}
	}
}

// extend records the fields of an extend block as extensions in scope.
func (w *walker) extend(n *sitter.Node, scope string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		f := n.NamedChild(i)
		if f.Type() != "field" {
			continue
		}
		if id := childOfType(f, "identifier"); id != nil {
			w.add(symbols.Join(scope, id.Content(w.src)), symbols.Extension)
		}
	}
}

// declName returns the identifier naming a declaration, preferring the
// grammar's dedicated name node.
func (w *walker) declName(n *sitter.Node, nameType string) string {
	if c := childOfType(n, nameType); c != nil {
		return strings.TrimSpace(c.Content(w.src))
	}
	if c := childOfType(n, "identifier"); c != nil {
		return c.Content(w.src)
	}
	return ""
}

func packageName(n *sitter.Node, src []byte) string {
	if c := childOfType(n, "full_ident"); c != nil {
		return strings.Join(strings.Fields(c.Content(src)), "")
	}
	s := strings.TrimSpace(n.Content(src))
	s = strings.TrimPrefix(s, "package")
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	return strings.Join(strings.Fields(s), "")
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}
