package runtime

import (
	"context"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	"github.com/sirupsen/logrus"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/protobuf"
	"github.com/spf13/afero"

	"github.com/jward/protopool/internal/protosrc"
)

// treeSources remembers the source text behind every tree a script parsed.
// go-tree-sitter nodes carry no link to their source or tree, so entries are
// keyed by the root node's address; a node finds its root through Parent().
type treeSources struct {
	mu     sync.RWMutex
	byRoot map[uintptr][]byte
}

func newTreeSources() *treeSources {
	return &treeSources{byRoot: make(map[uintptr][]byte)}
}

func rootKey(node *sitter.Node) uintptr {
	for node.Parent() != nil {
		node = node.Parent()
	}
	return uintptr(unsafe.Pointer(node))
}

func (s *treeSources) remember(tree *sitter.Tree, src []byte) {
	key := rootKey(tree.RootNode())
	s.mu.Lock()
	s.byRoot[key] = src
	s.mu.Unlock()
}

func (s *treeSources) source(node *sitter.Node) ([]byte, bool) {
	key := rootKey(node)
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.byRoot[key]
	return src, ok
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

func proxyOrError(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// parse(path) → tree, reading path from the runtime's source filesystem.
func makeParseFn(fsys afero.Fs, ts *treeSources) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse: path %v", err)
		}
		src, err := afero.ReadFile(fsys, path)
		if err != nil {
			return object.Errorf("parse: reading %s: %v", path, err)
		}
		return parseProto(ctx, ts, "parse", src)
	})
}

// parse_src(source) → tree
func makeParseSrcFn(ts *treeSources) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse_src", 1, len(args))
		}
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse_src: source %v", err)
		}
		return parseProto(ctx, ts, "parse_src", []byte(src))
	})
}

func parseProto(ctx context.Context, ts *treeSources, fn string, src []byte) object.Object {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(protobuf.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	ts.remember(tree, src)
	return proxyOrError(fn, tree)
}

// scan(source) → [{name, kind}], the symbols the source declares, without
// compiling it.
func makeScanFn() *object.Builtin {
	return object.NewBuiltin("scan", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("scan", 1, len(args))
		}
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("scan: %v", err)
		}

		sc := protosrc.NewScanner()
		defer sc.Close()
		syms, err := sc.Scan(ctx, []byte(src))
		if err != nil {
			return object.Errorf("scan: %v", err)
		}
		results := make([]object.Object, 0, len(syms))
		for _, sym := range syms {
			results = append(results, object.NewMap(map[string]object.Object{
				"name": object.NewString(sym.Name),
				"kind": object.NewString(string(sym.Kind)),
			}))
		}
		return object.NewList(results)
	})
}

// node_text(node) → string
//
// Risor proxies cannot pass the []byte that Node.Content needs, so the
// source is looked up on the Go side.
func makeNodeTextFn(ts *treeSources) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, ok := ts.source(node)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(node.Content(src))
	})
}

// node_span(node) → {start_line, start_col, end_line, end_col}, zero-based.
func makeNodeSpanFn() *object.Builtin {
	return object.NewBuiltin("node_span", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_span", 1, len(args))
		}
		node, errObj := nodeArg("node_span", args[0])
		if errObj != nil {
			return errObj
		}
		start, end := node.StartPoint(), node.EndPoint()
		return object.NewMap(map[string]object.Object{
			"start_line": object.NewInt(int64(start.Row)),
			"start_col":  object.NewInt(int64(start.Column)),
			"end_line":   object.NewInt(int64(end.Row)),
			"end_col":    object.NewInt(int64(end.Column)),
		})
	})
}

// query(pattern, node) → [{capture: node}]
//
// The pattern is compiled against the protobuf grammar. Each match becomes
// one map from capture name to node.
func makeQueryFn(ts *treeSources) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: pattern %v", err)
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		src, ok := ts.source(node)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), protobuf.GetLanguage())
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)
			if len(match.Captures) == 0 {
				continue
			}
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				captures[q.CaptureNameForId(c.Index)] = proxyOrError("query", c.Node)
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// node_child(node, field) → node or nil. A missing child is Risor nil
// rather than a proxied nil pointer.
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, err := toString(args[1])
		if err != nil {
			return object.Errorf("node_child: field %v", err)
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOrError("node_child", child)
	})
}

// logObject is the script's log global. Every entry is tagged
// source=script.
type logObject struct {
	log logrus.FieldLogger
}

func (l *logObject) entry() *logrus.Entry {
	return l.log.WithField("source", "script")
}

func (l *logObject) Debug(msg string) { l.entry().Debug(msg) }
func (l *logObject) Info(msg string)  { l.entry().Info(msg) }
func (l *logObject) Warn(msg string)  { l.entry().Warn(msg) }
func (l *logObject) Error(msg string) { l.entry().Error(msg) }
