package runtime

import (
	"context"
	"errors"

	"github.com/risor-io/risor/object"

	"github.com/jward/protopool"
)

// Lookup host functions return nil for names the pool cannot find and an
// error object for anything else.

// makeNameLookupFn builds a one-argument lookup host function.
func makeNameLookupFn[T any](name string, find func(string) (T, error), convert func(T) object.Object) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		key, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		v, err := find(key)
		if errors.Is(err, protopool.ErrNotFound) {
			return object.Nil
		}
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return convert(v)
	})
}

func makeFindFileFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_file", p.FindFileByName, fileToMap)
}

func makeFindFileContainingFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_file_containing", p.FindFileContainingSymbol, fileToMap)
}

func makeFindMessageFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_message", p.FindMessageByName, messageToMap)
}

func makeFindEnumFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_enum", p.FindEnumByName, enumToMap)
}

func makeFindServiceFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_service", p.FindServiceByName, serviceToMap)
}

func makeFindFieldFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_field", p.FindFieldByName, fieldToMap)
}

func makeFindOneofFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_oneof", p.FindOneofByName, oneofToMap)
}

func makeFindExtensionFn(p *protopool.Pool) *object.Builtin {
	return makeNameLookupFn("find_extension", p.FindExtensionByName, fieldToMap)
}

// find_extension_by_number(message_name, number) → field map or nil
func makeFindExtensionByNumberFn(p *protopool.Pool) *object.Builtin {
	return object.NewBuiltin("find_extension_by_number", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("find_extension_by_number", 2, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("find_extension_by_number: %v", err)
		}
		number, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("find_extension_by_number: %v", err)
		}
		m, err := p.FindMessageByName(name)
		if errors.Is(err, protopool.ErrNotFound) {
			return object.Nil
		}
		if err != nil {
			return object.Errorf("find_extension_by_number: %v", err)
		}
		x, err := p.FindExtensionByNumber(m, int32(number))
		if errors.Is(err, protopool.ErrNotFound) {
			return object.Nil
		}
		if err != nil {
			return object.Errorf("find_extension_by_number: %v", err)
		}
		return fieldToMap(x)
	})
}

// all_extensions(message_name) → [field map]
func makeAllExtensionsFn(p *protopool.Pool) *object.Builtin {
	return object.NewBuiltin("all_extensions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("all_extensions", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("all_extensions: %v", err)
		}
		m, err := p.FindMessageByName(name)
		if err != nil {
			return object.Errorf("all_extensions: %v", err)
		}
		exts := p.FindAllExtensions(m)
		results := make([]object.Object, 0, len(exts))
		for _, x := range exts {
			results = append(results, fieldToMap(x))
		}
		return object.NewList(results)
	})
}

// files() → [name], the files built so far
func makeFilesFn(p *protopool.Pool) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		files := p.Files()
		results := make([]object.Object, 0, len(files))
		for _, f := range files {
			results = append(results, object.NewString(f.Name))
		}
		return object.NewList(results)
	})
}

// conflicts() → [{name, kind, file, existing_kind, existing_file}]
func makeConflictsFn(p *protopool.Pool) *object.Builtin {
	return object.NewBuiltin("conflicts", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("conflicts", 0, len(args))
		}
		conflicts := p.Conflicts()
		results := make([]object.Object, 0, len(conflicts))
		for _, c := range conflicts {
			results = append(results, object.NewMap(map[string]object.Object{
				"name":          object.NewString(c.Name),
				"kind":          object.NewString(string(c.Kind)),
				"file":          object.NewString(c.File),
				"existing_kind": object.NewString(string(c.ExistingKind)),
				"existing_file": object.NewString(c.ExistingFile),
			}))
		}
		return object.NewList(results)
	})
}
