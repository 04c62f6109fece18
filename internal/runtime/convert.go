package runtime

import (
	"github.com/risor-io/risor/object"

	"github.com/jward/protopool"
)

// Descriptors cross into scripts as maps. Cross references are given by
// full name.

func fileToMap(f *protopool.FileDescriptor) object.Object {
	deps := make([]object.Object, 0, len(f.Dependencies))
	for _, d := range f.Dependencies {
		deps = append(deps, object.NewString(d.Name))
	}
	public := make([]object.Object, 0, len(f.PublicDependencies))
	for _, d := range f.PublicDependencies {
		public = append(public, object.NewString(d.Name))
	}
	messages := make([]object.Object, 0, len(f.Messages))
	for _, m := range f.Messages {
		messages = append(messages, object.NewString(m.FullName))
	}
	enums := make([]object.Object, 0, len(f.Enums))
	for _, e := range f.Enums {
		enums = append(enums, object.NewString(e.FullName))
	}
	services := make([]object.Object, 0, len(f.Services))
	for _, s := range f.Services {
		services = append(services, object.NewString(s.FullName))
	}
	exts := make([]object.Object, 0, len(f.Extensions))
	for _, x := range f.Extensions {
		exts = append(exts, object.NewString(x.FullName))
	}
	return object.NewMap(map[string]object.Object{
		"name":                object.NewString(f.Name),
		"package":             object.NewString(f.Package),
		"syntax":              object.NewString(string(f.Syntax)),
		"dependencies":        object.NewList(deps),
		"public_dependencies": object.NewList(public),
		"messages":            object.NewList(messages),
		"enums":               object.NewList(enums),
		"services":            object.NewList(services),
		"extensions":          object.NewList(exts),
	})
}

func messageToMap(m *protopool.MessageDescriptor) object.Object {
	fields := make([]object.Object, 0, len(m.Fields))
	for _, f := range m.Fields {
		fields = append(fields, fieldToMap(f))
	}
	nested := make([]object.Object, 0, len(m.NestedMessages))
	for _, n := range m.NestedMessages {
		nested = append(nested, object.NewString(n.FullName))
	}
	enums := make([]object.Object, 0, len(m.Enums))
	for _, e := range m.Enums {
		enums = append(enums, object.NewString(e.FullName))
	}
	oneofs := make([]object.Object, 0, len(m.Oneofs))
	for _, o := range m.Oneofs {
		oneofs = append(oneofs, oneofToMap(o))
	}
	ranges := make([]object.Object, 0, len(m.ExtensionRanges))
	for _, r := range m.ExtensionRanges {
		ranges = append(ranges, object.NewList([]object.Object{
			object.NewInt(int64(r.Start)), object.NewInt(int64(r.End)),
		}))
	}
	out := map[string]object.Object{
		"name":             object.NewString(m.Name),
		"full_name":        object.NewString(m.FullName),
		"file":             object.NewString(fileName(m.File)),
		"syntax":           object.NewString(string(m.Syntax)),
		"fields":           object.NewList(fields),
		"nested_messages":  object.NewList(nested),
		"enums":            object.NewList(enums),
		"oneofs":           object.NewList(oneofs),
		"extension_ranges": object.NewList(ranges),
		"is_map_entry":     object.NewBool(m.IsMapEntry),
		"parent":           object.Nil,
	}
	if m.Parent != nil {
		out["parent"] = object.NewString(m.Parent.FullName)
	}
	return object.NewMap(out)
}

func fieldToMap(f *protopool.FieldDescriptor) object.Object {
	out := map[string]object.Object{
		"name":            object.NewString(f.Name),
		"full_name":       object.NewString(f.FullName),
		"index":           object.NewInt(int64(f.Index)),
		"number":          object.NewInt(int64(f.Number)),
		"type":            object.NewString(f.Type.String()),
		"label":           object.NewString(f.Label.String()),
		"category":        object.NewString(f.Category().String()),
		"json_name":       object.NewString(f.JSONName),
		"has_default":     object.NewBool(f.HasDefault),
		"default":         defaultToObject(f.Default),
		"is_extension":    object.NewBool(f.IsExtension),
		"message_type":    object.Nil,
		"enum_type":       object.Nil,
		"containing_type": object.Nil,
		"oneof":           object.Nil,
		"scope":           object.Nil,
	}
	if f.MessageType != nil {
		out["message_type"] = object.NewString(f.MessageType.FullName)
	}
	if f.EnumType != nil {
		out["enum_type"] = object.NewString(f.EnumType.FullName)
	}
	if f.ContainingType != nil {
		out["containing_type"] = object.NewString(f.ContainingType.FullName)
	}
	if f.ContainingOneof != nil {
		out["oneof"] = object.NewString(f.ContainingOneof.Name)
	}
	if f.ExtensionScope != nil {
		out["scope"] = object.NewString(f.ExtensionScope.FullName)
	}
	return object.NewMap(out)
}

func oneofToMap(o *protopool.OneofDescriptor) object.Object {
	fields := make([]object.Object, 0, len(o.Fields))
	for _, f := range o.Fields {
		fields = append(fields, object.NewString(f.Name))
	}
	return object.NewMap(map[string]object.Object{
		"name":      object.NewString(o.Name),
		"full_name": object.NewString(o.FullName),
		"index":     object.NewInt(int64(o.Index)),
		"fields":    object.NewList(fields),
	})
}

func enumToMap(e *protopool.EnumDescriptor) object.Object {
	values := make([]object.Object, 0, len(e.Values))
	for _, v := range e.Values {
		values = append(values, object.NewMap(map[string]object.Object{
			"name":      object.NewString(v.Name),
			"full_name": object.NewString(v.FullName),
			"number":    object.NewInt(int64(v.Number)),
		}))
	}
	return object.NewMap(map[string]object.Object{
		"name":      object.NewString(e.Name),
		"full_name": object.NewString(e.FullName),
		"file":      object.NewString(fileName(e.File)),
		"values":    object.NewList(values),
	})
}

func serviceToMap(s *protopool.ServiceDescriptor) object.Object {
	methods := make([]object.Object, 0, len(s.Methods))
	for _, m := range s.Methods {
		method := map[string]object.Object{
			"name":             object.NewString(m.Name),
			"full_name":        object.NewString(m.FullName),
			"input_type":       object.Nil,
			"output_type":      object.Nil,
			"client_streaming": object.NewBool(m.ClientStreaming),
			"server_streaming": object.NewBool(m.ServerStreaming),
		}
		if m.InputType != nil {
			method["input_type"] = object.NewString(m.InputType.FullName)
		}
		if m.OutputType != nil {
			method["output_type"] = object.NewString(m.OutputType.FullName)
		}
		methods = append(methods, object.NewMap(method))
	}
	return object.NewMap(map[string]object.Object{
		"name":      object.NewString(s.Name),
		"full_name": object.NewString(s.FullName),
		"file":      object.NewString(fileName(s.File)),
		"methods":   object.NewList(methods),
	})
}

func defaultToObject(v protopool.DefaultValue) object.Object {
	switch d := v.(type) {
	case protopool.FloatDefault:
		return object.NewFloat(float64(d))
	case protopool.StringDefault:
		return object.NewString(string(d))
	case protopool.BoolDefault:
		return object.NewBool(bool(d))
	case protopool.EnumDefault:
		return object.NewInt(int64(d))
	case protopool.BytesDefault:
		return object.NewString(string(d))
	case protopool.IntDefault:
		return object.NewInt(int64(d))
	case protopool.UintDefault:
		return object.NewInt(int64(d))
	case protopool.RepeatedDefault:
		return object.NewList([]object.Object{})
	}
	return object.Nil
}

func fileName(f *protopool.FileDescriptor) string {
	if f == nil {
		return ""
	}
	return f.Name
}
