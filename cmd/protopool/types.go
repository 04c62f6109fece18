package main

import (
	"github.com/jward/protopool"
	"github.com/jward/protopool/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIImport summarizes one import run.
type CLIImport struct {
	Source     string   `json:"source"`
	Database   string   `json:"database"`
	Changed    []string `json:"changed"`
	Unchanged  int      `json:"unchanged"`
	Stale      []string `json:"stale,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// CLIFile is a JSON-friendly stored file.
type CLIFile struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Package string `json:"package"`
	Syntax  string `json:"syntax"`
	Hash    string `json:"hash"`
}

// CLIDescribe is the result of describe: which kind of descriptor the name
// matched, plus its details.
type CLIDescribe struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	File   string `json:"file"`
	Detail any    `json:"detail"`
}

// CLIFileDetail is a JSON-friendly file descriptor.
type CLIFileDetail struct {
	Package            string   `json:"package"`
	Syntax             string   `json:"syntax"`
	Dependencies       []string `json:"dependencies"`
	PublicDependencies []string `json:"public_dependencies,omitempty"`
	Messages           []string `json:"messages"`
	Enums              []string `json:"enums"`
	Services           []string `json:"services"`
	Extensions         []string `json:"extensions"`
}

// CLIField is a JSON-friendly field or extension.
type CLIField struct {
	Name           string `json:"name"`
	FullName       string `json:"full_name"`
	Number         int32  `json:"number"`
	Type           string `json:"type"`
	Label          string `json:"label"`
	TypeName       string `json:"type_name,omitempty"`
	Oneof          string `json:"oneof,omitempty"`
	HasDefault     bool   `json:"has_default"`
	Default        any    `json:"default"`
	ContainingType string `json:"containing_type,omitempty"`
	IsExtension    bool   `json:"is_extension,omitempty"`
}

// CLIMessage is a JSON-friendly message descriptor.
type CLIMessage struct {
	Fields          []CLIField `json:"fields"`
	Oneofs          []CLIOneof `json:"oneofs,omitempty"`
	NestedMessages  []string   `json:"nested_messages,omitempty"`
	Enums           []string   `json:"enums,omitempty"`
	ExtensionRanges [][2]int32 `json:"extension_ranges,omitempty"`
	Extensions      []CLIField `json:"extensions,omitempty"`
	IsMapEntry      bool       `json:"is_map_entry,omitempty"`
}

// CLIOneof is a JSON-friendly oneof.
type CLIOneof struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// CLIEnumValue is one enum value.
type CLIEnumValue struct {
	Name   string `json:"name"`
	Number int32  `json:"number"`
}

// CLIEnum is a JSON-friendly enum descriptor.
type CLIEnum struct {
	Values []CLIEnumValue `json:"values"`
}

// CLIMethod is a JSON-friendly method descriptor.
type CLIMethod struct {
	Name            string `json:"name"`
	InputType       string `json:"input_type"`
	OutputType      string `json:"output_type"`
	ClientStreaming bool   `json:"client_streaming,omitempty"`
	ServerStreaming bool   `json:"server_streaming,omitempty"`
}

// CLIService is a JSON-friendly service descriptor.
type CLIService struct {
	Methods []CLIMethod `json:"methods"`
}

// CLIConflict is a recorded definition conflict.
type CLIConflict struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	File         string `json:"file"`
	ExistingKind string `json:"existing_kind"`
	ExistingFile string `json:"existing_file"`
}

// CLIFileError is a file that failed to build.
type CLIFileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// CLICheck is the result of building every stored file.
type CLICheck struct {
	Files     int            `json:"files"`
	Errors    []CLIFileError `json:"errors"`
	Conflicts []CLIConflict  `json:"conflicts"`
}

// --- Conversions ---

func fileToCLI(f *store.File) CLIFile {
	return CLIFile{ID: f.ID, Name: f.Name, Package: f.Package, Syntax: f.Syntax, Hash: f.Hash}
}

func fileDetailToCLI(f *protopool.FileDescriptor) CLIFileDetail {
	d := CLIFileDetail{
		Package:      f.Package,
		Syntax:       string(f.Syntax),
		Dependencies: []string{},
		Messages:     []string{},
		Enums:        []string{},
		Services:     []string{},
		Extensions:   []string{},
	}
	for _, dep := range f.Dependencies {
		d.Dependencies = append(d.Dependencies, dep.Name)
	}
	for _, dep := range f.PublicDependencies {
		d.PublicDependencies = append(d.PublicDependencies, dep.Name)
	}
	for _, m := range f.Messages {
		d.Messages = append(d.Messages, m.FullName)
	}
	for _, e := range f.Enums {
		d.Enums = append(d.Enums, e.FullName)
	}
	for _, s := range f.Services {
		d.Services = append(d.Services, s.FullName)
	}
	for _, x := range f.Extensions {
		d.Extensions = append(d.Extensions, x.FullName)
	}
	return d
}

func fieldToCLI(f *protopool.FieldDescriptor) CLIField {
	out := CLIField{
		Name:        f.Name,
		FullName:    f.FullName,
		Number:      f.Number,
		Type:        f.Type.String(),
		Label:       f.Label.String(),
		HasDefault:  f.HasDefault,
		Default:     defaultToCLI(f.Default),
		IsExtension: f.IsExtension,
	}
	switch {
	case f.MessageType != nil:
		out.TypeName = f.MessageType.FullName
	case f.EnumType != nil:
		out.TypeName = f.EnumType.FullName
	}
	if f.ContainingOneof != nil {
		out.Oneof = f.ContainingOneof.Name
	}
	if f.IsExtension && f.ContainingType != nil {
		out.ContainingType = f.ContainingType.FullName
	}
	return out
}

// defaultToCLI renders bytes defaults as text; everything else marshals as
// its plain Go value.
func defaultToCLI(v protopool.DefaultValue) any {
	switch d := v.(type) {
	case nil:
		return nil
	case protopool.BytesDefault:
		return string(d)
	default:
		return d.Interface()
	}
}

func messageToCLI(m *protopool.MessageDescriptor) CLIMessage {
	out := CLIMessage{Fields: []CLIField{}, IsMapEntry: m.IsMapEntry}
	for _, f := range m.Fields {
		out.Fields = append(out.Fields, fieldToCLI(f))
	}
	for _, o := range m.Oneofs {
		names := make([]string, 0, len(o.Fields))
		for _, f := range o.Fields {
			names = append(names, f.Name)
		}
		out.Oneofs = append(out.Oneofs, CLIOneof{Name: o.Name, Fields: names})
	}
	for _, n := range m.NestedMessages {
		out.NestedMessages = append(out.NestedMessages, n.FullName)
	}
	for _, e := range m.Enums {
		out.Enums = append(out.Enums, e.FullName)
	}
	for _, r := range m.ExtensionRanges {
		out.ExtensionRanges = append(out.ExtensionRanges, [2]int32{r.Start, r.End})
	}
	for _, x := range m.Extensions {
		out.Extensions = append(out.Extensions, fieldToCLI(x))
	}
	return out
}

func enumToCLI(e *protopool.EnumDescriptor) CLIEnum {
	out := CLIEnum{Values: []CLIEnumValue{}}
	for _, v := range e.Values {
		out.Values = append(out.Values, CLIEnumValue{Name: v.Name, Number: v.Number})
	}
	return out
}

func serviceToCLI(s *protopool.ServiceDescriptor) CLIService {
	out := CLIService{Methods: []CLIMethod{}}
	for _, m := range s.Methods {
		cm := CLIMethod{
			Name:            m.Name,
			ClientStreaming: m.ClientStreaming,
			ServerStreaming: m.ServerStreaming,
		}
		if m.InputType != nil {
			cm.InputType = m.InputType.FullName
		}
		if m.OutputType != nil {
			cm.OutputType = m.OutputType.FullName
		}
		out.Methods = append(out.Methods, cm)
	}
	return out
}

func conflictToCLI(c *protopool.DefinitionConflictError) CLIConflict {
	return CLIConflict{
		Name:         c.Name,
		Kind:         string(c.Kind),
		File:         c.File,
		ExistingKind: string(c.ExistingKind),
		ExistingFile: c.ExistingFile,
	}
}
