package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	headingColor = color.New(color.Bold)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// formatImportText formats an import summary.
func formatImportText(w io.Writer, r CLIImport) {
	fmt.Fprintf(w, "Imported from %s into %s in %dms\n", r.Source, r.Database, r.DurationMS)
	fmt.Fprintf(w, "Changed: %d, unchanged: %d\n", len(r.Changed), r.Unchanged)
	for _, name := range r.Changed {
		fmt.Fprintf(w, "  %s\n", name)
	}
	if len(r.Stale) > 0 {
		warnColor.Fprintln(w, "Stale dependents (reimport to refresh):")
		for _, name := range r.Stale {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPACKAGE\tSYNTAX")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.ID, f.Name, f.Package, f.Syntax)
	}
	tw.Flush()
}

// formatNamesText prints one name per line.
func formatNamesText(w io.Writer, names []string) {
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
}

// formatFieldsText formats fields as aligned columns.
func formatFieldsText(w io.Writer, fields []CLIField) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NUMBER\tNAME\tLABEL\tTYPE\tDEFAULT")
	for _, f := range fields {
		typ := f.Type
		if f.TypeName != "" {
			typ += " " + f.TypeName
		}
		def := "-"
		if f.Default != nil {
			def = fmt.Sprintf("%v", f.Default)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", f.Number, f.Name, f.Label, typ, def)
	}
	tw.Flush()
}

// formatDescribeText formats a described descriptor as readable text.
func formatDescribeText(w io.Writer, d CLIDescribe) {
	headingColor.Fprintf(w, "%s %s\n", d.Kind, d.Name)
	fmt.Fprintf(w, "File: %s\n", d.File)

	switch v := d.Detail.(type) {
	case CLIFileDetail:
		fmt.Fprintf(w, "Package: %s\n", v.Package)
		fmt.Fprintf(w, "Syntax: %s\n", v.Syntax)
		writeList(w, "Dependencies", v.Dependencies)
		writeList(w, "Messages", v.Messages)
		writeList(w, "Enums", v.Enums)
		writeList(w, "Services", v.Services)
		writeList(w, "Extensions", v.Extensions)
	case CLIMessage:
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fields:")
		formatFieldsText(w, v.Fields)
		for _, o := range v.Oneofs {
			fmt.Fprintf(w, "Oneof %s: %s\n", o.Name, strings.Join(o.Fields, ", "))
		}
		writeList(w, "Nested messages", v.NestedMessages)
		writeList(w, "Enums", v.Enums)
		for _, r := range v.ExtensionRanges {
			fmt.Fprintf(w, "Extension range: [%d, %d)\n", r[0], r[1])
		}
		if len(v.Extensions) > 0 {
			fmt.Fprintln(w, "Extensions:")
			formatFieldsText(w, v.Extensions)
		}
	case CLIField:
		formatFieldsText(w, []CLIField{v})
	case CLIEnum:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NUMBER\tNAME")
		for _, ev := range v.Values {
			fmt.Fprintf(tw, "  %d\t%s\n", ev.Number, ev.Name)
		}
		tw.Flush()
	case CLIService:
		for _, m := range v.Methods {
			in, out := m.InputType, m.OutputType
			if m.ClientStreaming {
				in = "stream " + in
			}
			if m.ServerStreaming {
				out = "stream " + out
			}
			fmt.Fprintf(w, "  rpc %s(%s) returns (%s)\n", m.Name, in, out)
		}
	case CLIOneof:
		fmt.Fprintf(w, "Fields: %s\n", strings.Join(v.Fields, ", "))
	}
}

// formatCheckText formats a check report.
func formatCheckText(w io.Writer, c CLICheck) {
	fmt.Fprintf(w, "Checked %d files\n", c.Files)
	if len(c.Errors) > 0 {
		errorColor.Fprintf(w, "%d file(s) failed to build:\n", len(c.Errors))
		for _, e := range c.Errors {
			fmt.Fprintf(w, "  %s: %s\n", e.File, e.Error)
		}
	}
	if len(c.Conflicts) > 0 {
		warnColor.Fprintf(w, "%d definition conflict(s):\n", len(c.Conflicts))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tKIND\tFILE\tEXISTING KIND\tEXISTING FILE")
		for _, cf := range c.Conflicts {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				cf.Name, cf.Kind, cf.File, cf.ExistingKind, cf.ExistingFile)
		}
		tw.Flush()
	}
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  %s\n", item)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIImport:
		formatImportText(w, v)
	case []CLIFile:
		formatFilesText(w, v)
	case []string:
		formatNamesText(w, v)
	case CLIDescribe:
		formatDescribeText(w, v)
	case CLICheck:
		formatCheckText(w, v)
	case nil:
		// Scripts may evaluate to nothing.
	default:
		// Script results are arbitrary values.
		fmt.Fprintf(w, "%v\n", v)
	}

	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIFile:
		return len(r)
	case []string:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
