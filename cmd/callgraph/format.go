package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jward/callgraph/internal/graph"
)

// formatBuildText formats a CLIBuild as key: value lines.
func formatBuildText(w io.Writer, b CLIBuild) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "url:\t%s\n", b.URL)
	fmt.Fprintf(tw, "ref:\t%s\n", b.Ref)
	if b.CommitHash != "" {
		fmt.Fprintf(tw, "commit:\t%s\n", b.CommitHash)
	}
	fmt.Fprintf(tw, "state:\t%s\n", b.State)
	fmt.Fprintf(tw, "files:\t%d\n", b.Files)
	fmt.Fprintf(tw, "functions:\t%d\n", b.Functions)
	tw.Flush()
}

// formatCallSitesText formats callers as aligned columns.
func formatCallSitesText(w io.Writer, sites []CLICallSite) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tCALLER")
	for _, s := range sites {
		caller := s.Caller
		if s.Class != "" {
			caller = s.Class + "." + s.Caller
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.File, s.Line, caller)
	}
	tw.Flush()
}

// formatCalleesText formats callees as aligned columns.
func formatCalleesText(w io.Writer, callees []CLICallee) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tLINE\tDEFINED IN")
	for _, c := range callees {
		var defs []string
		for _, d := range c.Definitions {
			defs = append(defs, fmt.Sprintf("%s:%d", d.File, d.StartLine))
		}
		where := strings.Join(defs, ", ")
		if where == "" {
			where = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Target, c.Line, where)
	}
	tw.Flush()
}

// formatCallStackText prints the function header followed by its callees.
func formatCallStackText(w io.Writer, s CLICallStack) {
	fmt.Fprintf(w, "%s (%s:%d-%d)\n", s.Function.Key, s.Function.File, s.Function.StartLine, s.Function.EndLine)
	formatCalleesText(w, s.Calls)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIBuild:
		formatBuildText(w, v)
	case []CLICallSite:
		formatCallSitesText(w, v)
	case []CLICallee:
		formatCalleesText(w, v)
	case CLICallStack:
		formatCallStackText(w, v)
	case []CLISource:
		for i, s := range v {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "# %s:%d\n%s\n", s.Function.File, s.Function.StartLine, s.Source)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	switch flagFormat {
	case "text":
		return outputResultText(stdout, result)
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(result)
	default:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In json and yaml mode the error is written to
// stdout as a CLIResult envelope and repeated on stderr. In text mode it only
// goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	fmt.Fprintf(stderr, "Error: %s\n", err)
	if flagFormat == "text" {
		return err
	}
	_ = outputResult(CLIResult{Command: command, Error: err.Error()})
	return err
}

// writeGraph saves g to path as YAML for .yaml/.yml and as indented JSON
// otherwise.
func writeGraph(path string, g *graph.RepoGraph) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = graph.EncodeYAML(f, g)
	default:
		err = graph.EncodeJSON(f, g)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "yaml", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}
