package main

import (
	"github.com/jward/callgraph"
)

// CLIResult is the top-level envelope for every command's output.
type CLIResult struct {
	Command string `json:"command" yaml:"command"`
	Results any    `json:"results" yaml:"results"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIBuild summarizes a build or a reused graph.
type CLIBuild struct {
	URL         string `json:"url" yaml:"url"`
	Ref         string `json:"ref" yaml:"ref"`
	CommitHash  string `json:"last_commit_hash,omitempty" yaml:"last_commit_hash,omitempty"`
	State       string `json:"state" yaml:"state"`
	RunID       string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Files       int    `json:"files" yaml:"files"`
	Functions   int    `json:"functions" yaml:"functions"`
	Failed      int    `json:"failed" yaml:"failed"`
	TimedOut    int    `json:"timed_out" yaml:"timed_out"`
	Unsupported int    `json:"unsupported" yaml:"unsupported"`
	Workers     int    `json:"workers" yaml:"workers"`
	ElapsedMS   int64  `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// CLIFunction locates one function.
type CLIFunction struct {
	Key       string `json:"key" yaml:"key"`
	Name      string `json:"name" yaml:"name"`
	Class     string `json:"class,omitempty" yaml:"class,omitempty"`
	File      string `json:"file" yaml:"file"`
	StartLine int    `json:"start_line" yaml:"start_line"`
	EndLine   int    `json:"end_line" yaml:"end_line"`
}

// CLICallSite is one caller of a function.
type CLICallSite struct {
	File   string `json:"file_path" yaml:"file_path"`
	Line   int    `json:"line_number" yaml:"line_number"`
	Caller string `json:"caller_function_name" yaml:"caller_function_name"`
	Class  string `json:"caller_class_name,omitempty" yaml:"caller_class_name,omitempty"`
}

// CLICallee is one call target with its known definitions.
type CLICallee struct {
	Target      string        `json:"target" yaml:"target"`
	Line        int           `json:"line" yaml:"line"`
	Definitions []CLIFunction `json:"definitions,omitempty" yaml:"definitions,omitempty"`
}

// CLICallStack is the function containing a line and its calls.
type CLICallStack struct {
	Function CLIFunction `json:"function" yaml:"function"`
	Line     int         `json:"line" yaml:"line"`
	Calls    []CLICallee `json:"calls" yaml:"calls"`
}

// CLISource is a function with its source text.
type CLISource struct {
	Function CLIFunction `json:"function" yaml:"function"`
	Source   string      `json:"source" yaml:"source"`
}

func functionToCLI(ref callgraph.FunctionRef) CLIFunction {
	return CLIFunction{
		Key:       ref.Key,
		Name:      ref.Function.Name,
		Class:     ref.Function.EnclosingType,
		File:      ref.Path,
		StartLine: ref.Function.StartLine,
		EndLine:   ref.Function.EndLine,
	}
}

func functionsToCLI(refs []callgraph.FunctionRef) []CLIFunction {
	out := make([]CLIFunction, 0, len(refs))
	for _, r := range refs {
		out = append(out, functionToCLI(r))
	}
	return out
}

func callSitesToCLI(sites []callgraph.CallSite) []CLICallSite {
	out := make([]CLICallSite, 0, len(sites))
	for _, s := range sites {
		out = append(out, CLICallSite{File: s.FilePath, Line: s.LineNumber, Caller: s.CallerName, Class: s.CallerType})
	}
	return out
}

func calleesToCLI(callees []callgraph.Callee) []CLICallee {
	out := make([]CLICallee, 0, len(callees))
	for _, c := range callees {
		out = append(out, CLICallee{Target: c.Target, Line: c.Line, Definitions: functionsToCLI(c.Definitions)})
	}
	return out
}

func buildToCLI(b *callgraph.Build) CLIBuild {
	functions := 0
	for _, fs := range b.Graph.Files {
		functions += len(fs.Functions)
	}
	meta := b.Graph.Metadata
	return CLIBuild{
		URL:         meta.URL,
		Ref:         meta.Ref,
		CommitHash:  meta.CommitHash,
		State:       b.State.String(),
		RunID:       b.RunID,
		Files:       len(b.Graph.Files),
		Functions:   functions,
		Failed:      b.Stats.Failed,
		TimedOut:    b.Stats.TimedOut,
		Unsupported: b.Unsupported,
		Workers:     b.Stats.Workers,
		ElapsedMS:   b.Elapsed.Milliseconds(),
	}
}
