package graph

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Wire types mirror the persisted schema. Optional strings are pointers so
// they encode as null.

type wireGraph struct {
	Metadata wireMetadata        `json:"metadata" yaml:"metadata"`
	Files    map[string]wireFile `json:"files" yaml:"files"`
}

type wireMetadata struct {
	URL            string  `json:"url" yaml:"url"`
	Ref            string  `json:"ref" yaml:"ref"`
	LastCommitHash *string `json:"last_commit_hash" yaml:"last_commit_hash"`
}

type wireFile struct {
	Language string  `json:"language" yaml:"language"`
	AST      wireAST `json:"ast" yaml:"ast"`
}

type wireAST struct {
	Functions map[string]wireFunction `json:"functions" yaml:"functions"`
	Classes   map[string]wireClass    `json:"classes" yaml:"classes"`
	Calls     []wireCall              `json:"calls" yaml:"calls"`
	Imports   []string                `json:"imports" yaml:"imports"`
}

type wireFunction struct {
	Name      string         `json:"name" yaml:"name"`
	StartLine int            `json:"start_line" yaml:"start_line"`
	EndLine   int            `json:"end_line" yaml:"end_line"`
	Class     *string        `json:"class" yaml:"class"`
	Calls     []string       `json:"calls" yaml:"calls"`
	CalledBy  []wireCallSite `json:"called_by" yaml:"called_by"`
}

type wireCallSite struct {
	FilePath           string  `json:"file_path" yaml:"file_path"`
	LineNumber         int     `json:"line_number" yaml:"line_number"`
	CallerFunctionName string  `json:"caller_function_name" yaml:"caller_function_name"`
	CallerClassName    *string `json:"caller_class_name" yaml:"caller_class_name"`
}

type wireClass struct {
	Name         string            `json:"name" yaml:"name"`
	StartLine    int               `json:"start_line" yaml:"start_line"`
	EndLine      int               `json:"end_line" yaml:"end_line"`
	BaseClasses  []string          `json:"base_classes" yaml:"base_classes"`
	Methods      []string          `json:"methods" yaml:"methods"`
	InstanceVars map[string]string `json:"instance_vars,omitempty" yaml:"instance_vars,omitempty"`
}

type wireCall struct {
	Name   string  `json:"name" yaml:"name"`
	Line   int     `json:"line" yaml:"line"`
	Caller string  `json:"caller" yaml:"caller"`
	Class  *string `json:"class" yaml:"class"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toWire(g *RepoGraph) wireGraph {
	w := wireGraph{
		Metadata: wireMetadata{
			URL:            g.Metadata.URL,
			Ref:            g.Metadata.Ref,
			LastCommitHash: optional(g.Metadata.CommitHash),
		},
		Files: make(map[string]wireFile, len(g.Files)),
	}
	for path, fs := range g.Files {
		w.Files[path] = wireFile{Language: fs.Language, AST: fileToWire(fs)}
	}
	return w
}

func fileToWire(fs *FileSummary) wireAST {
	ast := wireAST{
		Functions: make(map[string]wireFunction, len(fs.Functions)),
		Classes:   make(map[string]wireClass, len(fs.Types)),
		Calls:     make([]wireCall, 0, len(fs.Calls)),
		Imports:   orEmpty(fs.Imports),
	}
	for key, fn := range fs.Functions {
		sites := make([]wireCallSite, 0, len(fn.CalledBy))
		for _, cs := range fn.CalledBy {
			sites = append(sites, wireCallSite{
				FilePath:           cs.FilePath,
				LineNumber:         cs.LineNumber,
				CallerFunctionName: cs.CallerName,
				CallerClassName:    optional(cs.CallerType),
			})
		}
		ast.Functions[key] = wireFunction{
			Name:      fn.Name,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
			Class:     optional(fn.EnclosingType),
			Calls:     orEmpty(fn.ResolvedCalls),
			CalledBy:  sites,
		}
	}
	for name, t := range fs.Types {
		var ivars map[string]string
		if len(t.InstanceSymbols) > 0 {
			ivars = t.InstanceSymbols
		}
		ast.Classes[name] = wireClass{
			Name:         t.Name,
			StartLine:    t.StartLine,
			EndLine:      t.EndLine,
			BaseClasses:  orEmpty(t.BaseTypes),
			Methods:      orEmpty(t.Members),
			InstanceVars: ivars,
		}
	}
	for _, c := range fs.Calls {
		ast.Calls = append(ast.Calls, wireCall{
			Name:   c.Target,
			Line:   c.SourceLine,
			Caller: c.Caller,
			Class:  optional(c.CallerType),
		})
	}
	return ast
}

func fromWire(w wireGraph) *RepoGraph {
	g := NewRepoGraph(Metadata{
		URL:        w.Metadata.URL,
		Ref:        w.Metadata.Ref,
		CommitHash: deref(w.Metadata.LastCommitHash),
	})
	for path, wf := range w.Files {
		g.Files[path] = fileFromWire(wf)
	}
	return g
}

func fileFromWire(wf wireFile) *FileSummary {
	fs := NewFileSummary(wf.Language)
	for key, wfn := range wf.AST.Functions {
		fn := &FunctionEntity{
			Name:          wfn.Name,
			StartLine:     wfn.StartLine,
			EndLine:       wfn.EndLine,
			EnclosingType: deref(wfn.Class),
		}
		for _, target := range wfn.Calls {
			fn.AddResolved(target, wfn.StartLine)
		}
		for _, cs := range wfn.CalledBy {
			fn.CalledBy = append(fn.CalledBy, CallSite{
				FilePath:   cs.FilePath,
				LineNumber: cs.LineNumber,
				CallerName: cs.CallerFunctionName,
				CallerType: deref(cs.CallerClassName),
			})
		}
		fs.Functions[key] = fn
	}
	for name, wc := range wf.AST.Classes {
		fs.Types[name] = &TypeEntity{
			Name:            wc.Name,
			StartLine:       wc.StartLine,
			EndLine:         wc.EndLine,
			BaseTypes:       wc.BaseClasses,
			Members:         wc.Methods,
			InstanceSymbols: wc.InstanceVars,
		}
	}
	for _, wc := range wf.AST.Calls {
		fs.Calls = append(fs.Calls, CallEdge{
			Caller:     wc.Caller,
			Target:     wc.Name,
			SourceLine: wc.Line,
			CallerType: deref(wc.Class),
		})
		if fn, ok := fs.Functions[wc.Caller]; ok && fn.CallLines != nil {
			fn.CallLines[wc.Name] = wc.Line
		}
	}
	fs.Imports = wf.AST.Imports
	return fs
}

// MarshalFile encodes one file in the persisted per-file form. Stores use
// it to keep files individually.
func MarshalFile(fs *FileSummary) ([]byte, error) {
	data, err := json.Marshal(wireFile{Language: fs.Language, AST: fileToWire(fs)})
	if err != nil {
		return nil, fmt.Errorf("encode file: %w", err)
	}
	return data, nil
}

// UnmarshalFile decodes a file written by MarshalFile.
func UnmarshalFile(data []byte) (*FileSummary, error) {
	var wf wireFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return fileFromWire(wf), nil
}

// EncodeJSON writes g in the persisted schema with two-space indentation.
// Map keys are emitted in sorted order, so equal graphs encode to identical
// bytes.
func EncodeJSON(w io.Writer, g *RepoGraph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toWire(g)); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return nil
}

// MarshalJSON returns the persisted JSON form of g.
func MarshalJSON(g *RepoGraph) ([]byte, error) {
	data, err := json.MarshalIndent(toWire(g), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	return data, nil
}

// DecodeJSON reads a graph in the persisted schema.
func DecodeJSON(r io.Reader) (*RepoGraph, error) {
	var w wireGraph
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return fromWire(w), nil
}

// UnmarshalJSON parses data produced by MarshalJSON or EncodeJSON.
func UnmarshalJSON(data []byte) (*RepoGraph, error) {
	var w wireGraph
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return fromWire(w), nil
}

// EncodeYAML writes g in the persisted schema as YAML.
func EncodeYAML(w io.Writer, g *RepoGraph) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toWire(g)); err != nil {
		return fmt.Errorf("encode graph yaml: %w", err)
	}
	return enc.Close()
}

// DecodeYAML reads a graph written by EncodeYAML.
func DecodeYAML(r io.Reader) (*RepoGraph, error) {
	var w wireGraph
	if err := yaml.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode graph yaml: %w", err)
	}
	return fromWire(w), nil
}
