// Package graph holds the call graph data model, the repository-wide
// assembler that builds the called-by index, and the persisted codec.
package graph

import "sort"

// RawCall is an unresolved call expression as it appears in source: the
// callee text before the argument list, split into its chain parts.
type RawCall struct {
	Text  string   // e.g. "self.p.run"
	Parts []string // e.g. ["self", "p", "run"]
	Line  int      // 0-indexed row of the call node
}

// FunctionEntity is one function or method definition.
type FunctionEntity struct {
	Name          string
	StartLine     int
	EndLine       int
	EnclosingType string // "" for free functions
	ReturnType    string // declared or inferred, "" when unknown

	RawCalls      []RawCall
	ResolvedCalls []string          // deduplicated, sorted canonical targets
	CallLines     map[string]int    // target -> first line it is called from
	LocalSymbols  map[string]string // variable -> type name
	CalledBy      []CallSite
}

// Key returns the function's map key within its file.
func (f *FunctionEntity) Key() string {
	return FunctionKey(f.EnclosingType, f.Name)
}

// FunctionKey builds "Type.name" for enclosed functions and "name" otherwise.
func FunctionKey(enclosingType, name string) string {
	if enclosingType == "" {
		return name
	}
	return enclosingType + "." + name
}

// AddResolved inserts target into ResolvedCalls keeping it sorted and
// unique, remembering the first line it was called from.
func (f *FunctionEntity) AddResolved(target string, line int) {
	i := sort.SearchStrings(f.ResolvedCalls, target)
	if i < len(f.ResolvedCalls) && f.ResolvedCalls[i] == target {
		if line < f.CallLines[target] {
			f.CallLines[target] = line
		}
		return
	}
	if f.CallLines == nil {
		f.CallLines = make(map[string]int)
	}
	f.CallLines[target] = line
	f.ResolvedCalls = append(f.ResolvedCalls, "")
	copy(f.ResolvedCalls[i+1:], f.ResolvedCalls[i:])
	f.ResolvedCalls[i] = target
}

// TypeEntity is a class, struct, interface or equivalent.
type TypeEntity struct {
	Name            string
	StartLine       int
	EndLine         int
	BaseTypes       []string
	Members         []string          // names of methods whose EnclosingType is this type
	InstanceSymbols map[string]string // member -> type name
}

// AddMember records a method name once, in definition order.
func (t *TypeEntity) AddMember(name string) {
	for _, m := range t.Members {
		if m == name {
			return
		}
	}
	t.Members = append(t.Members, name)
}

// CallEdge is the flattened form of one call made by a function.
type CallEdge struct {
	Caller     string // function key
	Target     string
	SourceLine int    // first line the caller calls Target from
	CallerType string // "" when the caller is a free function
}

// CallSite is one entry of a function's called-by index.
type CallSite struct {
	FilePath   string
	LineNumber int
	CallerName string
	CallerType string
}

// FileSummary is the extraction and resolution result for one file.
type FileSummary struct {
	Language    string
	Functions   map[string]*FunctionEntity
	Types       map[string]*TypeEntity
	Calls       []CallEdge
	Imports     []string
	Fingerprint uint64 // content hash, not part of the persisted schema
}

// NewFileSummary returns an empty summary for language.
func NewFileSummary(language string) *FileSummary {
	return &FileSummary{
		Language:  language,
		Functions: make(map[string]*FunctionEntity),
		Types:     make(map[string]*TypeEntity),
	}
}

// AddImport appends imp unless it is already present.
func (s *FileSummary) AddImport(imp string) {
	if imp == "" {
		return
	}
	for _, existing := range s.Imports {
		if existing == imp {
			return
		}
	}
	s.Imports = append(s.Imports, imp)
}

// SortedFunctionKeys returns the function keys in lexical order.
func (s *FileSummary) SortedFunctionKeys() []string {
	keys := make([]string, 0, len(s.Functions))
	for k := range s.Functions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FlattenCalls rebuilds Calls from every function's ResolvedCalls, ordered
// by function key then target.
func (s *FileSummary) FlattenCalls() {
	s.Calls = s.Calls[:0]
	for _, key := range s.SortedFunctionKeys() {
		fn := s.Functions[key]
		for _, target := range fn.ResolvedCalls {
			line, ok := fn.CallLines[target]
			if !ok {
				line = fn.StartLine
			}
			s.Calls = append(s.Calls, CallEdge{
				Caller:     key,
				Target:     target,
				SourceLine: line,
				CallerType: fn.EnclosingType,
			})
		}
	}
}

// FunctionAt returns the innermost function whose span contains line.
func (s *FileSummary) FunctionAt(line int) *FunctionEntity {
	var best *FunctionEntity
	for _, key := range s.SortedFunctionKeys() {
		fn := s.Functions[key]
		if line < fn.StartLine || line > fn.EndLine {
			continue
		}
		if best == nil || fn.EndLine-fn.StartLine < best.EndLine-best.StartLine {
			best = fn
		}
	}
	return best
}

// Metadata identifies the repository state a graph was built from.
type Metadata struct {
	URL        string
	Ref        string
	CommitHash string // "" when the provider could not report one
}

// RepoGraph is the repository-wide call graph.
type RepoGraph struct {
	Metadata Metadata
	Files    map[string]*FileSummary
}

// NewRepoGraph returns an empty graph for meta.
func NewRepoGraph(meta Metadata) *RepoGraph {
	return &RepoGraph{Metadata: meta, Files: make(map[string]*FileSummary)}
}

// SortedPaths returns file paths in lexical order.
func (g *RepoGraph) SortedPaths() []string {
	paths := make([]string, 0, len(g.Files))
	for p := range g.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
