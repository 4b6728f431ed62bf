package callgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/provider"
	"github.com/jward/callgraph/internal/store"
)

// Query errors.
var (
	ErrFunctionNotFound = errors.New("function not found")
	ErrNoFunctionAtLine = errors.New("no function at line")
	ErrSourceChanged    = errors.New("file changed since the graph was built")
)

// QueryBuilder answers call graph questions over one assembled graph.
type QueryBuilder struct {
	graph    *graph.RepoGraph
	provider provider.Provider // used by FunctionSource only

	byKey map[string][]FunctionRef
}

// FunctionRef locates a function in the graph.
type FunctionRef struct {
	Path     string
	Key      string
	Function *graph.FunctionEntity
}

// Callee is one resolved call target with the functions it may refer to.
type Callee struct {
	Target      string
	Line        int           // first line the call is made from
	Definitions []FunctionRef // empty for targets outside the repository
}

// CallStack is the function containing a line and what it calls.
type CallStack struct {
	Function FunctionRef
	Line     int
	Calls    []Callee
}

// NewQuery returns a QueryBuilder over g. p may be nil when FunctionSource
// is not used.
func NewQuery(g *graph.RepoGraph, p provider.Provider) *QueryBuilder {
	q := &QueryBuilder{graph: g, provider: p, byKey: make(map[string][]FunctionRef)}
	for _, path := range g.SortedPaths() {
		fs := g.Files[path]
		for _, key := range fs.SortedFunctionKeys() {
			q.byKey[key] = append(q.byKey[key], FunctionRef{Path: path, Key: key, Function: fs.Functions[key]})
		}
	}
	return q
}

// Query returns a QueryBuilder over the stored graph for repoURL at ref. An
// empty ref selects the newest stored ref of repoURL; an empty repoURL selects
// the most recently saved graph.
func (e *Engine) Query(ctx context.Context, repoURL, ref string) (*QueryBuilder, error) {
	if e.store == nil {
		return nil, errors.New("callgraph: query: no store configured")
	}
	var (
		meta *graph.Metadata
		err  error
	)
	if repoURL == "" {
		meta, err = e.store.Latest(ctx)
	} else {
		meta, err = e.store.Metadata(ctx, repoURL, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("callgraph: query: %w", err)
	}
	if meta == nil {
		return nil, fmt.Errorf("callgraph: query: %w", store.ErrNotFound)
	}
	g, err := e.store.Load(ctx, meta.URL, meta.Ref)
	if err != nil {
		return nil, fmt.Errorf("callgraph: query: %w", err)
	}
	return NewQuery(g, e.provider), nil
}

// Graph returns the underlying graph.
func (q *QueryBuilder) Graph() *graph.RepoGraph {
	return q.graph
}

// Functions returns every function whose key is key, ordered by path. A key
// of the form "<path>:<key>" selects one file.
func (q *QueryBuilder) Functions(key string) []FunctionRef {
	if refs, ok := q.byKey[key]; ok {
		return refs
	}
	path, k, ok := strings.Cut(key, ":")
	if !ok {
		return nil
	}
	fs, ok := q.graph.Files[path]
	if !ok {
		return nil
	}
	fn, ok := fs.Functions[k]
	if !ok {
		return nil
	}
	return []FunctionRef{{Path: path, Key: k, Function: fn}}
}

func (q *QueryBuilder) lookup(key string) ([]FunctionRef, error) {
	refs := q.Functions(key)
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, key)
	}
	return refs, nil
}

// Callers returns the call sites that target key, across every definition
// of key.
func (q *QueryBuilder) Callers(key string) ([]graph.CallSite, error) {
	refs, err := q.lookup(key)
	if err != nil {
		return nil, err
	}
	seen := make(map[graph.CallSite]bool)
	var sites []graph.CallSite
	for _, ref := range refs {
		for _, site := range ref.Function.CalledBy {
			if !seen[site] {
				seen[site] = true
				sites = append(sites, site)
			}
		}
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].FilePath != sites[j].FilePath {
			return sites[i].FilePath < sites[j].FilePath
		}
		if sites[i].LineNumber != sites[j].LineNumber {
			return sites[i].LineNumber < sites[j].LineNumber
		}
		return sites[i].CallerName < sites[j].CallerName
	})
	return sites, nil
}

// Callees returns the resolved calls made by key, ordered by target.
func (q *QueryBuilder) Callees(key string) ([]Callee, error) {
	refs, err := q.lookup(key)
	if err != nil {
		return nil, err
	}
	lines := make(map[string]int)
	for _, ref := range refs {
		for _, target := range ref.Function.ResolvedCalls {
			line := ref.Function.CallLines[target]
			if prev, ok := lines[target]; !ok || line < prev {
				lines[target] = line
			}
		}
	}
	return q.callees(lines), nil
}

func (q *QueryBuilder) callees(lines map[string]int) []Callee {
	targets := make([]string, 0, len(lines))
	for t := range lines {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	out := make([]Callee, 0, len(targets))
	for _, t := range targets {
		out = append(out, Callee{Target: t, Line: lines[t], Definitions: q.byKey[t]})
	}
	return out
}

// FunctionAt returns the innermost function in path whose span contains
// line (0-indexed).
func (q *QueryBuilder) FunctionAt(path string, line int) (FunctionRef, bool) {
	fs, ok := q.graph.Files[path]
	if !ok {
		return FunctionRef{}, false
	}
	fn := fs.FunctionAt(line)
	if fn == nil {
		return FunctionRef{}, false
	}
	return FunctionRef{Path: path, Key: fn.Key(), Function: fn}, true
}

// CallStack returns the function containing line in path with its resolved
// calls.
func (q *QueryBuilder) CallStack(path string, line int) (*CallStack, error) {
	ref, ok := q.FunctionAt(path, line)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%d", ErrNoFunctionAtLine, path, line)
	}
	lines := make(map[string]int, len(ref.Function.ResolvedCalls))
	for _, target := range ref.Function.ResolvedCalls {
		lines[target] = ref.Function.CallLines[target]
	}
	return &CallStack{Function: ref, Line: line, Calls: q.callees(lines)}, nil
}

// FunctionSource fetches the file behind ref and returns the function's
// lines, start and end inclusive. When the graph recorded a fingerprint for
// the file and the fetched content no longer matches it, the line span is
// stale and ErrSourceChanged is returned.
func (q *QueryBuilder) FunctionSource(ctx context.Context, ref FunctionRef) (string, error) {
	if q.provider == nil {
		return "", errors.New("function source: no provider")
	}
	meta := q.graph.Metadata
	content, err := q.provider.GetFileContent(ctx, q.provider.FileURL(meta.URL, meta.Ref, ref.Path))
	if err != nil {
		return "", fmt.Errorf("function source: %w", err)
	}
	if fs, ok := q.graph.Files[ref.Path]; ok && fs.Fingerprint != 0 && fs.Fingerprint != xxh3.Hash(content) {
		return "", fmt.Errorf("function source: %w: %s", ErrSourceChanged, ref.Path)
	}
	return sliceLines(string(content), ref.Function.StartLine, ref.Function.EndLine), nil
}

func sliceLines(content string, start, end int) string {
	lines := strings.Split(content, "\n")
	if start >= len(lines) {
		return ""
	}
	end = min(end, len(lines)-1)
	return strings.Join(lines[start:end+1], "\n")
}
