package graph

import (
	"sort"
	"strings"
)

// funcRef locates a function inside the merged graph.
type funcRef struct {
	path string
	fn   *FunctionEntity
}

type indexKey struct {
	name          string
	enclosingType string
}

// Assembler merges per-file summaries into a RepoGraph and computes the
// called-by index.
type Assembler struct {
	graph *RepoGraph
}

// NewAssembler starts a graph for meta.
func NewAssembler(meta Metadata) *Assembler {
	return &Assembler{graph: NewRepoGraph(meta)}
}

// Add merges one file. Nil summaries are ignored so callers can pass
// skipped files straight through.
func (a *Assembler) Add(path string, summary *FileSummary) {
	if summary == nil {
		return
	}
	a.graph.Files[path] = summary
}

// Graph runs the reverse-index pass and returns the assembled graph.
func (a *Assembler) Graph() *RepoGraph {
	BuildReverseIndex(a.graph)
	return a.graph
}

// BuildReverseIndex recomputes CalledBy for every function in g. It is
// idempotent and insensitive to the order files were merged in.
func BuildReverseIndex(g *RepoGraph) {
	index := make(map[indexKey][]funcRef)
	paths := g.SortedPaths()
	for _, path := range paths {
		fs := g.Files[path]
		for _, key := range fs.SortedFunctionKeys() {
			fn := fs.Functions[key]
			fn.CalledBy = nil
			k := indexKey{name: fn.Name, enclosingType: fn.EnclosingType}
			index[k] = append(index[k], funcRef{path: path, fn: fn})
		}
	}

	for _, path := range paths {
		fs := g.Files[path]
		for _, edge := range fs.Calls {
			callerName := edge.Caller
			if fn, ok := fs.Functions[edge.Caller]; ok {
				callerName = fn.Name
			}
			site := CallSite{
				FilePath:   path,
				LineNumber: edge.SourceLine,
				CallerName: callerName,
				CallerType: edge.CallerType,
			}
			for _, ref := range lookupTarget(index, edge, path) {
				ref.fn.CalledBy = append(ref.fn.CalledBy, site)
			}
		}
	}

	for _, path := range paths {
		for _, fn := range g.Files[path].Functions {
			sortCallSites(fn.CalledBy)
		}
	}
}

// lookupTarget resolves an edge target against the flattened index. A
// qualified target ("Type.method") only matches that type. A bare target
// prefers a method on the caller's own type over a free function. Among
// several candidates, definitions in the caller's file win.
func lookupTarget(index map[indexKey][]funcRef, edge CallEdge, callerPath string) []funcRef {
	var candidates []funcRef
	if i := strings.LastIndex(edge.Target, "."); i > 0 && i < len(edge.Target)-1 {
		candidates = index[indexKey{name: edge.Target[i+1:], enclosingType: edge.Target[:i]}]
	} else {
		if edge.CallerType != "" {
			candidates = index[indexKey{name: edge.Target, enclosingType: edge.CallerType}]
		}
		if len(candidates) == 0 {
			candidates = index[indexKey{name: edge.Target}]
		}
	}
	if len(candidates) < 2 {
		return candidates
	}
	var local []funcRef
	for _, c := range candidates {
		if c.path == callerPath {
			local = append(local, c)
		}
	}
	if len(local) > 0 {
		return local
	}
	return candidates
}

func sortCallSites(sites []CallSite) {
	sort.Slice(sites, func(i, j int) bool {
		a, b := sites[i], sites[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.LineNumber != b.LineNumber {
			return a.LineNumber < b.LineNumber
		}
		if a.CallerType != b.CallerType {
			return a.CallerType < b.CallerType
		}
		return a.CallerName < b.CallerName
	})
}
