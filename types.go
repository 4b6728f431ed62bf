package callgraph

import (
	"github.com/jward/callgraph/internal/gate"
	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/provider"
)

// Public type aliases for internal types used in the Engine and QueryBuilder
// API. External consumers use these names; no conversion is needed.

type RepoGraph = graph.RepoGraph
type Metadata = graph.Metadata
type FileSummary = graph.FileSummary
type Function = graph.FunctionEntity
type Class = graph.TypeEntity
type CallEdge = graph.CallEdge
type CallSite = graph.CallSite
type State = gate.State
type Provider = provider.Provider
type RefNotFoundError = provider.RefNotFoundError

// Gate states.
const (
	Stale   = gate.Stale
	Current = gate.Current
)
