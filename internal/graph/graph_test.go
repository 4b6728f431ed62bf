package graph

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processorCallerSummary builds the resolved summary for a file defining
// Processor.run and Caller.go calling it.
func processorCallerSummary() *FileSummary {
	fs := NewFileSummary("python")
	run := &FunctionEntity{Name: "run", StartLine: 1, EndLine: 1, EnclosingType: "Processor"}
	init := &FunctionEntity{Name: "__init__", StartLine: 3, EndLine: 3, EnclosingType: "Caller"}
	goFn := &FunctionEntity{Name: "go", StartLine: 4, EndLine: 4, EnclosingType: "Caller"}
	goFn.AddResolved("Processor.run", 4)
	for _, fn := range []*FunctionEntity{run, init, goFn} {
		fs.Functions[fn.Key()] = fn
	}
	fs.Types["Processor"] = &TypeEntity{Name: "Processor", StartLine: 0, EndLine: 1, Members: []string{"run"}}
	fs.Types["Caller"] = &TypeEntity{
		Name: "Caller", StartLine: 2, EndLine: 4,
		Members:         []string{"__init__", "go"},
		InstanceSymbols: map[string]string{"p": "Processor"},
	}
	fs.FlattenCalls()
	return fs
}

func TestFunctionKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "helper", FunctionKey("", "helper"))
	assert.Equal(t, "Caller.go", FunctionKey("Caller", "go"))
}

func TestAddResolved_SortedUnique(t *testing.T) {
	t.Parallel()
	fn := &FunctionEntity{Name: "f"}
	fn.AddResolved("b", 7)
	fn.AddResolved("a", 9)
	fn.AddResolved("b", 3)
	fn.AddResolved("c", 1)

	assert.Equal(t, []string{"a", "b", "c"}, fn.ResolvedCalls)
	assert.Equal(t, 3, fn.CallLines["b"], "earliest line wins")
}

func TestAssembler_ReverseIndex(t *testing.T) {
	t.Parallel()
	a := NewAssembler(Metadata{URL: "u", Ref: "main"})
	a.Add("app.py", processorCallerSummary())
	a.Add("skipped.py", nil)
	g := a.Graph()

	require.Len(t, g.Files, 1)
	run := g.Files["app.py"].Functions["Processor.run"]
	require.Len(t, run.CalledBy, 1)
	assert.Equal(t, CallSite{FilePath: "app.py", LineNumber: 4, CallerName: "go", CallerType: "Caller"}, run.CalledBy[0])
	assert.Empty(t, g.Files["app.py"].Functions["Caller.go"].CalledBy)
}

func TestBuildReverseIndex_Idempotent(t *testing.T) {
	t.Parallel()
	g := NewRepoGraph(Metadata{})
	g.Files["app.py"] = processorCallerSummary()
	BuildReverseIndex(g)
	BuildReverseIndex(g)
	assert.Len(t, g.Files["app.py"].Functions["Processor.run"].CalledBy, 1)
}

func TestBuildReverseIndex_PrefersCallerType(t *testing.T) {
	t.Parallel()
	fs := NewFileSummary("python")
	free := &FunctionEntity{Name: "helper", StartLine: 0, EndLine: 1}
	method := &FunctionEntity{Name: "helper", StartLine: 3, EndLine: 4, EnclosingType: "A"}
	caller := &FunctionEntity{Name: "work", StartLine: 5, EndLine: 6, EnclosingType: "A"}
	caller.AddResolved("helper", 6)
	for _, fn := range []*FunctionEntity{free, method, caller} {
		fs.Functions[fn.Key()] = fn
	}
	fs.FlattenCalls()

	g := NewRepoGraph(Metadata{})
	g.Files["a.py"] = fs
	BuildReverseIndex(g)

	assert.Len(t, method.CalledBy, 1)
	assert.Empty(t, free.CalledBy)
}

func TestBuildReverseIndex_FallsBackToGlobal(t *testing.T) {
	t.Parallel()
	lib := NewFileSummary("python")
	lib.Functions["helper"] = &FunctionEntity{Name: "helper", StartLine: 0, EndLine: 1}

	app := NewFileSummary("python")
	caller := &FunctionEntity{Name: "work", StartLine: 0, EndLine: 2, EnclosingType: "B"}
	caller.AddResolved("helper", 1)
	caller.AddResolved("os.path.join", 2)
	app.Functions[caller.Key()] = caller
	app.FlattenCalls()

	g := NewRepoGraph(Metadata{})
	g.Files["lib.py"] = lib
	g.Files["app.py"] = app
	BuildReverseIndex(g)

	sites := lib.Functions["helper"].CalledBy
	require.Len(t, sites, 1)
	assert.Equal(t, "app.py", sites[0].FilePath)
	assert.Equal(t, 1, sites[0].LineNumber)
}

func TestBuildReverseIndex_PrefersSameFile(t *testing.T) {
	t.Parallel()
	mk := func(withCaller bool) *FileSummary {
		fs := NewFileSummary("go")
		fs.Functions["run"] = &FunctionEntity{Name: "run", StartLine: 0, EndLine: 1}
		if withCaller {
			c := &FunctionEntity{Name: "main", StartLine: 2, EndLine: 3}
			c.AddResolved("run", 3)
			fs.Functions["main"] = c
			fs.FlattenCalls()
		}
		return fs
	}
	g := NewRepoGraph(Metadata{})
	g.Files["a/main.go"] = mk(true)
	g.Files["b/run.go"] = mk(false)
	BuildReverseIndex(g)

	assert.Len(t, g.Files["a/main.go"].Functions["run"].CalledBy, 1)
	assert.Empty(t, g.Files["b/run.go"].Functions["run"].CalledBy)
}

func TestFunctionAt_Innermost(t *testing.T) {
	t.Parallel()
	fs := NewFileSummary("python")
	fs.Functions["outer"] = &FunctionEntity{Name: "outer", StartLine: 0, EndLine: 10}
	fs.Functions["inner"] = &FunctionEntity{Name: "inner", StartLine: 2, EndLine: 4}

	assert.Equal(t, "inner", fs.FunctionAt(3).Name)
	assert.Equal(t, "outer", fs.FunctionAt(8).Name)
	assert.Nil(t, fs.FunctionAt(11))
}

func TestCodec_JSONSchema(t *testing.T) {
	t.Parallel()
	a := NewAssembler(Metadata{URL: "https://github.com/o/r", Ref: "main"})
	a.Add("app.py", processorCallerSummary())
	g := a.Graph()

	data, err := MarshalJSON(g)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	meta := raw["metadata"].(map[string]any)
	assert.Nil(t, meta["last_commit_hash"])

	ast := raw["files"].(map[string]any)["app.py"].(map[string]any)["ast"].(map[string]any)
	goFn := ast["functions"].(map[string]any)["Caller.go"].(map[string]any)
	assert.Equal(t, "Caller", goFn["class"])
	assert.Equal(t, []any{"Processor.run"}, goFn["calls"])
	assert.Equal(t, []any{}, goFn["called_by"])

	run := ast["functions"].(map[string]any)["Processor.run"].(map[string]any)
	site := run["called_by"].([]any)[0].(map[string]any)
	assert.Equal(t, "go", site["caller_function_name"])
	assert.Equal(t, "Caller", site["caller_class_name"])

	caller := ast["classes"].(map[string]any)["Caller"].(map[string]any)
	assert.Equal(t, []any{}, caller["base_classes"])
	assert.Equal(t, []any{"__init__", "go"}, caller["methods"])

	calls := ast["calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "Processor.run", calls[0].(map[string]any)["name"])
	assert.Equal(t, []any{}, ast["imports"])
}

func TestCodec_JSONRoundTripStable(t *testing.T) {
	t.Parallel()
	a := NewAssembler(Metadata{URL: "u", Ref: "main", CommitHash: "abc"})
	a.Add("app.py", processorCallerSummary())
	first, err := MarshalJSON(a.Graph())
	require.NoError(t, err)

	g, err := UnmarshalJSON(first)
	require.NoError(t, err)
	assert.Equal(t, "abc", g.Metadata.CommitHash)
	assert.Equal(t, 4, g.Files["app.py"].Functions["Caller.go"].CallLines["Processor.run"])

	second, err := MarshalJSON(g)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCodec_YAML(t *testing.T) {
	t.Parallel()
	a := NewAssembler(Metadata{URL: "u", Ref: "dev"})
	a.Add("app.py", processorCallerSummary())

	var buf bytes.Buffer
	require.NoError(t, EncodeYAML(&buf, a.Graph()))
	assert.Contains(t, buf.String(), "caller_function_name: go")

	g, err := DecodeYAML(&buf)
	require.NoError(t, err)
	assert.Equal(t, "dev", g.Metadata.Ref)
	assert.Equal(t, []string{"Processor.run"}, g.Files["app.py"].Functions["Caller.go"].ResolvedCalls)
}
