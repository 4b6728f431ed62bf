package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/jward/callgraph/internal/errors"
	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/graph"
)

func process(t *testing.T, lang grammar.Language, src string, opts ...Option) *graph.FileSummary {
	t.Helper()
	r := grammar.NewRegistry([]grammar.Language{lang})
	t.Cleanup(r.Close)
	summary, err := NewProcessor(r, opts...).ProcessLanguage(context.Background(), lang, []byte(src))
	require.NoError(t, err)
	return summary
}

func fn(t *testing.T, s *graph.FileSummary, key string) *graph.FunctionEntity {
	t.Helper()
	f, ok := s.Functions[key]
	require.True(t, ok, "missing function %q, have %v", key, s.SortedFunctionKeys())
	return f
}

const processorCaller = `class Processor:
    def run(self):
        pass

class Caller:
    def __init__(self):
        self.p = Processor()

    def go(self):
        self.p.run()
`

func TestPython_ProcessorCaller(t *testing.T) {
	s := process(t, grammar.Python, processorCaller)

	assert.Equal(t, []string{"Processor.run"}, fn(t, s, "Caller.go").ResolvedCalls)
	assert.Equal(t, []string{"Processor"}, fn(t, s, "Caller.__init__").ResolvedCalls)
	assert.Empty(t, fn(t, s, "Processor.run").ResolvedCalls)

	caller := s.Types["Caller"]
	require.NotNil(t, caller)
	assert.Equal(t, []string{"__init__", "go"}, caller.Members)
	assert.Equal(t, map[string]string{"p": "Processor"}, caller.InstanceSymbols)

	assert.Contains(t, s.Calls, graph.CallEdge{Caller: "Caller.go", Target: "Processor.run", SourceLine: 9, CallerType: "Caller"})
	assert.NotZero(t, s.Fingerprint)
}

func TestPython_LinesAreZeroIndexed(t *testing.T) {
	s := process(t, grammar.Python, processorCaller)
	run := fn(t, s, "Processor.run")
	assert.Equal(t, 1, run.StartLine)
	assert.Equal(t, 2, run.EndLine)
	assert.Equal(t, 0, s.Types["Processor"].StartLine)
}

func TestPython_InstanceVariableShadowsMethod(t *testing.T) {
	src := `class Caller:
    def __init__(self):
        self.run = Runner()

    def run(self):
        pass

    def go(self):
        self.run()
`
	s := process(t, grammar.Python, src)
	assert.Equal(t, []string{"Runner"}, fn(t, s, "Caller.go").ResolvedCalls)
	assert.Equal(t, "Runner", s.Types["Caller"].InstanceSymbols["run"])
}

func TestPython_ConstructorCallsSuppressed(t *testing.T) {
	src := `class Child(Base):
    def __init__(self):
        super().__init__()
        Base.__init__(self)
        self.setup()
`
	s := process(t, grammar.Python, src)
	assert.Equal(t, []string{"Child.setup"}, fn(t, s, "Child.__init__").ResolvedCalls)
	assert.Equal(t, []string{"Base"}, s.Types["Child"].BaseTypes)
}

func TestPython_SuperCallsAreNotEdges(t *testing.T) {
	src := `class Child(Base):
    def __init__(self):
        super().__init__()
    def save(self):
        super().save()
`
	s := process(t, grammar.Python, src)
	assert.Empty(t, fn(t, s, "Child.__init__").ResolvedCalls)
	assert.Equal(t, []string{"super.save"}, fn(t, s, "Child.save").ResolvedCalls)
	for _, edge := range s.Calls {
		assert.NotEqual(t, "super", edge.Target)
	}
}

func TestPython_LocalsAndReturnTypes(t *testing.T) {
	src := `def make() -> Widget:
    return Widget()

def use(shape: Shape):
    w = make()
    w.draw()
    v = Viewer()
    v.show()
    shape.area()
    os.path.join("a", "b")
`
	s := process(t, grammar.Python, src)
	assert.Equal(t, "Widget", fn(t, s, "make").ReturnType)

	use := fn(t, s, "use")
	assert.Equal(t, []string{"Shape.area", "Viewer", "Viewer.show", "Widget.draw", "make", "os.path.join"}, use.ResolvedCalls)
	assert.Equal(t, map[string]string{"shape": "Shape", "w": "Widget", "v": "Viewer"}, use.LocalSymbols)
}

func TestPython_DuplicateDefinitionLastWins(t *testing.T) {
	src := `def f():
    a()

def f():
    b()
`
	s := process(t, grammar.Python, src)
	require.Len(t, s.Functions, 1)
	f := fn(t, s, "f")
	assert.Equal(t, []string{"b"}, f.ResolvedCalls)
	assert.Equal(t, 3, f.StartLine)
}

func TestPython_Imports(t *testing.T) {
	src := `import os, sys.path
import numpy as np
from collections import OrderedDict
from .pkg import helper
`
	s := process(t, grammar.Python, src)
	assert.Equal(t, []string{"os", "sys.path", "numpy", "collections", ".pkg"}, s.Imports)
}

func TestPython_EmptyFile(t *testing.T) {
	s := process(t, grammar.Python, "")
	assert.Empty(t, s.Functions)
	assert.Empty(t, s.Types)
	assert.Empty(t, s.Calls)
}

func TestExtract_StepBudget(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("def f():\n    g(h(i(j(k()))))\n")
	}
	r := grammar.NewRegistry([]grammar.Language{grammar.Python})
	defer r.Close()

	_, err := NewProcessor(r, WithMaxSteps(100)).ProcessLanguage(context.Background(), grammar.Python, []byte(b.String()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepBudget))

	_, err = NewProcessor(r).ProcessLanguage(context.Background(), grammar.Python, []byte(b.String()))
	require.NoError(t, err)
}

func TestProcess_UnsupportedLanguage(t *testing.T) {
	r := grammar.NewRegistry([]grammar.Language{grammar.Python})
	defer r.Close()
	p := NewProcessor(r)

	_, err := p.Process(context.Background(), "README.md", []byte("# hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cgerrors.ErrUnsupportedLanguage))

	// Known extension, grammar not loaded.
	_, err = p.Process(context.Background(), "main.go", []byte("package main"))
	assert.True(t, errors.Is(err, cgerrors.ErrUnsupportedLanguage))

	s, err := p.Process(context.Background(), "a/b.py", []byte("def f():\n    g()\n"))
	require.NoError(t, err)
	assert.Equal(t, "python", s.Language)
}

func TestProcess_Deterministic(t *testing.T) {
	a := process(t, grammar.Python, processorCaller)
	b := process(t, grammar.Python, processorCaller)
	assert.Equal(t, a, b)
}

func TestNormalizeCallee(t *testing.T) {
	cases := map[string]string{
		"self.p.run":           "self.p.run",
		"foo(1)(2)":            "foo",
		"a[0].b":               "a.b",
		"builder.set(x).build": "builder.set.build",
		"new Caller().go":      "Caller.go",
		"List<String>.of":      "List.of",
		"this->draw":           "this->draw",
		"obj\n  .method":       "obj.method",
		"(lambda: 1)":          "",
		`"str".join`:           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeCallee(in), in)
	}
}

func TestCleanTypeName(t *testing.T) {
	cases := map[string]string{
		"*pkg.Server":      "Server",
		"List<Foo>":        "List",
		"Optional[Foo]":    "Foo",
		": Foo":            "Foo",
		"const Foo&":       "Foo",
		"&mut Foo":         "Foo",
		`\App\Models\User`: "User",
		"std::string":      "string",
		"?Foo":             "Foo",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanTypeName(in), in)
	}
}
